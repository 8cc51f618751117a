package custody

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DelegationAlgo tags a capability as issued by the owner's root identity.
// A credential without at least one capability carrying this tag did not come
// from the custody network's delegation flow and cannot prove ownership.
const DelegationAlgo = "LIT_BLS"

// SignedCredential is one node's owner-signed delegation proof.
type SignedCredential struct {
	Signature     string `json:"sig"`
	DerivedVia    string `json:"derivedVia,omitempty"`
	SignedMessage string `json:"signedMessage"`
	Address       string `json:"address"`
	Algo          string `json:"algo,omitempty"`
}

// CredentialEntry pairs a custody-network node identifier with the credential
// issued for it.
type CredentialEntry struct {
	Node       string
	Credential SignedCredential
}

// SessionCredentialSet is the per-node bundle of delegation proofs that
// authenticates a request across the custody network.
//
// Entries keep the order of the JSON document they were parsed from, so the
// representative entry (position 0) is a stable, deterministic choice rather
// than an artifact of map iteration.
type SessionCredentialSet struct {
	entries []CredentialEntry
}

func NewSessionCredentialSet(entries ...CredentialEntry) *SessionCredentialSet {
	return &SessionCredentialSet{entries: entries}
}

func (s *SessionCredentialSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func (s *SessionCredentialSet) Entries() []CredentialEntry {
	if s == nil {
		return nil
	}
	return s.entries
}

func (s *SessionCredentialSet) Add(node string, cred SignedCredential) {
	s.entries = append(s.entries, CredentialEntry{Node: node, Credential: cred})
}

// Representative returns the credential used for identity derivation: the
// entry at position 0 of the set's document order.
func (s *SessionCredentialSet) Representative() (SignedCredential, error) {
	if s.Len() == 0 {
		return SignedCredential{}, ErrEmptyCredentialSet
	}
	return s.entries[0].Credential, nil
}

// MarshalJSON renders the set as a JSON object in entry order.
func (s *SessionCredentialSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Node)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Credential)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a node->credential object, preserving document order.
func (s *SessionCredentialSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("session credential set: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("session credential set: expected JSON object")
	}

	var entries []CredentialEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("session credential set: %w", err)
		}
		node, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("session credential set: non-string key")
		}
		var cred SignedCredential
		if err := dec.Decode(&cred); err != nil {
			return fmt.Errorf("session credential set: entry %q: %w", node, err)
		}
		entries = append(entries, CredentialEntry{Node: node, Credential: cred})
	}
	s.entries = entries
	return nil
}

type signedMessageBody struct {
	Capabilities []capability `json:"capabilities"`
}

type capability struct {
	Algo    string `json:"algo"`
	Address string `json:"address"`
}

// DeriveOwnerAddress extracts the owning identity from a credential by
// scanning its signed message for an owner-delegation capability.
// Pure: no I/O, no retries. Malformed input is a caller bug.
func DeriveOwnerAddress(cred SignedCredential) (string, error) {
	var body signedMessageBody
	if err := json.Unmarshal([]byte(cred.SignedMessage), &body); err != nil {
		return "", fmt.Errorf("%w: signed message is not JSON: %v", ErrMalformedCredential, err)
	}
	if len(body.Capabilities) == 0 {
		return "", fmt.Errorf("%w: capabilities list is empty", ErrMalformedCredential)
	}
	for _, c := range body.Capabilities {
		if c.Algo == DelegationAlgo {
			return c.Address, nil
		}
	}
	return "", fmt.Errorf("%w: no %s capability present", ErrUntrustedCredential, DelegationAlgo)
}

// OwnerFromSet derives the owning identity from a credential set's
// representative entry.
func OwnerFromSet(set *SessionCredentialSet) (string, error) {
	rep, err := set.Representative()
	if err != nil {
		return "", err
	}
	return DeriveOwnerAddress(rep)
}
