package custody

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ActionKind tags a remote action variant. Each kind has a fixed, versioned
// contract for its parameters and response shape; the network rejects kinds
// it does not know.
type ActionKind string

const (
	// ActionDecryptAndReturn releases the decrypted key material to the caller.
	ActionDecryptAndReturn ActionKind = "decrypt-and-return"

	// ActionDecryptAndTrade reconstructs the owner's signing capability and
	// produces a signed, submitted trade without the key ever leaving the
	// network.
	ActionDecryptAndTrade ActionKind = "decrypt-and-trade"
)

// ActionVersion is the current parameter-contract version for all kinds.
const ActionVersion = 1

// TradeOrder are the order fields a decrypt-and-trade action executes.
type TradeOrder struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"`
	Amount decimal.Decimal `json:"amount"`
}

// ActionParams are the JSON-serializable inputs every quorum node receives.
type ActionParams struct {
	AccessControlConditions []AccessCondition `json:"accessControlConditions"`
	Ciphertext              string            `json:"ciphertext"`
	DataToEncryptHash       string            `json:"dataToEncryptHash"`
	Order                   *TradeOrder       `json:"order,omitempty"`
}

// ActionPayload is a complete, self-contained action submission.
type ActionPayload struct {
	Kind    ActionKind   `json:"kind"`
	Version int          `json:"version"`
	Params  ActionParams `json:"params"`
}

// DecryptAndReturn builds a payload releasing the given key material.
func DecryptAndReturn(material *EncryptedKeyMaterial) ActionPayload {
	return ActionPayload{
		Kind:    ActionDecryptAndReturn,
		Version: ActionVersion,
		Params: ActionParams{
			AccessControlConditions: []AccessCondition{material.AccessCondition},
			Ciphertext:              material.Ciphertext,
			DataToEncryptHash:       material.DataToEncryptHash,
		},
	}
}

// DecryptAndTrade builds a payload that signs and submits the given order
// with the key behind the material.
func DecryptAndTrade(material *EncryptedKeyMaterial, order TradeOrder) ActionPayload {
	return ActionPayload{
		Kind:    ActionDecryptAndTrade,
		Version: ActionVersion,
		Params: ActionParams{
			AccessControlConditions: []AccessCondition{material.AccessCondition},
			Ciphertext:              material.Ciphertext,
			DataToEncryptHash:       material.DataToEncryptHash,
			Order:                   &order,
		},
	}
}

// EncryptedKeyMaterial is opaque to this service: it is fetched from the
// custody network and forwarded back inside action payloads, never
// interpreted locally.
type EncryptedKeyMaterial struct {
	Ciphertext        string          `json:"ciphertext"`
	DataToEncryptHash string          `json:"dataToEncryptHash"`
	AccessCondition   AccessCondition `json:"accessCondition"`
}

// ActionResponse is the single value released after quorum agreement.
// Response is action-specific and opaque to the trading path; the signature
// aggregates the agreeing nodes' shares over the released bytes.
type ActionResponse struct {
	Response  json.RawMessage `json:"response"`
	Signature []byte          `json:"signature,omitempty"`
	Signers   []string        `json:"signers,omitempty"`
}
