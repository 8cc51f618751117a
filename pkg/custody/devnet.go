package custody

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/xtreamly/tradekeeper/pkg/quorum"
)

// RunOncer is the side-effect primitive handed to action implementations.
// quorum.Env satisfies it.
type RunOncer interface {
	RunOnce(ctx context.Context, name string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// ActionFunc implements one action kind. It runs on every quorum node with
// the reconstructed key and must route every externally visible side effect
// through the RunOncer.
type ActionFunc func(ctx context.Context, ro RunOncer, keyHex string, params ActionParams) ([]byte, error)

// DevnetGateway is an in-process custody network: a quorum coordinator over a
// local key vault. It honors the same contract as the remote network and
// backs development mode and the protocol tests.
type DevnetGateway struct {
	coord *quorum.Coordinator
	vault *keyVault
	log   *zap.SugaredLogger

	mu      sync.RWMutex
	actions map[ActionKind]ActionFunc
}

func NewDevnetGateway(coord *quorum.Coordinator, log *zap.SugaredLogger) *DevnetGateway {
	g := &DevnetGateway{
		coord:   coord,
		vault:   newKeyVault(),
		log:     log,
		actions: make(map[ActionKind]ActionFunc),
	}
	g.RegisterAction(ActionDecryptAndReturn, decryptAndReturnAction)
	return g
}

// RegisterAction wires an implementation for an action kind. The trade action
// is registered by the caller so the gateway stays venue-agnostic.
func (g *DevnetGateway) RegisterAction(kind ActionKind, fn ActionFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions[kind] = fn
}

// ImportKey encrypts a signing key under the owner's gate and stores it.
// A fresh custody reference is minted when keyRef is empty; either way the
// stored reference is returned alongside the encrypted material.
func (g *DevnetGateway) ImportKey(keyRef, privateKeyHex, ownerAddress string) (string, *EncryptedKeyMaterial, error) {
	if keyRef == "" {
		keyRef = uuid.NewString()
	}
	material, err := g.vault.importKey(keyRef, privateKeyHex, ownerAddress)
	if err != nil {
		return "", nil, err
	}
	g.log.Infow("key_imported", "key_ref", keyRef, "owner", ownerAddress)
	return keyRef, material, nil
}

func (g *DevnetGateway) FetchEncryptedKeyMetadata(ctx context.Context, set *SessionCredentialSet, keyRef string) (*EncryptedKeyMaterial, error) {
	caller, err := OwnerFromSet(set)
	if err != nil {
		return nil, err
	}
	return g.vault.metadata(keyRef, caller)
}

func (g *DevnetGateway) SubmitAction(ctx context.Context, payload ActionPayload, set *SessionCredentialSet) (*ActionResponse, error) {
	caller, err := OwnerFromSet(set)
	if err != nil {
		return nil, err
	}
	if payload.Version != ActionVersion {
		return nil, fmt.Errorf("unsupported action version %d", payload.Version)
	}

	g.mu.RLock()
	fn, ok := g.actions[payload.Kind]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown action kind %q", payload.Kind)
	}

	// Threshold release: the plaintext is reconstructed node-locally only
	// after enough nodes have independently satisfied the condition.
	gate := newReleaseGate(g.coord.Size().Need())

	requestID := uuid.NewString()
	resp, err := g.coord.Execute(ctx, requestID, func(ctx context.Context, env *quorum.Env) ([]byte, error) {
		for _, cond := range payload.Params.AccessControlConditions {
			if !cond.Satisfied(caller) {
				return nil, ErrAccessDenied
			}
		}
		if err := gate.arriveAndWait(ctx); err != nil {
			return nil, err
		}

		keyHex, err := g.vault.decrypt(payload.Params.Ciphertext, payload.Params.DataToEncryptHash)
		if err != nil {
			return nil, err
		}
		return fn(ctx, env, keyHex, payload.Params)
	})
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}

	signers := make([]string, len(resp.Signers))
	for i, id := range resp.Signers {
		signers[i] = string(id)
	}
	return &ActionResponse{Response: resp.Output, Signature: resp.AggSig, Signers: signers}, nil
}

func decryptAndReturnAction(ctx context.Context, ro RunOncer, keyHex string, params ActionParams) ([]byte, error) {
	return json.Marshal(keyHex)
}

// releaseGate blocks decryption until the threshold number of nodes have
// passed their local condition check.
type releaseGate struct {
	mu       sync.Mutex
	need     int
	arrived  int
	released chan struct{}
}

func newReleaseGate(need int) *releaseGate {
	return &releaseGate{need: need, released: make(chan struct{})}
}

func (r *releaseGate) arriveAndWait(ctx context.Context) error {
	r.mu.Lock()
	r.arrived++
	if r.arrived == r.need {
		close(r.released)
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.released:
		return nil
	}
}

// keyVault stores encrypted signing keys. Ciphertexts use a SHAKE256 stream
// keyed by a per-vault secret; dataToEncryptHash is the SHA-256 of the
// plaintext and doubles as the decryption integrity check.
type keyVault struct {
	mu     sync.RWMutex
	secret []byte
	keys   map[string]vaultEntry
}

type vaultEntry struct {
	material EncryptedKeyMaterial
	owner    string
}

func newKeyVault() *keyVault {
	secret := sha256.Sum256([]byte(uuid.NewString()))
	return &keyVault{secret: secret[:], keys: make(map[string]vaultEntry)}
}

func (v *keyVault) importKey(keyRef, privateKeyHex, owner string) (*EncryptedKeyMaterial, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("empty private key")
	}
	plain := []byte(privateKeyHex)
	sum := sha256.Sum256(plain)

	material := EncryptedKeyMaterial{
		Ciphertext:        base64.StdEncoding.EncodeToString(v.stream(plain)),
		DataToEncryptHash: hex.EncodeToString(sum[:]),
		AccessCondition:   OwnerGate(owner),
	}

	v.mu.Lock()
	v.keys[keyRef] = vaultEntry{material: material, owner: owner}
	v.mu.Unlock()
	return &material, nil
}

func (v *keyVault) metadata(keyRef, caller string) (*EncryptedKeyMaterial, error) {
	v.mu.RLock()
	entry, ok := v.keys[keyRef]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !entry.material.AccessCondition.Satisfied(caller) {
		return nil, ErrAccessDenied
	}
	m := entry.material
	return &m, nil
}

func (v *keyVault) decrypt(ciphertext, dataToEncryptHash string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrAccessDenied)
	}
	plain := v.stream(raw)
	sum := sha256.Sum256(plain)
	if hex.EncodeToString(sum[:]) != dataToEncryptHash {
		return "", fmt.Errorf("%w: hash mismatch", ErrAccessDenied)
	}
	return string(plain), nil
}

// stream XORs data with a SHAKE256 keystream derived from the vault secret.
// Symmetric: applying it twice recovers the input.
func (v *keyVault) stream(data []byte) []byte {
	shake := sha3.NewShake256()
	shake.Write(v.secret)
	pad := make([]byte, len(data))
	shake.Read(pad)
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ pad[i]
	}
	return out
}
