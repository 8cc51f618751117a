package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/quorum"
)

// Gateway talks to the decentralized key-custody network. Both operations
// block until the network answers; callers bound them with context deadlines.
// Neither operation retries: retry policy belongs to the caller.
type Gateway interface {
	FetchEncryptedKeyMetadata(ctx context.Context, set *SessionCredentialSet, keyRef string) (*EncryptedKeyMaterial, error)
	SubmitAction(ctx context.Context, payload ActionPayload, set *SessionCredentialSet) (*ActionResponse, error)
}

// HTTPGateway reaches a remote custody network over HTTPS.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type fetchKeyRequest struct {
	KeyRef      string                `json:"id"`
	SessionSigs *SessionCredentialSet `json:"sessionSigs"`
}

type submitActionRequest struct {
	Payload     ActionPayload         `json:"payload"`
	SessionSigs *SessionCredentialSet `json:"sessionSigs"`
}

type gatewayError struct {
	Error string `json:"error"`
}

func (g *HTTPGateway) FetchEncryptedKeyMetadata(ctx context.Context, set *SessionCredentialSet, keyRef string) (*EncryptedKeyMaterial, error) {
	if set.Len() == 0 {
		return nil, ErrEmptyCredentialSet
	}

	var material EncryptedKeyMaterial
	err := g.post(ctx, "/v1/keys/metadata", "", fetchKeyRequest{KeyRef: keyRef, SessionSigs: set}, &material)
	if err != nil {
		return nil, err
	}
	return &material, nil
}

func (g *HTTPGateway) SubmitAction(ctx context.Context, payload ActionPayload, set *SessionCredentialSet) (*ActionResponse, error) {
	if set.Len() == 0 {
		return nil, ErrEmptyCredentialSet
	}

	// One key per submission: a duplicated request (scheduler overlap, retry
	// at a higher layer) must not trigger a second quorum execution.
	idemKey := uuid.NewString()

	var resp ActionResponse
	err := g.post(ctx, "/v1/actions/execute", idemKey, submitActionRequest{Payload: payload, SessionSigs: set}, &resp)
	if err != nil {
		return nil, err
	}
	g.log.Debugw("action_executed", "kind", payload.Kind, "idempotency_key", idemKey, "signers", len(resp.Signers))
	return &resp, nil
}

func (g *HTTPGateway) post(ctx context.Context, path, idemKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("X-Idempotency-Key", idemKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return g.mapError(resp.StatusCode, data, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// mapError converts network-reported failures onto the local taxonomy.
func (g *HTTPGateway) mapError(status int, body []byte, path string) error {
	var ge gatewayError
	_ = json.Unmarshal(body, &ge)

	switch {
	case status == http.StatusNotFound:
		return ErrKeyNotFound
	case status == http.StatusForbidden:
		return ErrAccessDenied
	case ge.Error == "quorum_failure" || status == http.StatusConflict:
		return fmt.Errorf("%w: network reported %q", quorum.ErrQuorumFailure, ge.Error)
	default:
		return &TransportError{Op: path, Err: fmt.Errorf("status %d: %s", status, ge.Error)}
	}
}
