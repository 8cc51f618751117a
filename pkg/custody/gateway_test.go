package custody

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/quorum"
)

func TestHTTPGatewayFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/keys/metadata" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			KeyRef string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.KeyRef != "key-1" {
			t.Errorf("key ref = %q", req.KeyRef)
		}
		json.NewEncoder(w).Encode(EncryptedKeyMaterial{
			Ciphertext:        "Y2lwaGVy",
			DataToEncryptHash: "abc123",
		})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, 5*time.Second, zap.NewNop().Sugar())
	material, err := gw.FetchEncryptedKeyMetadata(context.Background(), ownerSet("0xAb"), "key-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if material.Ciphertext != "Y2lwaGVy" {
		t.Fatalf("material = %+v", material)
	}
}

func TestHTTPGatewaySubmitActionSendsIdempotencyKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("X-Idempotency-Key"))
		json.NewEncoder(w).Encode(ActionResponse{Response: json.RawMessage(`"ok"`)})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, 5*time.Second, zap.NewNop().Sugar())
	set := ownerSet("0xAb")
	payload := ActionPayload{Kind: ActionDecryptAndReturn, Version: ActionVersion}

	for i := 0; i < 2; i++ {
		if _, err := gw.SubmitAction(context.Background(), payload, set); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if len(keys) != 2 || keys[0] == "" || keys[0] == keys[1] {
		t.Fatalf("idempotency keys = %v, want two distinct non-empty keys", keys)
	}
}

func TestHTTPGatewayErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"error":"unknown key"}`, ErrKeyNotFound},
		{"forbidden", http.StatusForbidden, `{"error":"access denied"}`, ErrAccessDenied},
		{"quorum conflict", http.StatusConflict, `{"error":"nodes diverged"}`, quorum.ErrQuorumFailure},
		{"quorum tag", http.StatusInternalServerError, `{"error":"quorum_failure"}`, quorum.ErrQuorumFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gw := NewHTTPGateway(srv.URL, 5*time.Second, zap.NewNop().Sugar())
			_, err := gw.FetchEncryptedKeyMetadata(context.Background(), ownerSet("0xAb"), "key-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestHTTPGatewayTransportError(t *testing.T) {
	gw := NewHTTPGateway("http://127.0.0.1:1", time.Second, zap.NewNop().Sugar())
	_, err := gw.FetchEncryptedKeyMetadata(context.Background(), ownerSet("0xAb"), "key-1")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %T (%v), want *TransportError", err, err)
	}
}

func TestHTTPGatewayRejectsEmptySet(t *testing.T) {
	gw := NewHTTPGateway("http://unreachable.invalid", time.Second, zap.NewNop().Sugar())

	var empty SessionCredentialSet
	if _, err := gw.FetchEncryptedKeyMetadata(context.Background(), &empty, "key-1"); !errors.Is(err, ErrEmptyCredentialSet) {
		t.Fatalf("fetch: got %v", err)
	}
	if _, err := gw.SubmitAction(context.Background(), ActionPayload{}, &empty); !errors.Is(err, ErrEmptyCredentialSet) {
		t.Fatalf("submit: got %v", err)
	}
}
