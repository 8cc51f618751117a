package custody

import (
	"errors"
	"fmt"
)

// Credential errors are caller bugs: fatal per call, never retried.
var (
	ErrEmptyCredentialSet  = errors.New("session credential set is empty")
	ErrMalformedCredential = errors.New("malformed session credential")
	ErrUntrustedCredential = errors.New("credential carries no owner delegation")
)

// Authorization errors reported by the custody network. Fatal per call.
var (
	ErrKeyNotFound  = errors.New("encrypted key not found")
	ErrAccessDenied = errors.New("access condition not satisfied")
)

// TransportError wraps connectivity failures talking to the custody network.
// Retry policy belongs to the caller, never to the gateway.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("custody transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
