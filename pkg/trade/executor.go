package trade

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/custody"
	"github.com/xtreamly/tradekeeper/pkg/storage"
)

// Executor consumes one user's credentials and a trade intent and produces a
// trade outcome or a per-user error. Variants are selected at construction.
type Executor interface {
	Execute(ctx context.Context, user storage.User, intent Intent) (*Result, error)
}

// Result is one completed execution.
type Result struct {
	Address  string
	Intent   Intent
	Response *custody.ActionResponse
}

// ExecutionError isolates a failure to one user. The fan-out converts it to
// a logged, non-fatal outcome; it never aborts other users.
type ExecutionError struct {
	Address string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("trade execution failed for %s: %v", e.Address, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// InertExecutor performs no network calls: it logs the intended action and
// succeeds. Safe default for dry runs.
type InertExecutor struct {
	log *zap.SugaredLogger
}

func NewInertExecutor(log *zap.SugaredLogger) *InertExecutor {
	return &InertExecutor{log: log}
}

func (e *InertExecutor) Execute(ctx context.Context, user storage.User, intent Intent) (*Result, error) {
	e.log.Infow("dry_run_trade",
		"address", user.Address, "symbol", intent.Symbol,
		"side", intent.Side, "amount", intent.Amount)
	return &Result{Address: user.Address, Intent: intent}, nil
}

// RemoteExecutor drives the custody gateway: fetch the user's encrypted key
// metadata, then submit a decrypt-and-trade action. Gateway failures
// propagate wrapped; there is no internal retry — retry policy belongs to
// the caller.
type RemoteExecutor struct {
	gateway custody.Gateway
	log     *zap.SugaredLogger
}

func NewRemoteExecutor(gateway custody.Gateway, log *zap.SugaredLogger) *RemoteExecutor {
	return &RemoteExecutor{gateway: gateway, log: log}
}

func (e *RemoteExecutor) Execute(ctx context.Context, user storage.User, intent Intent) (*Result, error) {
	fail := func(err error) (*Result, error) {
		return nil, &ExecutionError{Address: user.Address, Err: err}
	}

	material, err := e.gateway.FetchEncryptedKeyMetadata(ctx, user.SessionCredentials, user.CustodyKeyRef)
	if err != nil {
		return fail(fmt.Errorf("fetch key metadata: %w", err))
	}

	payload := custody.DecryptAndTrade(material, custody.TradeOrder{
		Symbol: intent.Symbol,
		Side:   string(intent.Side),
		Amount: intent.Amount,
	})

	resp, err := e.gateway.SubmitAction(ctx, payload, user.SessionCredentials)
	if err != nil {
		return fail(fmt.Errorf("submit action: %w", err))
	}

	e.log.Infow("trade_executed",
		"address", user.Address, "symbol", intent.Symbol,
		"side", intent.Side, "amount", intent.Amount, "signers", len(resp.Signers))
	return &Result{Address: user.Address, Intent: intent, Response: resp}, nil
}
