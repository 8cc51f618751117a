package trade

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/storage"
)

type stubSignals struct {
	volatility float64
	err        error
	symbols    []string
}

func (s *stubSignals) VolatilityPrediction(ctx context.Context, symbol string, horizon int) (float64, error) {
	s.symbols = append(s.symbols, symbol)
	return s.volatility, s.err
}

type fixedPolicy struct {
	side   Side
	amount decimal.Decimal
}

func (p fixedPolicy) Decide(symbol string) (Side, decimal.Decimal) { return p.side, p.amount }

// recordingExecutor fails for addresses in failFor and records call order.
type recordingExecutor struct {
	failFor map[string]error
	calls   []string
}

func (e *recordingExecutor) Execute(ctx context.Context, user storage.User, intent Intent) (*Result, error) {
	e.calls = append(e.calls, user.Address)
	if err, ok := e.failFor[user.Address]; ok {
		return nil, &ExecutionError{Address: user.Address, Err: err}
	}
	return &Result{Address: user.Address, Intent: intent}, nil
}

func newTestTrader(signals SignalSource, exec Executor, threshold float64) *Trader {
	return NewTrader(signals, exec, fixedPolicy{side: Buy, amount: decimal.NewFromInt(1)}, threshold, zap.NewNop().Sugar())
}

func TestShouldTradeAboveThreshold(t *testing.T) {
	signals := &stubSignals{volatility: 0.009}
	tr := newTestTrader(signals, &recordingExecutor{}, DefaultVolatilityThreshold)

	intent, err := tr.ShouldTrade(context.Background(), "ETH", 60)
	if err != nil {
		t.Fatalf("should trade: %v", err)
	}
	if intent == nil {
		t.Fatal("expected an intent above threshold")
	}
	if intent.Symbol != "ETH" || intent.Side != Buy || !intent.Amount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("intent = %+v", intent)
	}
	if len(signals.symbols) != 1 || signals.symbols[0] != "ETH" {
		t.Fatalf("signal queried for %v", signals.symbols)
	}
}

func TestShouldTradeBelowThreshold(t *testing.T) {
	tr := newTestTrader(&stubSignals{volatility: 0.005}, &recordingExecutor{}, DefaultVolatilityThreshold)

	intent, err := tr.ShouldTrade(context.Background(), "ETH", 60)
	if err != nil {
		t.Fatalf("should trade: %v", err)
	}
	if intent != nil {
		t.Fatalf("expected no intent below threshold, got %+v", intent)
	}
}

func TestShouldTradeAtThreshold(t *testing.T) {
	// Equal to the threshold is not "above": no trade.
	tr := newTestTrader(&stubSignals{volatility: DefaultVolatilityThreshold}, &recordingExecutor{}, DefaultVolatilityThreshold)

	intent, err := tr.ShouldTrade(context.Background(), "ETH", 60)
	if err != nil {
		t.Fatalf("should trade: %v", err)
	}
	if intent != nil {
		t.Fatal("threshold value itself must not trigger")
	}
}

func TestShouldTradeSignalErrorPropagates(t *testing.T) {
	boom := errors.New("signal provider 502")
	tr := newTestTrader(&stubSignals{err: boom}, &recordingExecutor{}, DefaultVolatilityThreshold)

	if _, err := tr.ShouldTrade(context.Background(), "ETH", 60); !errors.Is(err, boom) {
		t.Fatalf("got %v, want the signal error", err)
	}
}

func TestTradeForUsersIsolatesFailures(t *testing.T) {
	users := make([]storage.User, 5)
	for i := range users {
		users[i] = storage.User{Address: fmt.Sprintf("0x%040d", i+1)}
	}
	badAddr := users[2].Address

	exec := &recordingExecutor{failFor: map[string]error{badAddr: errors.New("credentials expired")}}
	tr := newTestTrader(&stubSignals{}, exec, DefaultVolatilityThreshold)

	report := tr.TradeForUsers(context.Background(), users, Intent{Symbol: "ETH", Side: Buy, Amount: decimal.NewFromInt(1)})

	if len(exec.calls) != len(users) {
		t.Fatalf("executed for %d users, want all %d despite the failure", len(exec.calls), len(users))
	}
	if len(report.Succeeded) != 4 {
		t.Fatalf("succeeded = %v", report.Succeeded)
	}
	if len(report.Failed) != 1 || report.Failed[0].Address != badAddr {
		t.Fatalf("failed = %+v", report.Failed)
	}
	var execErr *ExecutionError
	if !errors.As(report.Failed[0].Err, &execErr) {
		t.Fatalf("failure error type %T", report.Failed[0].Err)
	}
}

func TestTradeForUsersEnumerationOrder(t *testing.T) {
	users := []storage.User{{Address: "0xccc"}, {Address: "0xaaa"}, {Address: "0xbbb"}}
	exec := &recordingExecutor{}
	tr := newTestTrader(&stubSignals{}, exec, DefaultVolatilityThreshold)

	tr.TradeForUsers(context.Background(), users, Intent{Symbol: "ETH", Side: Sell, Amount: decimal.NewFromInt(1)})

	for i, u := range users {
		if exec.calls[i] != u.Address {
			t.Fatalf("call order %v, want input order", exec.calls)
		}
	}
}

func TestRandomPolicyDecidesAUnit(t *testing.T) {
	p := NewRandomPolicy()
	for i := 0; i < 16; i++ {
		side, amount := p.Decide("ETH")
		if side != Buy && side != Sell {
			t.Fatalf("side = %q", side)
		}
		if !amount.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("amount = %s", amount)
		}
	}
}
