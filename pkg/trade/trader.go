// Package trade holds the decision loop and the per-user fan-out.
package trade

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/storage"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// DefaultVolatilityThreshold is the signal level above which a trade is
// triggered.
const DefaultVolatilityThreshold = 0.008260869599999996

// Intent is a transient trade decision; never persisted.
type Intent struct {
	Symbol string
	Side   Side
	Amount decimal.Decimal
}

// SignalSource provides the market signal the decision loop evaluates.
type SignalSource interface {
	VolatilityPrediction(ctx context.Context, symbol string, horizon int) (float64, error)
}

// Policy chooses side and amount once a trade is triggered. An explicit
// extension point: the trigger says when to trade, the policy says what.
type Policy interface {
	Decide(symbol string) (Side, decimal.Decimal)
}

// RandomPolicy picks a uniform random side and one unit. A placeholder
// until a real strategy is supplied.
type RandomPolicy struct {
	rnd *rand.Rand
}

func NewRandomPolicy() *RandomPolicy {
	return &RandomPolicy{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *RandomPolicy) Decide(symbol string) (Side, decimal.Decimal) {
	side := Buy
	if p.rnd.Intn(2) == 0 {
		side = Sell
	}
	return side, decimal.NewFromInt(1)
}

// Trader evaluates the market signal and applies the decision to every
// enrolled user.
type Trader struct {
	signals   SignalSource
	exec      Executor
	policy    Policy
	threshold float64
	log       *zap.SugaredLogger
}

func NewTrader(signals SignalSource, exec Executor, policy Policy, threshold float64, log *zap.SugaredLogger) *Trader {
	return &Trader{signals: signals, exec: exec, policy: policy, threshold: threshold, log: log}
}

// ShouldTrade fetches the volatility score for symbol and returns an intent
// when it exceeds the threshold, nil otherwise. Signal failures propagate:
// the caller aborts this symbol's tick, never trades blind.
func (t *Trader) ShouldTrade(ctx context.Context, symbol string, horizon int) (*Intent, error) {
	volatility, err := t.signals.VolatilityPrediction(ctx, symbol, horizon)
	if err != nil {
		return nil, err
	}

	if volatility <= t.threshold {
		t.log.Debugw("volatility_below_threshold", "symbol", symbol, "volatility", volatility, "threshold", t.threshold)
		return nil, nil
	}

	side, amount := t.policy.Decide(symbol)
	t.log.Infow("trade_triggered", "symbol", symbol, "volatility", volatility, "side", side, "amount", amount)
	return &Intent{Symbol: symbol, Side: side, Amount: amount}, nil
}

// Failure is one user's isolated fan-out failure.
type Failure struct {
	Address string
	Err     error
}

// Report summarizes one fan-out.
type Report struct {
	Succeeded []string
	Failed    []Failure
}

// TradeForUsers applies intent to every user in enumeration order. One
// user's failure is recorded and must never perturb the others: all N
// executions run regardless of earlier outcomes.
func (t *Trader) TradeForUsers(ctx context.Context, users []storage.User, intent Intent) Report {
	var report Report
	for _, user := range users {
		_, err := t.exec.Execute(ctx, user, intent)
		if err != nil {
			t.log.Errorw("trade_failed", "address", user.Address, "symbol", intent.Symbol, "err", err)
			report.Failed = append(report.Failed, Failure{Address: user.Address, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, user.Address)
	}
	return report
}
