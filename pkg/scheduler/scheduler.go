// Package scheduler fires the decision loop on a fixed cadence per tracked
// symbol.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xtreamly/tradekeeper/pkg/storage"
	"github.com/xtreamly/tradekeeper/pkg/trade"
	"github.com/xtreamly/tradekeeper/pkg/util"
)

// UserSource loads the enrolled user set at fan-out time.
type UserSource interface {
	List() ([]storage.User, error)
}

type Config struct {
	Symbols  []string
	Interval time.Duration
	Horizon  int
	// Grace bounds how long shutdown waits for in-flight fan-outs.
	Grace time.Duration
}

type Scheduler struct {
	cfg    Config
	trader *trade.Trader
	users  UserSource
	clock  util.Clock
	log    *zap.SugaredLogger

	// OnReport, when set, receives every completed fan-out.
	OnReport func(symbol string, intent trade.Intent, report trade.Report)

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func New(cfg Config, trader *trade.Trader, users UserSource, clock util.Clock, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		trader:   trader,
		users:    users,
		clock:    clock,
		log:      log,
		inflight: make(map[string]bool),
	}
}

// Run drives ticks until ctx is cancelled, then waits up to the grace period
// for in-flight fan-outs. Partially completed fan-outs are acceptable (they
// are isolated per user) and are not retried on restart.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infow("scheduler_started", "symbols", s.cfg.Symbols, "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case <-s.clock.After(s.cfg.Interval):
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// Tick processes symbols in configured order. A symbol whose previous
// fan-out is still in flight is skipped: two ticks must never run
// concurrently for the same symbol, or the exchange sees duplicate triggers.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, symbol := range s.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if !s.acquire(symbol) {
			s.log.Warnw("tick_skipped_overlap", "symbol", symbol)
			continue
		}
		s.tickSymbol(ctx, symbol)
		s.release(symbol)
	}
}

func (s *Scheduler) tickSymbol(ctx context.Context, symbol string) {
	intent, err := s.trader.ShouldTrade(ctx, symbol, s.cfg.Horizon)
	if err != nil {
		// Aborts this symbol's tick only; other symbols and later ticks
		// proceed.
		s.log.Errorw("decision_failed", "symbol", symbol, "err", err)
		return
	}
	if intent == nil {
		return
	}

	users, err := s.users.List()
	if err != nil {
		s.log.Errorw("load_users_failed", "symbol", symbol, "err", err)
		return
	}
	if len(users) == 0 {
		s.log.Infow("no_enrolled_users", "symbol", symbol)
		return
	}

	report := s.trader.TradeForUsers(ctx, users, *intent)
	s.log.Infow("fanout_complete",
		"symbol", symbol, "side", intent.Side, "amount", intent.Amount,
		"succeeded", len(report.Succeeded), "failed", len(report.Failed))

	if s.OnReport != nil {
		s.OnReport(symbol, *intent, report)
	}
}

func (s *Scheduler) acquire(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[symbol] {
		return false
	}
	s.inflight[symbol] = true
	return true
}

func (s *Scheduler) release(symbol string) {
	s.mu.Lock()
	delete(s.inflight, symbol)
	s.mu.Unlock()
}

func (s *Scheduler) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler_stopped")
		return nil
	case <-time.After(s.cfg.Grace):
		s.log.Warn("scheduler_stopped_with_inflight_work")
		return nil
	}
}
