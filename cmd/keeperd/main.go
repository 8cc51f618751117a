package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtreamly/tradekeeper/params"
	"github.com/xtreamly/tradekeeper/pkg/api"
	"github.com/xtreamly/tradekeeper/pkg/custody"
	"github.com/xtreamly/tradekeeper/pkg/exchange"
	"github.com/xtreamly/tradekeeper/pkg/quorum"
	"github.com/xtreamly/tradekeeper/pkg/scheduler"
	sig "github.com/xtreamly/tradekeeper/pkg/signal"
	"github.com/xtreamly/tradekeeper/pkg/storage"
	"github.com/xtreamly/tradekeeper/pkg/trade"
	"github.com/xtreamly/tradekeeper/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Service.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("keeper_starting", "symbols", cfg.Trading.Symbols, "dry_run", cfg.Trading.DryRun, "custody_mode", cfg.Custody.Mode)

	store, err := storage.OpenUserStore(cfg.Service.DBPath)
	if err != nil {
		sugar.Fatalw("user_store_open_failed", "path", cfg.Service.DBPath, "err", err)
	}
	defer store.Close()

	// The gateway is constructed once here and passed down by reference.
	// Nothing in the trading path reaches for late-bound global state.
	var gateway custody.Gateway
	switch cfg.Custody.Mode {
	case "remote":
		gateway = custody.NewHTTPGateway(cfg.Custody.BaseURL, cfg.Custody.Timeout, sugar)
	default:
		coord := quorum.NewCoordinator(cfg.Custody.DevnetNodes, sugar)
		devnet := custody.NewDevnetGateway(coord, sugar)
		venue := exchange.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.Timeout, sugar)
		devnet.RegisterAction(custody.ActionDecryptAndTrade, exchange.TradeAction(venue))
		gateway = devnet
		sugar.Infow("devnet_custody_network", "nodes", cfg.Custody.DevnetNodes, "need", coord.Size().Need())
	}

	var executor trade.Executor
	if cfg.Trading.DryRun {
		executor = trade.NewInertExecutor(sugar)
	} else {
		executor = trade.NewRemoteExecutor(gateway, sugar)
	}

	signals := sig.NewClient(cfg.Signal.BaseURL, cfg.Signal.APIKey, cfg.Signal.Timeout, sugar)
	trader := trade.NewTrader(signals, executor, trade.NewRandomPolicy(), cfg.Trading.Threshold, sugar)

	server := api.NewServer(store, trader, sugar)
	go func() {
		if err := server.Start(cfg.Service.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sched := scheduler.New(scheduler.Config{
		Symbols:  cfg.Trading.Symbols,
		Interval: cfg.Trading.TickInterval,
		Horizon:  cfg.Trading.Horizon,
		Grace:    cfg.Trading.Grace,
	}, trader, store, util.RealClock{}, sugar)
	sched.OnReport = server.BroadcastReport

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Fatalw("scheduler_failed", "err", err)
	}
	sugar.Info("keeper_stopped")
}
