// Command signalsd runs the read-only Polymarket research/signals
// platform: it never places orders or authenticates to an upstream, it
// only discovers markets, ingests trades and order books, evaluates the
// large-trade and arbitrage signal engines, and dispatches alerts.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires every
//	                              component, starts the scheduler and the
//	                              websocket consumer, waits for SIGINT/SIGTERM
//	internal/config            — YAML + env config, DB-backed runtime overrides
//	internal/storage           — sqlite-backed store: markets, trades, wallets,
//	                              signal events, alert log, config overrides
//	internal/httppool          — shared rate-limited REST client pool
//	internal/normalize         — upstream payload -> canonical domain type
//	internal/orderbook         — in-memory order book cache
//	internal/wsfeed            — market-channel websocket consumer
//	internal/scheduler         — cooperative fixed-interval job runner
//	internal/jobs              — the concrete job bodies sync_*/run_signal_engine_*/alert_dispatcher
//	internal/signals           — trade and arbitrage signal evaluators
//	internal/alerts            — alert dispatcher + channel drivers
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"polymarket-signals/internal/alerts"
	"polymarket-signals/internal/config"
	"polymarket-signals/internal/httppool"
	"polymarket-signals/internal/jobs"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/signals"
	"polymarket-signals/internal/storage"
	"polymarket-signals/internal/wsfeed"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage.DSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	cfgStore := config.NewStore(*cfg, store, logger)
	if err := cfgStore.Refresh(ctx); err != nil {
		logger.Warn("initial config override refresh failed, continuing on baked config", "error", err)
	}

	reg := metrics.New()

	pool := httppool.New([]httppool.UpstreamConfig{
		{Name: "gamma", BaseURL: cfg.Upstream.GammaBaseURL, RequestTimeout: cfg.Upstream.RequestTimeout, BurstCapacity: 20, RatePerSecond: 5},
		{Name: "clob", BaseURL: cfg.Upstream.ClobBaseURL, RequestTimeout: cfg.Upstream.RequestTimeout, BurstCapacity: 20, RatePerSecond: 10},
		{Name: "data", BaseURL: cfg.Upstream.DataBaseURL, RequestTimeout: cfg.Upstream.RequestTimeout, BurstCapacity: 20, RatePerSecond: 10},
	}, cfg.Upstream.MaxConcurrency, reg, logger)

	cache := orderbook.New()
	healer := jobs.NewRESTHealer(pool, cache, store)
	feed := wsfeed.New(cfg.Upstream.WSMarketURL, cache, healer, reg, logger)

	tradeEval := signals.NewTradeEvaluator(store, cfgStore, reg)
	arbEval := signals.NewArbEvaluator(cache, store, cfgStore, reg)

	dispatcher := alerts.New(store, cfgStore, buildChannels(*cfg, logger), defaultAlertRules(), reg, logger)

	walletsInUniverse := func(ctx context.Context) ([]string, error) {
		return store.ListRecentlyActiveWallets(ctx, 500)
	}

	sched := scheduler.New([]scheduler.Job{
		jobs.SyncGammaEvents(pool, store, reg, logger),
		jobs.SyncTagMetadata(pool, store, logger),
		jobs.SyncUniverse(store, cache, feed, cfgStore, logger),
		jobs.SyncOpenInterest(pool, store, logger),
		jobs.SyncLargeTrades(pool, store, cfgStore, tradeEval, reg, logger),
		jobs.SyncOrderbooks(pool, cache, store, logger),
		jobs.SyncPositions(pool, store, walletsInUniverse, logger),
		jobs.RunSignalEngineArb(store, arbEval, logger),
		jobs.AlertDispatcher(dispatcher, logger),
		jobs.RetentionDownsampleSnapshots(store, logger),
		jobs.RefreshConfigOverrides(cfgStore, logger),
	}, reg, logger)

	go func() {
		for {
			if err := feed.Run(ctx); err != nil {
				logger.Error("websocket feed exited", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	logger.Info("signalsd started",
		"max_tracked_markets", cfg.Universe.MaxTrackedMarkets,
		"alert_channels", cfg.Alerts.Channels,
	)

	sched.Run(ctx)
	logger.Info("shutdown complete")
}

func buildChannels(cfg config.Config, logger *slog.Logger) []alerts.Channel {
	var out []alerts.Channel
	for _, name := range cfg.Alerts.Channels {
		switch name {
		case "log":
			out = append(out, alerts.NewLogChannel(logger))
		case "slack":
			out = append(out, alerts.NewSlackChannel(cfg.Alerts.SlackWebhookURL))
		case "telegram":
			out = append(out, alerts.NewTelegramChannel(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID))
		case "email":
			out = append(out, alerts.NewEmailChannel(cfg.Alerts.SMTP))
		}
	}
	return out
}

// defaultAlertRules routes every signal type to every configured channel
// at any severity; operators narrow this by editing the rule list or by
// adding config-driven rule construction later.
func defaultAlertRules() []alerts.Rule {
	return []alerts.Rule{
		{MinSeverity: 1},
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

