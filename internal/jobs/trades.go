package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/httppool"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/normalize"
	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/signals"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

const tradesPageLimit = 500

// SyncLargeTrades pages through the taker-only, cash-notional-filtered
// trades endpoint, inserts each normalized trade, and runs the trade
// signal evaluator over every row that was newly (not a dedupe collision)
// persisted (spec §4.G sync_large_trades, §4.H).
func SyncLargeTrades(pool *httppool.Pool, store *storage.Store, cfgStore *config.Store, eval *signals.TradeEvaluator, m *metrics.Registry, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_large_trades")
	var lastSeen time.Time

	return scheduler.Job{
		Name:     "sync_large_trades",
		Interval: 45 * time.Second,
		Run: func(ctx context.Context) error {
			cfg := cfgStore.Snapshot()
			cutoff := computeCutoff(lastSeen, cfg.Trades)
			newestThisRun := lastSeen

			offset := 0
			for page := 0; page < cfg.Trades.MaxPages; page++ {
				var raw []types.DataAPITrade
				err := pool.Get(ctx, "data", "/trades", map[string]string{
					"takerOnly":    "true",
					"filterType":   "CASH",
					"filterAmount": fmt.Sprintf("%.2f", cfg.Trades.LargeTradeNotionalUSD),
					"limit":        fmt.Sprintf("%d", tradesPageLimit),
					"offset":       fmt.Sprintf("%d", offset),
				}, &raw)
				if err != nil {
					if errs.Is(err, errs.Throttled) {
						log.Warn("throttled mid-page, truncating", "offset", offset)
						break
					}
					return err
				}
				if len(raw) == 0 {
					break
				}

				reachedSafetyBoundary := false
				for _, rt := range raw {
					trade, err := normalize.Trade(rt)
					if err != nil {
						m.IngestDroppedTotal.WithLabelValues("data", "parse_error").Inc()
						continue
					}
					if trade.TradeTS.Before(cutoff) {
						reachedSafetyBoundary = true
						continue
					}
					if trade.TradeTS.After(newestThisRun) {
						newestThisRun = trade.TradeTS
					}

					err = store.InsertTrade(ctx, trade)
					if errs.Is(err, errs.ConstraintCollision) {
						continue
					}
					if err != nil {
						return fmt.Errorf("insert trade: %w", err)
					}

					if err := eval.EvaluateTrade(ctx, trade); err != nil {
						log.Error("trade signal evaluation failed", "dedupe_key", trade.DedupeKey(), "err", err)
					}
				}

				if reachedSafetyBoundary || len(raw) < tradesPageLimit {
					break
				}
				offset += tradesPageLimit

				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			lastSeen = newestThisRun
			return nil
		},
	}
}

// computeCutoff picks the point before which trades are assumed already
// ingested: last_trade_ts_seen - safety window, or an initial lookback
// bound on cold start when lastSeen is the zero value.
func computeCutoff(lastSeen time.Time, cfg config.TradesConfig) time.Time {
	safety := time.Duration(cfg.SafetyWindowSeconds) * time.Second
	if lastSeen.IsZero() {
		return time.Now().UTC().Add(-time.Duration(cfg.InitialLookbackHours) * time.Hour)
	}
	return lastSeen.Add(-safety)
}

// SyncPositions refreshes exposure rows for every wallet seen trading in
// the tracked universe (spec §4.G sync_positions).
func SyncPositions(pool *httppool.Pool, store *storage.Store, wallets func(ctx context.Context) ([]string, error), log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_positions")
	return scheduler.Job{
		Name:     "sync_positions",
		Interval: 600 * time.Second,
		Run: func(ctx context.Context) error {
			addrs, err := wallets(ctx)
			if err != nil {
				return fmt.Errorf("list tracked wallets: %w", err)
			}
			asOf := time.Now().UTC()
			for _, addr := range addrs {
				var positions []types.PositionEntry
				err := pool.Get(ctx, "data", "/positions", map[string]string{"user": addr}, &positions)
				if err != nil {
					if errs.Is(err, errs.Throttled) || errs.Is(err, errs.TransientUpstream) {
						log.Warn("positions fetch failed for wallet, continuing", "wallet", addr, "err", err)
						continue
					}
					return err
				}
				for _, p := range positions {
					exposure, err := normalize.WalletExposure(p, addr, asOf)
					if err != nil {
						continue
					}
					if err := store.InsertWalletExposure(ctx, exposure); err != nil {
						log.Error("insert wallet exposure failed", "wallet", addr, "err", err)
					}
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			return nil
		},
	}
}
