package jobs

import (
	"context"
	"log/slog"
	"time"

	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/signals"
	"polymarket-signals/internal/storage"
)

// RunSignalEngineArb evaluates every tracked binary market for an
// executable arbitrage on a fixed cadence, separate from the websocket and
// REST book writers that keep the cache fresh (spec §4.G
// run_signal_engine_arb).
func RunSignalEngineArb(store *storage.Store, eval *signals.ArbEvaluator, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "run_signal_engine_arb")
	return scheduler.Job{
		Name:     "run_signal_engine_arb",
		Interval: 30 * time.Second,
		Run: func(ctx context.Context) error {
			markets, err := store.ListTrackedCandidates(ctx)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			for _, mkt := range markets {
				if !mkt.IsBinary() {
					continue
				}
				if err := eval.EvaluateMarket(ctx, mkt, now); err != nil {
					log.Error("arb evaluation failed", "condition_id", mkt.ConditionID, "err", err)
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
