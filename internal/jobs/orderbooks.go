package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/httppool"
	"polymarket-signals/internal/normalize"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

// SyncOrderbooks is the REST polling fallback that keeps every tracked
// token's book fresh even when the websocket consumer is reconnecting or
// a subscription silently drops (spec §4.G sync_orderbooks). It always
// writes through normalize.Book into the same in-memory cache the
// websocket consumer mutates — ApplySnapshot is idempotent against a
// stale REST response racing a newer websocket delta because the cache
// compares AsOf, never blindly overwriting a fresher entry.
func SyncOrderbooks(pool *httppool.Pool, cache *orderbook.Cache, store *storage.Store, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_orderbooks")
	return scheduler.Job{
		Name:     "sync_orderbooks",
		Interval: 20 * time.Second,
		Run: func(ctx context.Context) error {
			for _, tokenID := range cache.Tokens() {
				var resp types.BookResponse
				err := pool.Get(ctx, "clob", "/book", map[string]string{"token_id": tokenID}, &resp)
				if err != nil {
					if errs.Is(err, errs.Throttled) || errs.Is(err, errs.TransientUpstream) {
						log.Warn("book fetch failed, will retry next tick", "token_id", tokenID, "err", err)
						continue
					}
					return err
				}
				book, err := normalize.Book(resp)
				if err != nil {
					log.Warn("book normalization failed", "token_id", tokenID, "err", err)
					continue
				}
				cache.ApplySnapshot(book)
				if err := store.UpsertOrderbookHeader(ctx, book); err != nil {
					log.Error("persist orderbook header failed", "token_id", tokenID, "err", err)
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

const openInterestBatchSize = 50

// SyncOpenInterest batches tracked condition IDs into open-interest lookups
// and appends a MarketMetricSnapshot row per market (spec §4.G
// sync_open_interest).
func SyncOpenInterest(pool *httppool.Pool, store *storage.Store, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_open_interest")
	return scheduler.Job{
		Name:     "sync_open_interest",
		Interval: 300 * time.Second,
		Run: func(ctx context.Context) error {
			markets, err := store.ListTrackedCandidates(ctx)
			if err != nil {
				return err
			}

			for start := 0; start < len(markets); start += openInterestBatchSize {
				end := start + openInterestBatchSize
				if end > len(markets) {
					end = len(markets)
				}
				batch := markets[start:end]
				ids := make([]string, len(batch))
				for i, mkt := range batch {
					ids[i] = mkt.ConditionID
				}

				var entries []types.OpenInterestEntry
				err := pool.Get(ctx, "clob", "/open-interest", map[string]string{
					"markets": joinComma(ids),
				}, &entries)
				if err != nil {
					if errs.Is(err, errs.Throttled) || errs.Is(err, errs.TransientUpstream) {
						log.Warn("open interest batch failed, continuing", "err", err)
						continue
					}
					return err
				}

				now := time.Now().UTC()
				for _, e := range entries {
					prev, _ := store.LatestMarketMetricSnapshot(ctx, e.Market)
					snap := prev
					snap.ConditionID = e.Market
					snap.TS = now
					snap.OpenInterest = mustDecimalOrZero(string(e.Value))
					if err := store.InsertMarketMetricSnapshot(ctx, snap); err != nil {
						log.Error("insert metric snapshot failed", "condition_id", e.Market, "err", err)
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

func joinComma(values []string) string {
	return strings.Join(values, ",")
}

func mustDecimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
