package jobs

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/storage"
	"polymarket-signals/internal/wsfeed"
	"polymarket-signals/pkg/types"
)

// SyncUniverse recomputes the tracked token set every tick (spec §4.G
// sync_universe): candidates clearing any of volume/liquidity/open-interest
// floors against their latest indexed metric snapshot, manual
// include/exclude slugs always honored, capped at MaxTrackedMarkets. A
// singleflight group collapses concurrent triggers
// (e.g. a manual admin refresh racing the scheduled tick) into one
// recomputation, mirroring how the teacher's scanner avoided overlapping
// Gamma polls via its own ticker-gated Run loop, generalized here to a
// dedupe primitive since this job can also be triggered out-of-band.
func SyncUniverse(store *storage.Store, cache *orderbook.Cache, feed *wsfeed.Feed, cfgStore *config.Store, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_universe")
	var sf singleflight.Group

	return scheduler.Job{
		Name:     "sync_universe",
		Interval: 900 * time.Second,
		Run: func(ctx context.Context) error {
			_, err, _ := sf.Do("recompute", func() (interface{}, error) {
				return nil, recomputeUniverse(ctx, store, cache, feed, cfgStore, log)
			})
			return err
		},
	}
}

func recomputeUniverse(ctx context.Context, store *storage.Store, cache *orderbook.Cache, feed *wsfeed.Feed, cfgStore *config.Store, log *slog.Logger) error {
	cfg := cfgStore.Snapshot()
	candidates, err := store.ListTrackedCandidates(ctx)
	if err != nil {
		return err
	}

	excluded := toSet(cfg.Universe.ManualExcludeSlugs)
	included := toSet(cfg.Universe.ManualIncludeSlugs)
	minVolume := decimal.NewFromFloat(cfg.Universe.MinGammaVolume)
	minLiquidity := decimal.NewFromFloat(cfg.Universe.MinLiquidity)
	minOpenInterest := decimal.NewFromFloat(cfg.Universe.MinOpenInterest)

	var selected []types.Market
	var manual []types.Market
	for _, mkt := range candidates {
		if excluded[mkt.Slug] {
			continue
		}
		if included[mkt.Slug] {
			manual = append(manual, mkt)
			continue
		}
		snap, err := store.LatestMarketMetricSnapshot(ctx, mkt.ConditionID)
		if err != nil {
			if !storage.IsNotFound(err) {
				log.Warn("latest market metric snapshot lookup failed", "condition_id", mkt.ConditionID, "err", err)
			}
			continue
		}
		clearsFloor := snap.Volume.GreaterThanOrEqual(minVolume) ||
			snap.Liquidity.GreaterThanOrEqual(minLiquidity) ||
			snap.OpenInterest.GreaterThanOrEqual(minOpenInterest)
		if !clearsFloor {
			continue
		}
		selected = append(selected, mkt)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].LastSeenAt.After(selected[j].LastSeenAt)
	})

	budget := cfg.Universe.MaxTrackedMarkets - len(manual)
	if budget < 0 {
		budget = 0
	}
	if len(selected) > budget {
		selected = selected[:budget]
	}
	tracked := append(manual, selected...)

	tokenSet := make(map[string]string, len(tracked)*2) // token_id -> condition_id
	for _, mkt := range tracked {
		if !mkt.IsBinary() {
			continue
		}
		tokenSet[mkt.YesTokenID()] = mkt.ConditionID
		tokenSet[mkt.NoTokenID()] = mkt.ConditionID
	}

	existing := cache.Tokens()
	existingSet := toSet(existing)
	tokenIDs := make([]string, 0, len(tokenSet))
	for tok, cond := range tokenSet {
		tokenIDs = append(tokenIDs, tok)
		if !existingSet[tok] {
			cache.EnsureToken(tok, cond)
		}
	}
	for _, tok := range existing {
		if _, ok := tokenSet[tok]; !ok {
			cache.RemoveToken(tok)
		}
	}

	if feed != nil {
		if err := feed.UpdateUniverse(ctx, tokenIDs); err != nil {
			log.Error("update websocket universe failed", "err", err)
		}
	}

	log.Info("universe recomputed", "tracked_markets", len(tracked), "tracked_tokens", len(tokenIDs))
	return nil
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
