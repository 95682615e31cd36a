package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/orderbook"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

type noUniverseOverrides struct{}

func (noUniverseOverrides) ListConfigOverrides(ctx context.Context) ([]types.AppConfigOverride, error) {
	return nil, nil
}

func newTestUniverseStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func universeCandidate(slug, conditionID string, lastSeen time.Time) types.Market {
	return types.Market{
		ConditionID: conditionID,
		Slug:        slug,
		Outcomes:    types.StrList{"Yes", "No"},
		TokenIDs:    types.StrList{"yes-" + conditionID, "no-" + conditionID},
		LastSeenAt:  lastSeen,
	}
}

func insertMetric(t *testing.T, store *storage.Store, conditionID string, volume, liquidity, oi string, ts time.Time) {
	t.Helper()
	err := store.InsertMarketMetricSnapshot(context.Background(), types.MarketMetricSnapshot{
		ConditionID:  conditionID,
		TS:           ts,
		Volume:       decimal.RequireFromString(volume),
		Liquidity:    decimal.RequireFromString(liquidity),
		OpenInterest: decimal.RequireFromString(oi),
	})
	if err != nil {
		t.Fatalf("insert metric snapshot for %s: %v", conditionID, err)
	}
}

func baseUniverseConfig() config.Config {
	var cfg config.Config
	cfg.Universe.MinGammaVolume = 10000
	cfg.Universe.MinLiquidity = 5000
	cfg.Universe.MinOpenInterest = 20000
	cfg.Universe.MaxTrackedMarkets = 100
	return cfg
}

// A candidate clearing only the volume floor is tracked; one clearing none
// of the three floors is dropped; one with no metric snapshot at all is
// dropped (never observed by the metrics sync job yet).
func TestRecomputeUniverseFiltersByVolumeLiquidityOrOpenInterest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestUniverseStore(t)
	now := time.Now().UTC()

	clearsVolume := universeCandidate("clears-volume", "0x01", now)
	clearsNothing := universeCandidate("clears-nothing", "0x02", now)
	noSnapshot := universeCandidate("no-snapshot", "0x03", now)
	for _, mkt := range []types.Market{clearsVolume, clearsNothing, noSnapshot} {
		if _, err := store.UpsertMarket(ctx, mkt); err != nil {
			t.Fatalf("upsert market %s: %v", mkt.Slug, err)
		}
	}
	insertMetric(t, store, clearsVolume.ConditionID, "50000", "100", "100", now)
	insertMetric(t, store, clearsNothing.ConditionID, "1", "1", "1", now)

	cache := orderbook.New()
	cfg := baseUniverseConfig()
	cfgStore := config.NewStore(cfg, noUniverseOverrides{}, discardLogger())

	if err := recomputeUniverse(ctx, store, cache, nil, cfgStore, discardLogger()); err != nil {
		t.Fatalf("recompute universe: %v", err)
	}

	tracked := toSet(cache.Tokens())
	if !tracked[clearsVolume.YesTokenID()] || !tracked[clearsVolume.NoTokenID()] {
		t.Errorf("expected %s to be tracked (clears volume floor)", clearsVolume.Slug)
	}
	if tracked[clearsNothing.YesTokenID()] {
		t.Errorf("did not expect %s to be tracked (clears no floor)", clearsNothing.Slug)
	}
	if tracked[noSnapshot.YesTokenID()] {
		t.Errorf("did not expect %s to be tracked (no metric snapshot)", noSnapshot.Slug)
	}
}

// Manual include/exclude slugs override the floor check entirely.
func TestRecomputeUniverseManualSlugsOverrideFloor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestUniverseStore(t)
	now := time.Now().UTC()

	included := universeCandidate("force-include", "0x11", now)
	excluded := universeCandidate("force-exclude", "0x12", now)
	for _, mkt := range []types.Market{included, excluded} {
		if _, err := store.UpsertMarket(ctx, mkt); err != nil {
			t.Fatalf("upsert market %s: %v", mkt.Slug, err)
		}
	}
	// force-include has no metric snapshot and would otherwise be dropped.
	// force-exclude clears every floor but must still be excluded.
	insertMetric(t, store, excluded.ConditionID, "999999", "999999", "999999", now)

	cache := orderbook.New()
	cfg := baseUniverseConfig()
	cfg.Universe.ManualIncludeSlugs = []string{included.Slug}
	cfg.Universe.ManualExcludeSlugs = []string{excluded.Slug}
	cfgStore := config.NewStore(cfg, noUniverseOverrides{}, discardLogger())

	if err := recomputeUniverse(ctx, store, cache, nil, cfgStore, discardLogger()); err != nil {
		t.Fatalf("recompute universe: %v", err)
	}

	tracked := toSet(cache.Tokens())
	if !tracked[included.YesTokenID()] {
		t.Errorf("expected manually included %s to be tracked despite no snapshot", included.Slug)
	}
	if tracked[excluded.YesTokenID()] {
		t.Errorf("did not expect manually excluded %s to be tracked despite clearing every floor", excluded.Slug)
	}
}

// MaxTrackedMarkets still caps the floor-filtered set, keeping the most
// recently seen markets first.
func TestRecomputeUniverseCapsAtMaxTrackedMarkets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestUniverseStore(t)
	now := time.Now().UTC()

	var newest types.Market
	for i := 0; i < 5; i++ {
		conditionID := "0x2" + string(rune('0'+i))
		lastSeen := now.Add(time.Duration(i) * time.Minute)
		mkt := universeCandidate("cap-test", conditionID, lastSeen)
		mkt.Slug = "cap-test-" + string(rune('0'+i))
		if _, err := store.UpsertMarket(ctx, mkt); err != nil {
			t.Fatalf("upsert market %d: %v", i, err)
		}
		insertMetric(t, store, mkt.ConditionID, "50000", "100", "100", now)
		if i == 4 {
			newest = mkt
		}
	}

	cache := orderbook.New()
	cfg := baseUniverseConfig()
	cfg.Universe.MaxTrackedMarkets = 1
	cfgStore := config.NewStore(cfg, noUniverseOverrides{}, discardLogger())

	if err := recomputeUniverse(ctx, store, cache, nil, cfgStore, discardLogger()); err != nil {
		t.Fatalf("recompute universe: %v", err)
	}

	tokens := cache.Tokens()
	if len(tokens) != 2 { // one binary market -> 2 tokens
		t.Fatalf("expected exactly 2 tokens (1 market) tracked, got %d", len(tokens))
	}
	tracked := toSet(tokens)
	if !tracked[newest.YesTokenID()] {
		t.Errorf("expected most recently seen market %s to survive the cap", newest.Slug)
	}
}
