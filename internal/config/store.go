package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"polymarket-signals/pkg/types"
)

// OverrideSource reads the current set of DB-backed config overrides. The
// storage package implements this; config stays free of a storage import so
// the dependency points inward.
type OverrideSource interface {
	ListConfigOverrides(ctx context.Context) ([]types.AppConfigOverride, error)
}

// Store holds the baked Config plus the most recently applied DB overrides,
// behind an atomically-swapped pointer. Reads (Snapshot) never block on the
// refresh goroutine.
type Store struct {
	base     Config
	snapshot atomic.Pointer[Config]
	source   OverrideSource
	log      *slog.Logger
}

// NewStore wires a baked Config as the floor and an OverrideSource that a
// scheduler job will poll periodically via Refresh.
func NewStore(base Config, source OverrideSource, log *slog.Logger) *Store {
	s := &Store{base: base, source: source, log: log}
	snap := base
	s.snapshot.Store(&snap)
	return s
}

// Snapshot returns the current resolved config. Lock-free.
func (s *Store) Snapshot() Config {
	return *s.snapshot.Load()
}

// Refresh pulls overrides from the source, applies them on top of the baked
// base, and atomically swaps the snapshot. Environment variables were
// already applied to base at Load time and always win: an override whose
// key has a non-empty POLY_* environment variable (the same name Load
// reads) is skipped, so it never shadows an explicit operator env var.
func (s *Store) Refresh(ctx context.Context) error {
	rows, err := s.source.ListConfigOverrides(ctx)
	if err != nil {
		return err
	}
	next := s.base
	for _, row := range rows {
		envKey := "POLY_" + strings.ToUpper(strings.ReplaceAll(row.Key, ".", "_"))
		if os.Getenv(envKey) != "" {
			continue
		}
		if err := applyOverride(&next, row.Key, row.Value); err != nil {
			s.log.Warn("config override ignored", "key", row.Key, "err", err)
			continue
		}
	}
	s.snapshot.Store(&next)
	return nil
}

// applyOverride mutates cfg in place for the small set of knobs operators
// are expected to tune live, without restarting the process: universe
// thresholds, trade/arb tuning, and alert routing. Unknown keys are
// rejected rather than silently ignored so a typo surfaces in logs.
func applyOverride(cfg *Config, key, rawValue string) error {
	switch key {
	case "universe.min_gamma_volume":
		return decodeInto(rawValue, &cfg.Universe.MinGammaVolume)
	case "universe.min_liquidity":
		return decodeInto(rawValue, &cfg.Universe.MinLiquidity)
	case "universe.min_open_interest":
		return decodeInto(rawValue, &cfg.Universe.MinOpenInterest)
	case "universe.max_tracked_markets":
		return decodeInto(rawValue, &cfg.Universe.MaxTrackedMarkets)
	case "universe.manual_include_slugs":
		return decodeInto(rawValue, &cfg.Universe.ManualIncludeSlugs)
	case "universe.manual_exclude_slugs":
		return decodeInto(rawValue, &cfg.Universe.ManualExcludeSlugs)
	case "trades.large_trade_notional_usd":
		return decodeInto(rawValue, &cfg.Trades.LargeTradeNotionalUSD)
	case "trades.new_wallet_max_age_hours":
		return decodeInto(rawValue, &cfg.Trades.NewWalletMaxAgeHours)
	case "trades.dormant_min_idle_days":
		return decodeInto(rawValue, &cfg.Trades.DormantMinIdleDays)
	case "arb.min_edge":
		return decodeInto(rawValue, &cfg.Arb.MinEdge)
	case "arb.fee_bps":
		return decodeInto(rawValue, &cfg.Arb.FeeBps)
	case "alerts.channels":
		return decodeInto(rawValue, &cfg.Alerts.Channels)
	default:
		return errUnknownKey(key)
	}
}

func decodeInto(raw string, dst interface{}) error {
	return json.Unmarshal([]byte(raw), dst)
}

type errUnknownKey string

func (e errUnknownKey) Error() string { return "unknown override key: " + string(e) }
