package config

import (
	"context"
	"log/slog"
	"io"
	"testing"

	"polymarket-signals/pkg/types"
)

type fakeSource struct {
	rows []types.AppConfigOverride
}

func (f fakeSource) ListConfigOverrides(ctx context.Context) ([]types.AppConfigOverride, error) {
	return f.rows, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotStartsAtBase(t *testing.T) {
	t.Parallel()
	base := Config{}
	base.Universe.MaxTrackedMarkets = 400
	s := NewStore(base, fakeSource{}, discardLogger())
	snap := s.Snapshot()
	if snap.Universe.MaxTrackedMarkets != 400 {
		t.Fatalf("expected base value, got %d", snap.Universe.MaxTrackedMarkets)
	}
}

func TestRefreshAppliesKnownOverride(t *testing.T) {
	t.Parallel()
	base := Config{}
	base.Universe.MinGammaVolume = 10000
	src := fakeSource{rows: []types.AppConfigOverride{
		{Key: "universe.min_gamma_volume", Value: "25000"},
	}}
	s := NewStore(base, src, discardLogger())
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := s.Snapshot().Universe.MinGammaVolume; got != 25000 {
		t.Fatalf("expected override applied, got %v", got)
	}
}

func TestRefreshIgnoresUnknownKeyWithoutError(t *testing.T) {
	t.Parallel()
	base := Config{}
	src := fakeSource{rows: []types.AppConfigOverride{
		{Key: "nonsense.key", Value: "1"},
	}}
	s := NewStore(base, src, discardLogger())
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh should not fail on unknown key: %v", err)
	}
}

func TestRefreshDoesNotMutateBaseAcrossCalls(t *testing.T) {
	t.Parallel()
	base := Config{}
	base.Arb.MinEdge = 0.01
	src := fakeSource{rows: []types.AppConfigOverride{
		{Key: "arb.min_edge", Value: "0.05"},
	}}
	s := NewStore(base, src, discardLogger())
	_ = s.Refresh(context.Background())
	if s.base.Arb.MinEdge != 0.01 {
		t.Fatalf("base should remain untouched, got %v", s.base.Arb.MinEdge)
	}
}
