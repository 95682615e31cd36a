package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-signals/internal/errs"
	"polymarket-signals/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertMarketReportsCreatedOnFirstInsert(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	m := types.Market{
		ConditionID: "0xabc",
		Slug:        "will-it-rain",
		Question:    "Will it rain tomorrow?",
		Outcomes:    types.StrList{"Yes", "No"},
		TokenIDs:    types.StrList{"111", "222"},
		LastSeenAt:  time.Now().UTC(),
	}
	created, err := s.UpsertMarket(ctx, m)
	if err != nil {
		t.Fatalf("upsert market: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true on first insert")
	}

	created, err = s.UpsertMarket(ctx, m)
	if err != nil {
		t.Fatalf("upsert market again: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on second upsert")
	}

	got, err := s.GetMarket(ctx, "0xabc")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if got.Slug != "will-it-rain" || len(got.Outcomes) != 2 {
		t.Fatalf("unexpected market round-trip: %+v", got)
	}
}

func TestInsertTradeDuplicateIsConstraintCollision(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	trade := types.Trade{
		TransactionHash: "0xhash1",
		Wallet:          "0xwallet",
		ConditionID:     "0xabc",
		TokenID:         "111",
		Side:            types.BUY,
		Price:           decimal.RequireFromString("0.5"),
		Size:            decimal.RequireFromString("100"),
		NotionalUSD:     decimal.RequireFromString("50"),
		TradeTS:         time.Now().UTC(),
	}
	if err := s.InsertTrade(ctx, trade); err != nil {
		t.Fatalf("insert trade: %v", err)
	}
	err := s.InsertTrade(ctx, trade)
	if !errs.Is(err, errs.ConstraintCollision) {
		t.Fatalf("expected ConstraintCollision, got %v", err)
	}
}

func TestInsertSignalEventDuplicateDedupeKeyCollides(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	evt := types.SignalEvent{
		ID:         uuid.NewString(),
		SignalType: types.SignalArbBuyBoth,
		DedupeKey:  "ARB_BUY_BOTH:0xabc:hourbucket",
		CreatedAt:  time.Now().UTC(),
		Severity:   3,
		Payload:    types.JSONMap{"edge": "0.02"},
	}
	if err := s.InsertSignalEvent(ctx, evt); err != nil {
		t.Fatalf("insert signal event: %v", err)
	}
	evt.ID = uuid.NewString()
	err := s.InsertSignalEvent(ctx, evt)
	if !errs.Is(err, errs.ConstraintCollision) {
		t.Fatalf("expected ConstraintCollision, got %v", err)
	}
}

func TestConfigOverrideRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetConfigOverride(ctx, "universe.min_gamma_volume", "25000", "operator@example.com"); err != nil {
		t.Fatalf("set override: %v", err)
	}
	rows, err := s.ListConfigOverrides(ctx)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(rows) != 1 || rows[0].Value != "25000" {
		t.Fatalf("unexpected overrides: %+v", rows)
	}

	if err := s.DeleteConfigOverride(ctx, "universe.min_gamma_volume"); err != nil {
		t.Fatalf("delete override: %v", err)
	}
	rows, err = s.ListConfigOverrides(ctx)
	if err != nil {
		t.Fatalf("list overrides after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected override deleted, got %+v", rows)
	}
}

func TestWalletNotionalSinceSumsTrades(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	trade1 := types.Trade{
		TransactionHash: "0xh1", Wallet: "0xw", ConditionID: "0xc", TokenID: "1",
		Side: types.BUY, Price: decimal.RequireFromString("0.5"), Size: decimal.RequireFromString("100"),
		NotionalUSD: decimal.RequireFromString("50"), TradeTS: now,
	}
	trade2 := trade1
	trade2.TransactionHash = "0xh2"
	trade2.NotionalUSD = decimal.RequireFromString("25")

	if err := s.InsertTrade(ctx, trade1); err != nil {
		t.Fatalf("insert trade1: %v", err)
	}
	if err := s.InsertTrade(ctx, trade2); err != nil {
		t.Fatalf("insert trade2: %v", err)
	}

	total, err := s.WalletNotionalSince(ctx, "0xw", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("wallet notional since: %v", err)
	}
	if total != "75.0" && total != "75" {
		t.Fatalf("expected total around 75, got %s", total)
	}
}
