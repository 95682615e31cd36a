// Package signals implements the two signal evaluators: large/new-wallet
// trade classification and depth-aware binary arbitrage. Both are pure
// with respect to their inputs aside from storage reads/writes — neither
// touches the network.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

// TradeEvaluator classifies newly-persisted trades into LARGE_TAKER_TRADE,
// LARGE_NEW_WALLET_TRADE, and DORMANT_WALLET_REACTIVATION SignalEvents.
type TradeEvaluator struct {
	store  *storage.Store
	cfg    *config.Store
	metric *metrics.Registry
}

// NewTradeEvaluator builds a TradeEvaluator.
func NewTradeEvaluator(store *storage.Store, cfg *config.Store, m *metrics.Registry) *TradeEvaluator {
	return &TradeEvaluator{store: store, cfg: cfg, metric: m}
}

// EvaluateTrade runs the classification rules for one newly-persisted
// trade (spec §4.H) and upserts the wallet's bookkeeping row. Call this
// only for trades that InsertTrade actually accepted, not a
// ConstraintCollision — re-evaluating a duplicate would only re-stamp the
// wallet's last_seen_at and re-attempt signal inserts that the dedupe keys
// then reject (harmless, but wasted work). The wallet row's lifetime
// notional is not accumulated here: UpsertWallet updates last_seen_at only.
func (e *TradeEvaluator) EvaluateTrade(ctx context.Context, t types.Trade) error {
	cfg := e.cfg.Snapshot()

	priorWallet, err := e.store.GetWallet(ctx, t.Wallet)
	walletExisted := err == nil
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("lookup wallet %s: %w", t.Wallet, err)
	}

	now := time.Now().UTC()
	if err := e.store.UpsertWallet(ctx, t.Wallet, now, t.TradeTS); err != nil {
		return fmt.Errorf("upsert wallet %s: %w", t.Wallet, err)
	}

	threshold := decimal.NewFromFloat(cfg.Trades.LargeTradeNotionalUSD)
	if t.NotionalUSD.LessThan(threshold) {
		return nil
	}

	firstSeenAt := now
	if walletExisted {
		firstSeenAt = priorWallet.FirstSeenAt
	}
	isNewWallet := !t.TradeTS.After(firstSeenAt.Add(time.Duration(cfg.Trades.NewWalletMaxAgeHours) * time.Hour))

	marketFloorBreached := false
	if snap, err := e.store.LatestMarketMetricSnapshot(ctx, t.ConditionID); err == nil {
		marketFloorBreached = snap.Liquidity.LessThan(decimal.NewFromFloat(cfg.Universe.MinLiquidity))
	}

	if err := e.emit(ctx, types.SignalLargeTakerTrade, t, severityForNotional(t.NotionalUSD, isNewWallet, marketFloorBreached)); err != nil {
		return err
	}

	if isNewWallet {
		if err := e.emit(ctx, types.SignalLargeNewWalletTrade, t, severityForNotional(t.NotionalUSD, isNewWallet, marketFloorBreached)); err != nil {
			return err
		}
	}

	dormantCutoff := t.TradeTS.Add(-time.Duration(cfg.Trades.DormantMinIdleDays) * 24 * time.Hour)
	if walletExisted && priorWallet.LastSeenAt.Before(dormantCutoff) {
		if err := e.emit(ctx, types.SignalDormantReactivation, t, severityForNotional(t.NotionalUSD, isNewWallet, marketFloorBreached)); err != nil {
			return err
		}
	}

	return nil
}

// severityForNotional applies the notional-band base plus the two +1
// modifiers from spec §4.H, clamped to [1, 5].
func severityForNotional(notional decimal.Decimal, isNewWallet, marketFloorBreached bool) int {
	sev := 1
	switch {
	case notional.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		sev = 5
	case notional.GreaterThanOrEqual(decimal.NewFromInt(250_000)):
		sev = 4
	case notional.GreaterThanOrEqual(decimal.NewFromInt(50_000)):
		sev = 3
	case notional.GreaterThanOrEqual(decimal.NewFromInt(10_000)):
		sev = 2
	}
	if isNewWallet {
		sev++
	}
	if marketFloorBreached {
		sev++
	}
	if sev > 5 {
		sev = 5
	}
	if sev < 1 {
		sev = 1
	}
	return sev
}

func (e *TradeEvaluator) emit(ctx context.Context, signalType types.SignalType, t types.Trade, severity int) error {
	evt := types.SignalEvent{
		ID:          uuid.NewString(),
		SignalType:  signalType,
		DedupeKey:   string(signalType) + ":" + t.DedupeKey(),
		CreatedAt:   time.Now().UTC(),
		Severity:    severity,
		Wallet:      t.Wallet,
		ConditionID: t.ConditionID,
		Payload: types.JSONMap{
			"token_id":     t.TokenID,
			"side":         string(t.Side),
			"price":        t.Price.String(),
			"size":         t.Size.String(),
			"notional_usd": t.NotionalUSD.String(),
			"trade_ts":     t.TradeTS.Format(time.RFC3339),
		},
	}
	err := e.store.InsertSignalEvent(ctx, evt)
	if errs.Is(err, errs.ConstraintCollision) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert signal event %s: %w", evt.DedupeKey, err)
	}
	if e.metric != nil {
		e.metric.SignalsEmittedTotal.WithLabelValues(string(signalType)).Inc()
	}
	return nil
}
