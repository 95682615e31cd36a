package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"polymarket-signals/internal/errs"
	"polymarket-signals/pkg/types"
)

// InsertTrade inserts a trade, returning errs.ConstraintCollision (not a
// hard error) if a trade with the same dedupe key was already ingested —
// the at-least-once delivery contract means duplicate pages are expected,
// not exceptional.
func (s *Store) InsertTrade(ctx context.Context, t types.Trade) error {
	t.IngestedAt = time.Now().UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO trades (transaction_hash, composite_hash, wallet, condition_id, token_id, side, price, size, notional_usd, trade_ts, ingested_at)
		VALUES (:transaction_hash, :composite_hash, :wallet, :condition_id, :token_id, :side, :price, :size, :notional_usd, :trade_ts, :ingested_at)
	`, t)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.New(errs.ConstraintCollision, "storage.InsertTrade", err)
		}
		return fmt.Errorf("insert trade %s: %w", t.DedupeKey(), err)
	}
	return nil
}

// isUniqueViolation recognizes modernc.org/sqlite's unique-constraint error
// text; the driver doesn't expose a typed sentinel the way pq does.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

// WalletNotionalSince sums a wallet's notional USD traded since cutoff. The
// trade classifiers in internal/signals do not call it.
func (s *Store) WalletNotionalSince(ctx context.Context, wallet string, cutoff time.Time) (string, error) {
	var total string
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(CAST(notional_usd AS REAL)), 0) FROM trades
		WHERE wallet = ? AND trade_ts >= ?
	`, wallet, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("wallet notional since %s: %w", wallet, err)
	}
	return total, nil
}

// UpsertWallet creates or refreshes a wallet's first/last-seen bookkeeping.
// firstTradeTS is only written on first insert; later calls leave it
// untouched so a wallet's age is always measured from its true first trade.
func (s *Store) UpsertWallet(ctx context.Context, address string, seenAt, tradeTS time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (address, first_seen_at, last_seen_at, first_trade_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET last_seen_at = excluded.last_seen_at
	`, address, seenAt.UTC().Format(time.RFC3339), seenAt.UTC().Format(time.RFC3339), tradeTS.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert wallet %s: %w", address, err)
	}
	return nil
}

// GetWallet returns a wallet row, or sql.ErrNoRows if the wallet has never
// been observed.
func (s *Store) GetWallet(ctx context.Context, address string) (types.Wallet, error) {
	var w types.Wallet
	err := s.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE address = ?`, address)
	if err != nil {
		return types.Wallet{}, fmt.Errorf("get wallet %s: %w", address, err)
	}
	return w, nil
}

// ListRecentlyActiveWallets returns canonical wallet addresses ordered by
// most-recently-seen, for sync_positions to refresh exposure on wallets
// that are actually still trading rather than every wallet ever observed.
func (s *Store) ListRecentlyActiveWallets(ctx context.Context, limit int) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `
		SELECT address FROM wallets ORDER BY last_seen_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recently active wallets: %w", err)
	}
	return out, nil
}

// InsertWalletExposure appends one positions-endpoint observation.
func (s *Store) InsertWalletExposure(ctx context.Context, e types.WalletExposure) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO wallet_exposure (wallet, condition_id, token_id, size, redeemable, as_of)
		VALUES (:wallet, :condition_id, :token_id, :size, :redeemable, :as_of)
	`, e)
	if err != nil {
		return fmt.Errorf("insert wallet exposure: %w", err)
	}
	return nil
}
