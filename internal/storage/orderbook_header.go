package storage

import (
	"context"
	"fmt"
	"time"

	"polymarket-signals/pkg/types"
)

// UpsertOrderbookHeader persists a book's metadata only (no price levels —
// the in-memory cache is authoritative for those). Called on a slow
// cadence by the scheduler so a restarted process can bound how stale its
// freshly-booted in-memory cache is before the first heal completes.
func (s *Store) UpsertOrderbookHeader(ctx context.Context, book types.OrderbookLatest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orderbook_latest_header (token_id, condition_id, tick_size, min_order_size, neg_risk, as_of, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token_id) DO UPDATE SET
			condition_id = excluded.condition_id,
			tick_size = excluded.tick_size,
			min_order_size = excluded.min_order_size,
			neg_risk = excluded.neg_risk,
			as_of = excluded.as_of,
			hash = excluded.hash
	`, book.TokenID, book.ConditionID, book.TickSize.String(), book.MinOrderSize.String(), book.NegRisk,
		book.AsOf.UTC().Format(time.RFC3339), book.Hash)
	if err != nil {
		return fmt.Errorf("upsert orderbook header %s: %w", book.TokenID, err)
	}
	return nil
}

// GetOrderbookHeaderAge returns how long ago token's header was last
// persisted, for the cache's startup staleness check.
func (s *Store) GetOrderbookHeaderAge(ctx context.Context, tokenID string, now time.Time) (time.Duration, error) {
	var asOf string
	err := s.db.GetContext(ctx, &asOf, `SELECT as_of FROM orderbook_latest_header WHERE token_id = ?`, tokenID)
	if err != nil {
		return 0, fmt.Errorf("get orderbook header age %s: %w", tokenID, err)
	}
	t, err := time.Parse(time.RFC3339, asOf)
	if err != nil {
		return 0, fmt.Errorf("parse orderbook header as_of: %w", err)
	}
	return now.Sub(t), nil
}
