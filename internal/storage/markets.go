package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"polymarket-signals/pkg/types"
)

// UpsertMarket inserts a new market or refreshes an existing one's
// denormalized fields and last_seen_at. It reports whether the row was
// newly created so callers can emit a NEW_MARKET signal exactly once.
func (s *Store) UpsertMarket(ctx context.Context, m types.Market) (created bool, err error) {
	var existing int
	err = s.db.GetContext(ctx, &existing, `SELECT COUNT(*) FROM markets WHERE condition_id = ?`, m.ConditionID)
	if err != nil {
		return false, fmt.Errorf("check market existence: %w", err)
	}
	created = existing == 0

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO markets (condition_id, market_id, event_id, slug, question, tag_ids, neg_risk, outcomes, token_ids, start_time, end_time, last_seen_at)
		VALUES (:condition_id, :market_id, :event_id, :slug, :question, :tag_ids, :neg_risk, :outcomes, :token_ids, :start_time, :end_time, :last_seen_at)
		ON CONFLICT (condition_id) DO UPDATE SET
			market_id = excluded.market_id,
			event_id = excluded.event_id,
			slug = excluded.slug,
			question = excluded.question,
			tag_ids = excluded.tag_ids,
			neg_risk = excluded.neg_risk,
			outcomes = excluded.outcomes,
			token_ids = excluded.token_ids,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			last_seen_at = excluded.last_seen_at
	`, m)
	if err != nil {
		return false, fmt.Errorf("upsert market %s: %w", m.ConditionID, err)
	}
	return created, nil
}

// GetMarket returns the market for conditionID, or sql.ErrNoRows if absent.
func (s *Store) GetMarket(ctx context.Context, conditionID string) (types.Market, error) {
	var m types.Market
	err := s.db.GetContext(ctx, &m, `SELECT * FROM markets WHERE condition_id = ?`, conditionID)
	if err != nil {
		return types.Market{}, fmt.Errorf("get market %s: %w", conditionID, err)
	}
	return m, nil
}

// ListTrackedCandidates returns every market, for the universe job to
// filter and rank against current volume/liquidity/open-interest snapshots.
func (s *Store) ListTrackedCandidates(ctx context.Context) ([]types.Market, error) {
	var out []types.Market
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM markets`); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return out, nil
}

// UpsertTag inserts or refreshes a tag dictionary row (sync_tag_metadata).
func (s *Store) UpsertTag(ctx context.Context, id int, label, slug string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, label, slug, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET label = excluded.label, slug = excluded.slug, updated_at = excluded.updated_at
	`, id, label, slug, updatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert tag %d: %w", id, err)
	}
	return nil
}

// InsertMarketMetricSnapshot appends one metric row. Append-only: no update
// path, matching the time-series nature of the table.
func (s *Store) InsertMarketMetricSnapshot(ctx context.Context, snap types.MarketMetricSnapshot) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO market_metrics_ts (condition_id, ts, volume, liquidity, open_interest, best_bid_yes, best_ask_yes, spread_yes)
		VALUES (:condition_id, :ts, :volume, :liquidity, :open_interest, :best_bid_yes, :best_ask_yes, :spread_yes)
	`, snap)
	if err != nil {
		return fmt.Errorf("insert market metric snapshot: %w", err)
	}
	return nil
}

// LatestMarketMetricSnapshot returns the most recent snapshot for a market,
// or sql.ErrNoRows if none exists yet.
func (s *Store) LatestMarketMetricSnapshot(ctx context.Context, conditionID string) (types.MarketMetricSnapshot, error) {
	var snap types.MarketMetricSnapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT * FROM market_metrics_ts WHERE condition_id = ? ORDER BY ts DESC LIMIT 1
	`, conditionID)
	if err != nil {
		return types.MarketMetricSnapshot{}, fmt.Errorf("latest market metric snapshot %s: %w", conditionID, err)
	}
	return snap, nil
}

// DownsampleAndPruneSnapshots implements the retention_downsample_snapshots
// job: collapses per-minute rows older than retainMinuteCutoff to one row
// per hour (the latest row of each hour is kept as representative; values
// are not averaged), then
// deletes rows older than deleteCutoff entirely.
func (s *Store) DownsampleAndPruneSnapshots(ctx context.Context, retainMinuteCutoff, deleteCutoff time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin downsample tx: %w", err)
	}
	defer tx.Rollback()

	// Keep one row per (condition_id, hour) among rows older than the
	// minute-retention cutoff: the row with the max ts in that hour.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM market_metrics_ts
		WHERE ts < ?
		AND ts NOT IN (
			SELECT MAX(ts) FROM market_metrics_ts
			WHERE ts < ?
			GROUP BY condition_id, substr(ts, 1, 13)
		)
	`, retainMinuteCutoff.UTC().Format(time.RFC3339), retainMinuteCutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("downsample market metrics: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM market_metrics_ts WHERE ts < ?`, deleteCutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("prune market metrics: %w", err)
	}

	return tx.Commit()
}

// IsNotFound reports whether err is the "no rows" sentinel, for callers
// that want to distinguish absence from a real storage failure.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
