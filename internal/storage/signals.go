package storage

import (
	"context"
	"fmt"

	"polymarket-signals/internal/errs"
	"polymarket-signals/pkg/types"
)

// InsertSignalEvent inserts a signal, returning errs.ConstraintCollision if
// a signal with the same dedupe key already exists — the classifier may be
// re-evaluated on overlapping pages and must stay idempotent.
func (s *Store) InsertSignalEvent(ctx context.Context, e types.SignalEvent) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO signal_events (id, signal_type, dedupe_key, created_at, severity, wallet, condition_id, payload)
		VALUES (:id, :signal_type, :dedupe_key, :created_at, :severity, :wallet, :condition_id, :payload)
	`, e)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.New(errs.ConstraintCollision, "storage.InsertSignalEvent", err)
		}
		return fmt.Errorf("insert signal event %s: %w", e.DedupeKey, err)
	}
	return nil
}

// ListUndispatchedSignals returns signal events created after afterCreatedAt
// for the alert dispatcher to evaluate. Signals are immutable and
// append-only, so a created_at cursor is enough — no dispatched flag needed.
func (s *Store) ListUndispatchedSignals(ctx context.Context, afterCreatedAt string, limit int) ([]types.SignalEvent, error) {
	var out []types.SignalEvent
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM signal_events WHERE created_at > ? ORDER BY created_at ASC LIMIT ?
	`, afterCreatedAt, limit)
	if err != nil {
		return nil, fmt.Errorf("list undispatched signals: %w", err)
	}
	return out, nil
}

// InsertAlertLog records one delivery attempt.
func (s *Store) InsertAlertLog(ctx context.Context, a types.AlertLog) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO alert_log (id, signal_event_id, channel, notification_key, sent_at, status, error, severity)
		VALUES (:id, :signal_event_id, :channel, :notification_key, :sent_at, :status, :error, :severity)
	`, a)
	if err != nil {
		return fmt.Errorf("insert alert log: %w", err)
	}
	return nil
}

// LastAlertForKey returns the most recent alert_log row for a
// (channel, notification_key) pair, used by the dispatcher's dedupe-window
// and severity-escalation checks. Returns sql.ErrNoRows if never sent.
func (s *Store) LastAlertForKey(ctx context.Context, channel, notificationKey string) (types.AlertLog, error) {
	var a types.AlertLog
	err := s.db.GetContext(ctx, &a, `
		SELECT * FROM alert_log WHERE channel = ? AND notification_key = ? ORDER BY sent_at DESC LIMIT 1
	`, channel, notificationKey)
	if err != nil {
		return types.AlertLog{}, fmt.Errorf("last alert for key: %w", err)
	}
	return a, nil
}
