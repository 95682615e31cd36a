package storage

import (
	"context"
	"fmt"
	"time"

	"polymarket-signals/pkg/types"
)

// ListConfigOverrides implements config.OverrideSource.
func (s *Store) ListConfigOverrides(ctx context.Context) ([]types.AppConfigOverride, error) {
	var out []types.AppConfigOverride
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM app_config`); err != nil {
		return nil, fmt.Errorf("list config overrides: %w", err)
	}
	return out, nil
}

// SetConfigOverride upserts one runtime override row (an operator action,
// not a job), stamping who made the change for audit purposes.
func (s *Store) SetConfigOverride(ctx context.Context, key, value, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_config (key, value, updated_at, updated_by) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at, updated_by = excluded.updated_by
	`, key, value, time.Now().UTC().Format(time.RFC3339), updatedBy)
	if err != nil {
		return fmt.Errorf("set config override %s: %w", key, err)
	}
	return nil
}

// DeleteConfigOverride removes an override, reverting that key to its
// baked default.
func (s *Store) DeleteConfigOverride(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_config WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete config override %s: %w", key, err)
	}
	return nil
}
