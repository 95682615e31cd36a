// Package jobs implements the concrete scheduler.Job bodies: discovery,
// universe selection, trade/book/position ingestion and retention. Each
// constructor closes over the dependencies one job needs and returns a
// scheduler.Job ready to hand to scheduler.New.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"polymarket-signals/internal/errs"
	"polymarket-signals/internal/httppool"
	"polymarket-signals/internal/metrics"
	"polymarket-signals/internal/normalize"
	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/storage"
	"polymarket-signals/pkg/types"
)

const gammaPageLimit = 100

// SyncGammaEvents pages through the events endpoint, upserting every
// market and emitting a NEW_MARKET SignalEvent the first time a
// condition_id is observed (spec §4.G sync_gamma_events).
func SyncGammaEvents(pool *httppool.Pool, store *storage.Store, m *metrics.Registry, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_gamma_events")
	return scheduler.Job{
		Name:     "sync_gamma_events",
		Interval: 600 * time.Second,
		Run: func(ctx context.Context) error {
			offset := 0
			now := time.Now().UTC()
			for {
				var page []types.GammaEvent
				err := pool.Get(ctx, "gamma", "/events", map[string]string{
					"limit":  fmt.Sprintf("%d", gammaPageLimit),
					"offset": fmt.Sprintf("%d", offset),
					"active": "true",
					"closed": "false",
				}, &page)
				if err != nil {
					if errs.Is(err, errs.Throttled) {
						log.Warn("throttled mid-page, stopping for this tick", "offset", offset)
						return nil
					}
					return err
				}
				if len(page) == 0 {
					break
				}

				for _, ev := range page {
					market, err := normalize.Market(ev, now)
					if err != nil {
						m.IngestDroppedTotal.WithLabelValues("gamma", string(errs.New(errs.ParseError, "", err).Kind)).Inc()
						continue
					}
					created, err := store.UpsertMarket(ctx, market)
					if err != nil {
						return fmt.Errorf("upsert market %s: %w", market.ConditionID, err)
					}
					if created {
						if err := emitNewMarket(ctx, store, m, market); err != nil {
							log.Error("emit NEW_MARKET failed", "condition_id", market.ConditionID, "err", err)
						}
					}
				}

				if len(page) < gammaPageLimit {
					break
				}
				offset += gammaPageLimit

				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			return nil
		},
	}
}

func emitNewMarket(ctx context.Context, store *storage.Store, m *metrics.Registry, market types.Market) error {
	evt := types.SignalEvent{
		ID:          uuid.NewString(),
		SignalType:  types.SignalNewMarket,
		DedupeKey:   string(types.SignalNewMarket) + ":" + market.ConditionID,
		CreatedAt:   time.Now().UTC(),
		Severity:    1,
		ConditionID: market.ConditionID,
		Payload: types.JSONMap{
			"slug":     market.Slug,
			"question": market.Question,
			"neg_risk": market.NegRisk,
		},
	}
	err := store.InsertSignalEvent(ctx, evt)
	if errs.Is(err, errs.ConstraintCollision) {
		return nil
	}
	if err == nil {
		m.SignalsEmittedTotal.WithLabelValues(string(types.SignalNewMarket)).Inc()
	}
	return err
}

// SyncTagMetadata refreshes the tag dictionary from the tags endpoint. Runs
// on a slow cadence (6-12h in production config) since tag taxonomies
// rarely change.
func SyncTagMetadata(pool *httppool.Pool, store *storage.Store, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "sync_tag_metadata")
	return scheduler.Job{
		Name:     "sync_tag_metadata",
		Interval: 8 * time.Hour,
		Run: func(ctx context.Context) error {
			var tags []types.GammaTag
			if err := pool.Get(ctx, "gamma", "/tags", nil, &tags); err != nil {
				return err
			}
			now := time.Now().UTC()
			for _, t := range tags {
				if err := store.UpsertTag(ctx, t.ID, t.Label, t.Slug, now); err != nil {
					log.Error("upsert tag failed", "tag_id", t.ID, "err", err)
				}
			}
			return nil
		},
	}
}
