package jobs

import (
	"context"
	"log/slog"
	"time"

	"polymarket-signals/internal/scheduler"
	"polymarket-signals/internal/storage"
)

const (
	snapshotMinuteRetention = 30 * 24 * time.Hour
	snapshotHardDelete      = 365 * 24 * time.Hour
)

// RetentionDownsampleSnapshots collapses 1-minute MarketMetricSnapshot rows
// older than 30 days into hourly rows and deletes rows older than a year,
// implementing the retention policy §3 states but doesn't name as a §4.G
// job in its own right.
func RetentionDownsampleSnapshots(store *storage.Store, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "retention_downsample_snapshots")
	return scheduler.Job{
		Name:     "retention_downsample_snapshots",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()
			return store.DownsampleAndPruneSnapshots(ctx, now.Add(-snapshotMinuteRetention), now.Add(-snapshotHardDelete))
		},
	}
}
