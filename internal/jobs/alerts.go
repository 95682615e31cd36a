package jobs

import (
	"context"
	"log/slog"
	"time"

	"polymarket-signals/internal/alerts"
	"polymarket-signals/internal/scheduler"
)

// AlertDispatcher wraps alerts.Dispatcher.Dispatch as a scheduler job
// (spec §4.G alert_dispatcher).
func AlertDispatcher(d *alerts.Dispatcher, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "alert_dispatcher")
	return scheduler.Job{
		Name:     "alert_dispatcher",
		Interval: 10 * time.Second,
		Run: func(ctx context.Context) error {
			return d.Dispatch(ctx)
		},
	}
}
