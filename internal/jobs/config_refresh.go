package jobs

import (
	"context"
	"log/slog"
	"time"

	"polymarket-signals/internal/config"
	"polymarket-signals/internal/scheduler"
)

// RefreshConfigOverrides polls the DB-backed override table and swaps the
// config snapshot, the mechanism behind the runtime-override layer of the
// baked-defaults < DB-overrides < environment precedence chain.
func RefreshConfigOverrides(cfgStore *config.Store, log *slog.Logger) scheduler.Job {
	log = log.With("job_name", "refresh_config_overrides")
	return scheduler.Job{
		Name:     "refresh_config_overrides",
		Interval: 60 * time.Second,
		Run: func(ctx context.Context) error {
			return cfgStore.Refresh(ctx)
		},
	}
}
