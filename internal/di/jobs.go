package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers background jobs.
// An empty MaintenanceSchedule keeps the job available for manual runs only.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)

	maintenance := scheduler.NewHistoryMaintenanceJob(container.HistoryDB)
	maintenance.SetLogger(log.With().Str("job", maintenance.Name()).Logger())
	container.MaintenanceJob = maintenance

	if cfg.MaintenanceSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, maintenance); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", maintenance.Name(), err)
		}
	}

	return nil
}
