package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
)

// walWarnFrames is the WAL size, in frames, above which a checkpoint is forced.
const walWarnFrames = 1000

// HistoryMaintenanceJob checks the price history database and keeps its WAL
// file from growing without bound.
type HistoryMaintenanceJob struct {
	log     zerolog.Logger
	db      *database.DB
	timeout time.Duration
}

// NewHistoryMaintenanceJob creates a new HistoryMaintenanceJob
func NewHistoryMaintenanceJob(db *database.DB) *HistoryMaintenanceJob {
	return &HistoryMaintenanceJob{
		log:     zerolog.Nop(),
		db:      db,
		timeout: time.Minute,
	}
}

// SetLogger sets the logger for the job
func (j *HistoryMaintenanceJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *HistoryMaintenanceJob) Name() string {
	return "history_maintenance"
}

// Run verifies integrity, then checkpoints the WAL (truncating it when large)
// and refreshes query planner statistics.
func (j *HistoryMaintenanceJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("History database not initialized, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("History database integrity check failed")
		return fmt.Errorf("database %s failed health check: %w", j.db.Name(), err)
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	if err := j.db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	if frames > walWarnFrames {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, truncating")
		if _, err := j.db.Conn().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("failed to truncate WAL: %w", err)
		}
	}

	if _, err := j.db.Conn().ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}

	j.log.Info().
		Str("database", j.db.Name()).
		Int("wal_frames", frames).
		Msg("History maintenance completed")

	return nil
}
