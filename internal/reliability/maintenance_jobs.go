package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// BackupJob snapshots the databases and rotates old archives
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "backup_databases"
}

// Run creates a backup, then rotates. A rotation failure does not fail the job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := j.service.CreateBackup(ctx); err != nil {
		return err
	}
	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// WeeklyMaintenanceJob compacts the databases and refreshes query planner statistics
type WeeklyMaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a maintenance job. Nil databases are skipped.
func NewWeeklyMaintenanceJob(databases []*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// Run vacuums every database. A failing database is logged and the rest continue.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	failed := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			failed++
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Int("failed", failed).
		Msg("Weekly maintenance completed")

	if failed > 0 {
		return fmt.Errorf("maintenance failed for %d databases", failed)
	}
	return nil
}

// vacuumDatabase performs VACUUM and PRAGMA optimize on a database
func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB) error {
	var pageCount, pageSize int64
	_ = db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	if _, err := db.Conn().Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize failed: %w", err)
	}

	_ = db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024

	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}
