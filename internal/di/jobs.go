package di

import (
	"fmt"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

// walCheckpointSchedule runs the WAL check every 30 minutes
const walCheckpointSchedule = "0 */30 * * * *"

// RegisterJobs creates the jobs and schedules them. A nil scheduler only creates them.
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	retune := scheduler.NewRetuneJob(container.TuningService, 0)
	retune.SetLogger(log.With().Str("job", "retune").Logger())
	retune.SetEventEmitter(container.EventBus)

	wal := scheduler.NewCheckWALCheckpointsJob(container.Databases()...)
	wal.SetLogger(log.With().Str("job", "wal_checkpoints").Logger())

	backup := reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
	maintenance := reliability.NewWeeklyMaintenanceJob(container.Databases(), log)

	jobs := &JobInstances{Retune: retune, WALCheckpoints: wal, Backup: backup, Maintenance: maintenance}
	if sched == nil {
		return jobs, nil
	}

	schedules := map[string]string{
		retune.Name():      cfg.Tuning.Schedule,
		wal.Name():         walCheckpointSchedule,
		backup.Name():      cfg.Backup.Schedule,
		maintenance.Name(): cfg.Backup.MaintenanceSchedule,
	}
	// Jobs without a schedule stay available for manual triggering
	for _, job := range jobs.All() {
		schedule := schedules[job.Name()]
		if schedule == "" {
			if err := sched.Register(job); err != nil {
				return nil, err
			}
			log.Info().Str("job", job.Name()).Msg("No schedule set, job runs only when triggered")
			continue
		}
		if err := sched.AddJob(schedule, job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
		}
	}

	return jobs, nil
}
