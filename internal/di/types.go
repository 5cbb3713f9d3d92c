/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency. It is built once by Wire and
 * handed to the HTTP server, the scheduler and the CLI.
 */
package di

import (
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/tuning"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/reporting"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	UniverseDB  *database.DB // assets and monthly returns
	TuningDB    *database.DB // hyperparameter configurations
	PortfolioDB *database.DB // saved optimization results

	// Repositories
	UniverseRepo       *universe.Repository
	HyperparameterRepo *tuning.Repository
	PortfolioRepo      *optimization.PortfolioRepository

	// Services
	EventBus            *events.Bus
	Exporter            *reporting.Exporter
	R2Client            *reporting.R2Client // nil unless R2 is configured
	OptimizationService *optimization.Service
	TuningService       *tuning.Service
	BacktestRunner      *backtest.Runner
	BackupService       *reliability.BackupService
}

// JobInstances holds the scheduled jobs
type JobInstances struct {
	Retune         *scheduler.RetuneJob
	WALCheckpoints *scheduler.CheckWALCheckpointsJob
	Backup         *reliability.BackupJob
	Maintenance    *reliability.WeeklyMaintenanceJob
}

// All returns the jobs as a slice, for manual triggering
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.Retune, j.WALCheckpoints, j.Backup, j.Maintenance}
}

// Databases returns the open databases
func (c *Container) Databases() []*database.DB {
	return []*database.DB{c.UniverseDB, c.TuningDB, c.PortfolioDB}
}

// Close closes every open database, returning the first error
func (c *Container) Close() error {
	var first error
	for _, db := range c.Databases() {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
