package di

import (
	"context"
	"fmt"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/evolution"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/tuning"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/reporting"
	"github.com/rs/zerolog"
)

// InitializeRepositories builds the repositories on top of the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.UniverseDB == nil || container.TuningDB == nil || container.PortfolioDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}
	container.UniverseRepo = universe.NewRepository(container.UniverseDB.Conn(), log)
	container.HyperparameterRepo = tuning.NewRepository(container.TuningDB.Conn(), log)
	container.PortfolioRepo = optimization.NewPortfolioRepository(container.PortfolioDB.Conn(), log)
	return nil
}

// engineDefaults maps the optimizer configuration onto engine settings
func engineDefaults(cfg *config.Config) evolution.Config {
	o := cfg.Optimizer
	return evolution.Config{
		PopulationSize: o.PopulationSize,
		Generations:    o.Generations,
		Seed:           o.Seed,
		CrossoverRate:  o.CrossoverRate,
		CrossoverEta:   o.CrossoverEta,
		MutationRate:   o.MutationRate,
		MutationEta:    o.MutationEta,
		Workers:        o.Workers,
	}
}

// InitializeServices builds the services and connects them
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)

	// Optimization: universe data in, saved portfolios out, tuned parameters when known
	optSettings := optimization.DefaultSettings()
	optSettings.Engine = engineDefaults(cfg)
	optSettings.Confidence = cfg.Optimizer.CVaRConfidence
	container.OptimizationService = optimization.NewService(container.UniverseRepo, optSettings, log)
	container.OptimizationService.SetPersistenceSink(container.PortfolioRepo)
	container.OptimizationService.SetConfigSource(container.HyperparameterRepo)

	// Reports, uploaded when R2 is configured
	exporter, err := reporting.NewExporter(cfg.ReportsDir, log)
	if err != nil {
		return err
	}
	container.Exporter = exporter
	if cfg.R2.Enabled() {
		r2Client, err := reporting.NewR2Client(context.Background(), cfg.R2, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create R2 client, reports stay local")
		} else {
			container.R2Client = r2Client
			exporter.SetUploader(r2Client)
			log.Info().Str("bucket", cfg.R2.BucketName).Msg("R2 report uploads enabled")
		}
	}

	// Tuning prepares problems exactly like production optimization does
	tuneSettings := tuning.DefaultSettings()
	tuneSettings.Engine = engineDefaults(cfg)
	tuneSettings.Runs = cfg.Tuning.Runs
	tuneSettings.PopulationSizes = cfg.Tuning.PopulationSizes
	tuneSettings.GenerationCounts = cfg.Tuning.GenerationCounts
	tuneSettings.CellTimeLimit = cfg.Tuning.CellTimeLimit
	tuneSettings.Parallelism = cfg.Tuning.Parallelism
	container.TuningService = tuning.NewService(container.OptimizationService, container.HyperparameterRepo, tuneSettings, log)
	container.TuningService.SetExporter(exporter)
	container.TuningService.SetEventEmitter(container.EventBus)

	container.BacktestRunner = backtest.NewRunner(container.UniverseRepo, container.OptimizationService, log)

	// Database archives share the R2 bucket with the reports
	container.BackupService = reliability.NewBackupService(container.Databases(), cfg.Backup.Dir, log)
	if container.R2Client != nil {
		container.BackupService.SetObjectStore(container.R2Client)
	}

	return nil
}
