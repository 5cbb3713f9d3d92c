package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/scheduler"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DataDir:    dir,
		ReportsDir: filepath.Join(dir, "reports"),
		Optimizer: config.OptimizerConfig{
			PopulationSize: 20,
			Generations:    5,
			Seed:           42,
			Workers:        2,
			CrossoverRate:  0.9,
			CrossoverEta:   15,
			MutationRate:   0.1,
			MutationEta:    20,
			CVaRConfidence: 0.95,
		},
		Tuning: config.TuningConfig{
			Runs:             1,
			PopulationSizes:  []int{10},
			GenerationCounts: []int{3},
			Parallelism:      1,
		},
		Backup: config.BackupConfig{
			Dir:                 filepath.Join(dir, "backups"),
			Schedule:            "0 0 3 * * *",
			MaintenanceSchedule: "0 0 4 * * 0",
			RetentionDays:       30,
		},
	}
}

func seedUniverse(t *testing.T, repo *universe.Repository, nAssets, nPeriods int) {
	t.Helper()
	ctx := context.Background()
	series := testutil.SyntheticSeries(nAssets, nPeriods, 3)
	for j, asset := range series.Assets {
		id, err := repo.UpsertAsset(ctx, domain.Asset{Ticker: asset.Ticker, Name: asset.Name})
		require.NoError(t, err)

		points := make([]universe.ReturnPoint, len(series.Dates))
		for i, d := range series.Dates {
			points[i] = universe.ReturnPoint{PeriodEnd: d, Value: series.Returns[i][j]}
		}
		require.NoError(t, repo.InsertReturns(ctx, id, points))
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	container, jobs, err := Wire(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer container.Close()

	for _, db := range container.Databases() {
		require.NotNil(t, db)
		assert.NoError(t, db.HealthCheck(context.Background()))
	}
	assert.NotNil(t, container.OptimizationService)
	assert.NotNil(t, container.TuningService)
	assert.NotNil(t, container.BacktestRunner)
	assert.Nil(t, container.R2Client)
	assert.NotNil(t, container.BackupService)
	assert.Len(t, jobs.All(), 4)
}

func TestWire_OptimizationPersistsResult(t *testing.T) {
	cfg := testConfig(t)
	container, _, err := Wire(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer container.Close()

	seedUniverse(t, container.UniverseRepo, 4, 48)

	ctx := context.Background()
	result, err := container.OptimizationService.Optimize(ctx, domain.OptimizationRequest{
		RiskProfile: domain.RiskProfileModerate,
		Capital:     decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Composition)

	saved, err := container.PortfolioRepo.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, saved.ID)
}

func TestWire_ExcludedShortHistoryUsesFullWindow(t *testing.T) {
	cfg := testConfig(t)
	container, _, err := Wire(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer container.Close()

	ctx := context.Background()
	seedUniverse(t, container.UniverseRepo, 3, 36)

	dates := testutil.MonthlyDates(testutil.SeriesStart, 36)
	lateID, err := container.UniverseRepo.UpsertAsset(ctx, domain.Asset{Ticker: "LATE", Name: "Recent listing"})
	require.NoError(t, err)
	points := make([]universe.ReturnPoint, 0, 6)
	for _, d := range dates[30:] {
		points = append(points, universe.ReturnPoint{PeriodEnd: d, Value: 0.01})
	}
	require.NoError(t, container.UniverseRepo.InsertReturns(ctx, lateID, points))

	result, err := container.OptimizationService.Optimize(ctx, domain.OptimizationRequest{
		RiskProfile:    domain.RiskProfileModerate,
		Capital:        decimal.NewFromInt(10000),
		ExcludedAssets: []int64{lateID},
	})
	require.NoError(t, err)
	assert.Equal(t, 36, result.PeriodCount)
	for _, item := range result.Composition {
		assert.NotEqual(t, lateID, item.AssetID)
	}
}

func TestRegisterJobs_Schedules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tuning.Schedule = "0 0 3 * * SUN"
	container, _, err := Wire(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer container.Close()

	sched := scheduler.New(zerolog.Nop())
	_, err = RegisterJobs(container, cfg, sched, zerolog.Nop())
	require.NoError(t, err)

	schedules := make(map[string]string)
	for _, status := range sched.Statuses() {
		schedules[status.Name] = status.Schedule
	}
	assert.Equal(t, map[string]string{
		"retune_hyperparameters": "0 0 3 * * SUN",
		"check_wal_checkpoints":  walCheckpointSchedule,
		"backup_databases":       "0 0 3 * * *",
		"weekly_maintenance":     "0 0 4 * * 0",
	}, schedules)

	cfg.Tuning.Schedule = "whenever"
	_, err = RegisterJobs(container, cfg, scheduler.New(zerolog.Nop()), zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_UnscheduledJobsStayTriggerable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Schedule = ""
	container, _, err := Wire(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer container.Close()

	sched := scheduler.New(zerolog.Nop())
	jobs, err := RegisterJobs(container, cfg, sched, zerolog.Nop())
	require.NoError(t, err)

	statuses := sched.Statuses()
	require.Len(t, statuses, 4)
	for _, status := range statuses {
		switch status.Name {
		case "retune_hyperparameters", "backup_databases":
			assert.Empty(t, status.Schedule, status.Name)
		default:
			assert.NotEmpty(t, status.Schedule, status.Name)
		}
	}
	require.NoError(t, sched.RunNow(jobs.Backup))
	assert.Equal(t, 1, sched.Statuses()[2].Runs)
}

func TestRegisterJobs_BackupRunsAgainstWiredDatabases(t *testing.T) {
	cfg := testConfig(t)
	container, jobs, err := Wire(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer container.Close()

	require.NoError(t, jobs.Backup.Run())
	backups, err := container.BackupService.ListLocalBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	assert.NoError(t, jobs.Maintenance.Run())
}
