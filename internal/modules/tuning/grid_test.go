package tuning

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGridOptions() GridOptions {
	opts := DefaultGridOptions()
	opts.Engine = testEngineConfig()
	opts.Parallelism = 2
	opts.Window = 3
	return opts
}

func TestGridSearchTuner_Run(t *testing.T) {
	p := testProblem(t, 4)
	tuner := NewGridSearchTuner(testGridOptions(), zerolog.Nop())

	report, err := tuner.Run(context.Background(), p, []int{10, 20}, []int{4, 8}, 2, 0, MetricHypervolume)
	require.NoError(t, err)

	assert.NotEmpty(t, report.SessionID)
	assert.Equal(t, 4, report.AssetCount)
	assert.False(t, report.Cancelled)
	require.Len(t, report.Results, 4)
	require.NotNil(t, report.Best)

	for _, r := range report.Results {
		assert.Equal(t, 2, r.Runs)
		assert.Equal(t, 2, r.CompletedRuns)
		assert.False(t, r.Partial)
		assert.Greater(t, r.Hypervolume.Mean, 0.0)
		assert.LessOrEqual(t, r.HypervolumeMin, r.Hypervolume.Mean)
		assert.GreaterOrEqual(t, r.HypervolumeMax, r.Hypervolume.Mean)
		assert.GreaterOrEqual(t, r.FrontSize.Mean, 1.0)
		assert.LessOrEqual(t, r.ConvergedRuns, r.CompletedRuns)
	}

	// Best has the maximal mean hypervolume and results are sorted best first.
	assert.Equal(t, report.Results[0], *report.Best)
	for i := 1; i < len(report.Results); i++ {
		assert.GreaterOrEqual(t, report.Results[i-1].Hypervolume.Mean, report.Results[i].Hypervolume.Mean)
	}
}

func TestGridSearchTuner_Validation(t *testing.T) {
	p := testProblem(t, 3)
	tuner := NewGridSearchTuner(testGridOptions(), zerolog.Nop())

	_, err := tuner.Run(context.Background(), p, nil, []int{5}, 1, 0, MetricHypervolume)
	assert.True(t, domain.IsValidation(err))

	_, err = tuner.Run(context.Background(), p, []int{10}, []int{5}, 0, 0, MetricHypervolume)
	assert.True(t, domain.IsValidation(err))
}

func TestGridSearchTuner_TimeLimitMarksPartial(t *testing.T) {
	p := testProblem(t, 3)
	tuner := NewGridSearchTuner(testGridOptions(), zerolog.Nop())

	report, err := tuner.Run(context.Background(), p, []int{10}, []int{3}, 3, time.Nanosecond, MetricHypervolume)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	r := report.Results[0]
	assert.Equal(t, 1, r.CompletedRuns, "the first run always completes")
	assert.True(t, r.Partial)
	require.NotNil(t, report.Best)
}

func TestGridSearchTuner_Cancelled(t *testing.T) {
	p := testProblem(t, 3)
	tuner := NewGridSearchTuner(testGridOptions(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := tuner.Run(ctx, p, []int{10}, []int{3}, 2, 0, MetricHypervolume)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Nil(t, report.Best)
	assert.Equal(t, 0, report.Results[0].CompletedRuns)
}

func TestBestConfiguration(t *testing.T) {
	results := []TuningResult{
		{PopulationSize: 50, Generations: 30, CompletedRuns: 3, Hypervolume: Stat{Mean: 0.8}, ElapsedSeconds: Stat{Mean: 1}},
		{PopulationSize: 100, Generations: 50, CompletedRuns: 3, Hypervolume: Stat{Mean: 0.9}, ElapsedSeconds: Stat{Mean: 4}},
		{PopulationSize: 200, Generations: 50, CompletedRuns: 3, Hypervolume: Stat{Mean: 0.9}, ElapsedSeconds: Stat{Mean: 2}},
		{PopulationSize: 300, Generations: 150, CompletedRuns: 1, Partial: true, Hypervolume: Stat{Mean: 0.95}, ElapsedSeconds: Stat{Mean: 9}},
		{PopulationSize: 300, Generations: 100, CompletedRuns: 0, Partial: true},
	}

	best, err := BestConfiguration(results, MetricHypervolume)
	require.NoError(t, err)
	assert.Equal(t, 200, best.PopulationSize, "ties on hypervolume go to the faster cell")

	best, err = BestConfiguration(results, MetricElapsed)
	require.NoError(t, err)
	assert.Equal(t, 50, best.PopulationSize)

	_, err = BestConfiguration(results[4:], MetricHypervolume)
	assert.ErrorIs(t, err, ErrNoResults)

	SortResults(results, MetricHypervolume)
	assert.Equal(t, 200, results[0].PopulationSize)
	assert.Equal(t, 100, results[1].PopulationSize)
	assert.Equal(t, 50, results[2].PopulationSize)
	assert.True(t, results[3].Partial)
	assert.Equal(t, 0, results[4].CompletedRuns)
}

func TestBestConfiguration_PartialCellsRankAfterComplete(t *testing.T) {
	results := []TuningResult{
		{PopulationSize: 50, Generations: 10, CompletedRuns: 3, Hypervolume: Stat{Mean: 1.0}},
		{PopulationSize: 100, Generations: 30, CompletedRuns: 3, Hypervolume: Stat{Mean: 2.0}},
		{PopulationSize: 300, Generations: 150, CompletedRuns: 1, Partial: true, Hypervolume: Stat{Mean: 5.0}},
	}

	best, err := BestConfiguration(results, MetricHypervolume)
	require.NoError(t, err)
	assert.Equal(t, 100, best.PopulationSize)
	for _, r := range results {
		if !r.Partial {
			assert.GreaterOrEqual(t, best.Hypervolume.Mean, r.Hypervolume.Mean)
		}
	}

	// With no complete cell the best partial one wins on hypervolume.
	best, err = BestConfiguration([]TuningResult{
		{PopulationSize: 50, Generations: 10, CompletedRuns: 1, Partial: true, Hypervolume: Stat{Mean: 1.0}},
		{PopulationSize: 300, Generations: 150, CompletedRuns: 1, Partial: true, Hypervolume: Stat{Mean: 5.0}},
	}, MetricHypervolume)
	require.NoError(t, err)
	assert.Equal(t, 300, best.PopulationSize)
}
