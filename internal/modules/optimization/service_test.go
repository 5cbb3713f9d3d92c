package optimization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.Engine.PopulationSize = 30
	s.Engine.Generations = 10
	s.Engine.Workers = 2
	return s
}

func newTestService(series *domain.ReturnSeries) *Service {
	return NewService(testutil.NewMockDataProvider(series), testSettings(), zerolog.Nop())
}

func moderate(capital int64) domain.OptimizationRequest {
	return domain.OptimizationRequest{
		RiskProfile: domain.RiskProfileModerate,
		Capital:     decimal.NewFromInt(capital),
	}
}

func assertValidComposition(t *testing.T, result *domain.OptimizationResult, excluded ...int64) {
	t.Helper()
	require.NotEmpty(t, result.Composition)
	sum := 0.0
	for _, item := range result.Composition {
		assert.Greater(t, item.Weight, 0.0)
		assert.NotContains(t, excluded, item.AssetID)
		sum += item.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestService_FiveAssetsScenario(t *testing.T) {
	series := testutil.SyntheticSeries(5, 24, 3)
	seed := uint64(7)
	req := moderate(10000)
	req.PopulationSize = 50
	req.Generations = 30
	req.Seed = &seed

	run := func() *Run {
		out, err := newTestService(series).OptimizeFront(context.Background(), req)
		require.NoError(t, err)
		return out
	}
	first, second := run(), run()

	require.Greater(t, first.Front.Len(), 0)
	for _, s := range first.Front.Solutions {
		sum := 0.0
		for _, w := range s.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, domain.RiskProfileModerate.Params().MaxWeight+1e-9)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	assert.Equal(t, first.Front, second.Front)
	assert.Equal(t, first.Result.Composition, second.Result.Composition)

	result := first.Result
	assertValidComposition(t, result)
	assert.False(t, result.IsBacktest)
	assert.Nil(t, result.ReferenceDate)
	assert.True(t, result.Complete)
	assert.Equal(t, 24, result.PeriodCount)
	assert.True(t, result.PeriodStart.Equal(series.Start()))
	assert.True(t, result.PeriodEnd.Equal(series.End()))
	assert.Equal(t, 50, result.PopulationSize)
	assert.Equal(t, 30, result.Generations)
	assert.Equal(t, uint64(7), result.Seed)
	assert.NotEmpty(t, result.ID)

	total := decimal.Zero
	for _, item := range result.Composition {
		total = total.Add(item.Amount)
	}
	assert.InDelta(t, 10000.0, total.InexactFloat64(), 0.05)
}

func TestService_InsufficientData(t *testing.T) {
	_, err := newTestService(testutil.SyntheticSeries(4, 10, 1)).Optimize(context.Background(), moderate(1000))
	var derr *domain.DataInsufficientError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 10, derr.Periods)
}

func TestService_ReferenceBeforeDataFailsInFilter(t *testing.T) {
	req := moderate(1000)
	ref := testutil.SeriesStart.AddDate(0, -3, 0)
	req.ReferenceDate = &ref

	_, err := newTestService(testutil.SyntheticSeries(4, 30, 1)).Optimize(context.Background(), req)
	var derr *domain.DataInsufficientError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, backtest.SourceFilter, derr.Source)
}

func TestService_Backtest(t *testing.T) {
	series := testutil.SyntheticSeries(4, 36, 1)
	req := moderate(1000)
	ref := testutil.SeriesStart.AddDate(0, 23, 0)
	req.ReferenceDate = &ref

	result, err := newTestService(series).Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsBacktest)
	assert.Equal(t, 24, result.PeriodCount)
	assert.False(t, result.PeriodEnd.After(ref))
}

func TestService_AllExcluded(t *testing.T) {
	svc := newTestService(testutil.SyntheticSeries(3, 24, 1))
	req := moderate(1000)
	req.ExcludedAssets = []int64{1, 2, 3}

	_, err := svc.Optimize(context.Background(), req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "excludedAssets", verr.Field)
}

func TestService_ExcludedAssetsHaveNoWeight(t *testing.T) {
	req := moderate(1000)
	req.ExcludedAssets = []int64{2, 4}

	svc := newTestService(testutil.SyntheticSeries(6, 24, 1))
	run, err := svc.OptimizeFront(context.Background(), req)
	require.NoError(t, err)
	assertValidComposition(t, run.Result, 2, 4)

	// Excluded assets are not candidates at all.
	p, err := svc.Prepare(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5, 6}, p.Series().AssetIDs())
	for _, s := range run.Front.Solutions {
		assert.Len(t, s.Weights, 4)
	}
}

func TestService_ExcludedShortHistoryDoesNotNarrowWindow(t *testing.T) {
	series := testutil.SyntheticSeries(4, 36, 5)
	provider := testutil.NewMockDataProvider(series)
	// Asset 4 only has the last six months.
	provider.SetHistoryStart(4, series.Dates[30])
	svc := NewService(provider, testSettings(), zerolog.Nop())

	req := moderate(1000)
	_, err := svc.Optimize(context.Background(), req)
	var derr *domain.DataInsufficientError
	require.ErrorAs(t, err, &derr)

	req.ExcludedAssets = []int64{4}
	result, err := svc.Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 36, result.PeriodCount)
	assert.True(t, result.PeriodStart.Equal(series.Dates[0]))
	assertValidComposition(t, result, 4)
}

func TestService_RequestValidation(t *testing.T) {
	svc := newTestService(testutil.SyntheticSeries(3, 24, 1))

	tests := []struct {
		name   string
		mutate func(*domain.OptimizationRequest)
	}{
		{"neutral profile", func(r *domain.OptimizationRequest) { r.RiskProfile = domain.RiskProfileNeutral }},
		{"negative capital", func(r *domain.OptimizationRequest) { r.Capital = decimal.NewFromInt(-1) }},
		{"negative horizon", func(r *domain.OptimizationRequest) { r.InvestmentHorizonYears = -1 }},
		{"population of one", func(r *domain.OptimizationRequest) { r.PopulationSize = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := moderate(100)
			tt.mutate(&req)
			_, err := svc.Optimize(context.Background(), req)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestService_UsesTunedConfig(t *testing.T) {
	svc := newTestService(testutil.SyntheticSeries(3, 24, 1))
	svc.SetConfigSource(&testutil.MockConfigSource{Config: &domain.HyperparameterConfig{PopulationSize: 12, Generations: 4}})

	result, err := svc.Optimize(context.Background(), moderate(100))
	require.NoError(t, err)
	assert.True(t, result.TunedConfig)
	assert.Equal(t, 12, result.PopulationSize)
	assert.Equal(t, 4, result.Generations)

	req := moderate(100)
	req.Generations = 3
	result, err = svc.Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.TunedConfig)
	assert.Equal(t, 3, result.Generations)
}

func TestService_LookupFailureFallsBack(t *testing.T) {
	svc := newTestService(testutil.SyntheticSeries(3, 24, 1))
	svc.SetConfigSource(&testutil.MockConfigSource{Err: errors.New("db locked")})

	result, err := svc.Optimize(context.Background(), moderate(100))
	require.NoError(t, err)
	assert.False(t, result.TunedConfig)
	assert.Equal(t, testSettings().Engine.PopulationSize, result.PopulationSize)
}

func TestService_SavesToSink(t *testing.T) {
	svc := newTestService(testutil.SyntheticSeries(3, 24, 1))
	sink := testutil.NewMockPersistenceSink()
	svc.SetPersistenceSink(sink)

	result, err := svc.Optimize(context.Background(), moderate(100))
	require.NoError(t, err)
	require.Len(t, sink.Saved(), 1)
	assert.Equal(t, result.ID, sink.Saved()[0].ID)

	sink.SetError(errors.New("disk full"))
	_, err = svc.Optimize(context.Background(), moderate(100))
	assert.NoError(t, err, "sink failures are logged, not returned")
}

func TestService_ProviderError(t *testing.T) {
	provider := testutil.NewMockDataProvider(testutil.SyntheticSeries(3, 24, 1))
	provider.SetError(errors.New("connection refused"))
	svc := NewService(provider, testSettings(), zerolog.Nop())

	_, err := svc.Optimize(context.Background(), moderate(100))
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
}

func TestService_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(testutil.SyntheticSeries(3, 24, 1)).Optimize(ctx, moderate(100))
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestComposition(t *testing.T) {
	assets := testutil.NewAssetFixtures(3)
	items := composition(assets, []float64{0.25, 0, 0.75}, decimal.NewFromInt(1000))
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].AssetID)
	assert.Equal(t, "A03", items[1].Ticker)
	assert.True(t, items[1].Amount.Equal(decimal.NewFromInt(750)))
	assert.False(t, math.IsNaN(items[0].Weight))
}

func TestService_ShortHorizonTightensCap(t *testing.T) {
	req := moderate(100)
	req.InvestmentHorizonYears = 1
	run, err := newTestService(testutil.SyntheticSeries(6, 24, 1)).OptimizeFront(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, run.Problem.MaxWeight(), 1e-12)
	for _, item := range run.Result.Composition {
		assert.LessOrEqual(t, item.Weight, 0.25+1e-9)
	}
}
