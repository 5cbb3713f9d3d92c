package backtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/domain"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(i int) time.Time {
	return testutil.SeriesStart.AddDate(0, i, 0)
}

func TestFilter_NilReferenceReturnsSeries(t *testing.T) {
	series := testutil.SyntheticSeries(3, 20, 1)
	out, err := Filter(series, nil)
	require.NoError(t, err)
	assert.Same(t, series, out)
}

func TestFilter_KeepsPeriodsOnOrBeforeReference(t *testing.T) {
	series := testutil.SyntheticSeries(3, 30, 1)
	ref := month(15)

	out, err := Filter(series, &ref)
	require.NoError(t, err)
	assert.Equal(t, 16, out.Len())
	for _, d := range out.Dates {
		assert.False(t, d.After(ref))
	}

	between := month(15).AddDate(0, 0, 10)
	out, err = Filter(series, &between)
	require.NoError(t, err)
	assert.Equal(t, 16, out.Len())
}

func TestFilter_Insufficient(t *testing.T) {
	series := testutil.SyntheticSeries(3, 30, 1)

	tests := []struct {
		name    string
		ref     time.Time
		periods int
	}{
		{"before any data", testutil.SeriesStart.AddDate(-1, 0, 0), 0},
		{"eleven periods", month(10), 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Filter(series, &tt.ref)
			var derr *domain.DataInsufficientError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.periods, derr.Periods)
			assert.Equal(t, domain.MinPeriods, derr.Required)
			assert.Equal(t, SourceFilter, derr.Source)
			require.NotNil(t, derr.ReferenceDate)
			assert.True(t, derr.ReferenceDate.Equal(tt.ref))
		})
	}

	ref := month(11)
	out, err := Filter(series, &ref)
	require.NoError(t, err)
	assert.Equal(t, domain.MinPeriods, out.Len())
}

func TestWindow(t *testing.T) {
	series := testutil.SyntheticSeries(2, 60, 1)
	ref := month(47)

	out, err := Window(series, &ref, 36)
	require.NoError(t, err)
	assert.Equal(t, 36, out.Len())
	assert.True(t, out.End().Equal(ref))
	assert.True(t, out.Start().Equal(month(12)))

	out, err = Window(series, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 60, out.Len())

	_, err = Window(series, &ref, 6)
	assert.True(t, domain.IsDataInsufficient(err))
}

func TestRebalanceDates(t *testing.T) {
	dates := RebalanceDates(month(0), month(18), 6)
	require.Len(t, dates, 3)
	assert.True(t, dates[2].Equal(month(12)))
	assert.Nil(t, RebalanceDates(month(0), month(6), 0))
}

// fixedOptimizer holds the first asset, recording each request.
type fixedOptimizer struct {
	mu       sync.Mutex
	requests []domain.OptimizationRequest
	failAt   *time.Time
}

func (f *fixedOptimizer) Optimize(ctx context.Context, req domain.OptimizationRequest) (*domain.OptimizationResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.failAt != nil && req.ReferenceDate.Equal(*f.failAt) {
		return nil, errors.New("solver exploded")
	}
	return &domain.OptimizationResult{
		Complete:    true,
		IsBacktest:  true,
		Composition: []domain.AllocationItem{{AssetID: 1, Ticker: "A01", Weight: 1}},
	}, nil
}

func TestRunner_Run(t *testing.T) {
	series := testutil.SyntheticSeries(3, 60, 7)
	optimizer := &fixedOptimizer{}
	runner := NewRunner(testutil.NewMockDataProvider(series), optimizer, zerolog.Nop())

	report, err := runner.Run(context.Background(), Options{
		Start:       month(36),
		End:         month(48),
		RiskProfile: domain.RiskProfileModerate,
	})
	require.NoError(t, err)

	require.Len(t, report.Periods, 2)
	require.Len(t, optimizer.requests, 2)
	assert.Equal(t, DefaultWindowMonths, optimizer.requests[0].LookbackMonths)
	assert.True(t, optimizer.requests[1].ReferenceDate.Equal(month(42)))

	// Months 37..48 held in the first asset.
	require.Len(t, report.Returns, 12)
	for i, r := range report.Returns {
		assert.InDelta(t, series.Returns[37+i][0], r, 1e-12)
	}
	assert.Equal(t, 6, report.Periods[0].Periods)
	assert.InDelta(t, report.CumulativeReturn, (1+report.Periods[0].Return)*(1+report.Periods[1].Return)-1, 1e-12)
	assert.GreaterOrEqual(t, report.MaxDrawdown, 0.0)
	assert.False(t, report.Cancelled)
}

func TestRunner_ExcludedShortHistoryKeepsRealizedPeriods(t *testing.T) {
	series := testutil.SyntheticSeries(3, 60, 7)
	provider := testutil.NewMockDataProvider(series)
	provider.SetHistoryStart(3, month(44))
	optimizer := &fixedOptimizer{}
	runner := NewRunner(provider, optimizer, zerolog.Nop())

	report, err := runner.Run(context.Background(), Options{
		Start:       month(36),
		End:         month(48),
		RiskProfile: domain.RiskProfileModerate,
		Excluded:    []int64{3},
	})
	require.NoError(t, err)
	require.Len(t, report.Returns, 12)
	assert.True(t, report.Dates[0].Equal(month(37)))
	assert.Equal(t, []int64{3}, optimizer.requests[0].ExcludedAssets)
}

func TestRunner_AllExcluded(t *testing.T) {
	runner := NewRunner(testutil.NewMockDataProvider(testutil.SyntheticSeries(2, 60, 1)), &fixedOptimizer{}, zerolog.Nop())

	_, err := runner.Run(context.Background(), Options{
		Start:       month(36),
		End:         month(48),
		RiskProfile: domain.RiskProfileModerate,
		Excluded:    []int64{1, 2},
	})
	assert.True(t, domain.IsValidation(err))
}

func TestRunner_SkipsFailedPeriods(t *testing.T) {
	series := testutil.SyntheticSeries(3, 60, 7)
	failAt := month(42)
	optimizer := &fixedOptimizer{failAt: &failAt}
	runner := NewRunner(testutil.NewMockDataProvider(series), optimizer, zerolog.Nop())

	report, err := runner.Run(context.Background(), Options{
		Start:           month(36),
		End:             month(48),
		RiskProfile:     domain.RiskProfileAggressive,
		RebalanceMonths: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedPeriods)
	assert.NotEmpty(t, report.Periods[1].Error)
	assert.Len(t, report.Returns, 6)
}

func TestRunner_Validation(t *testing.T) {
	runner := NewRunner(testutil.NewMockDataProvider(testutil.SyntheticSeries(2, 24, 1)), &fixedOptimizer{}, zerolog.Nop())

	_, err := runner.Run(context.Background(), Options{Start: month(10), End: month(5), RiskProfile: domain.RiskProfileModerate})
	assert.True(t, domain.IsValidation(err))

	_, err = runner.Run(context.Background(), Options{Start: month(0), End: month(5), RiskProfile: domain.RiskProfileNeutral})
	assert.True(t, domain.IsValidation(err))
}

func TestRunner_Cancelled(t *testing.T) {
	runner := NewRunner(testutil.NewMockDataProvider(testutil.SyntheticSeries(2, 60, 1)), &fixedOptimizer{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, Options{Start: month(36), End: month(48), RiskProfile: domain.RiskProfileModerate})
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Periods)
}
