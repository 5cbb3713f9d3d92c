package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanStdDev(t *testing.T) {
	mean, std := MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), std, 1e-12)
}

func TestStdDev_ShortInputs(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{3}))
}

func TestPopStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, PopStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	assert.Equal(t, 0.0, PopStdDev(nil))
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]float64{3, -1, 8, 2})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 8.0, hi)
}

func TestCumulativeReturn(t *testing.T) {
	assert.InDelta(t, 0.21, CumulativeReturn([]float64{0.1, 0.1}), 1e-12)
	assert.Equal(t, 0.0, CumulativeReturn(nil))
}

func TestAnnualizedReturn(t *testing.T) {
	monthly := make([]float64, 12)
	for i := range monthly {
		monthly[i] = 0.01
	}
	assert.InDelta(t, math.Pow(1.01, 12)-1, AnnualizedReturn(monthly, PeriodsPerYear), 1e-12)

	// Two years of the same growth annualizes to the same rate.
	twoYears := append(append([]float64{}, monthly...), monthly...)
	assert.InDelta(t, math.Pow(1.01, 12)-1, AnnualizedReturn(twoYears, PeriodsPerYear), 1e-12)
}

func TestSharpeRatio_ZeroVolatility(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0, PeriodsPerYear))
}

func TestSharpeRatio(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.03, 0.01, 0.0, 0.02}
	expected := Mean(returns) * 12 / (StdDev(returns) * math.Sqrt(12))
	assert.InDelta(t, expected, SharpeRatio(returns, 0, PeriodsPerYear), 1e-12)
	assert.Greater(t, SharpeRatio(returns, 0, PeriodsPerYear), 0.0)
}

func TestMaxDrawdown(t *testing.T) {
	// 1.0 -> 1.1 -> 0.88 -> 0.968: peak 1.1, trough 0.88.
	assert.InDelta(t, 0.2, MaxDrawdown([]float64{0.1, -0.2, 0.1}), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02}))
}
