package tuning

import (
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/quality"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConvergence(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		window    int
		threshold float64
		want      int
		ok        bool
	}{
		{"settles after ramp", []float64{1, 2, 3, 4, 5, 5, 5, 5}, 3, 0.01, 6, true},
		{"flat from start", []float64{2, 2, 2, 2}, 3, 0.01, 2, true},
		{"never settles", []float64{1, 2, 3, 4, 5, 6}, 3, 0.01, 0, false},
		{"shorter than window", []float64{1, 1}, 3, 0.01, 0, false},
		{"window too small", []float64{1, 1, 1}, 1, 0.01, 0, false},
		{"late jump resets", []float64{5, 5, 5, 5, 9}, 3, 0.01, 0, false},
		{"within loose threshold", []float64{100, 100.5, 101, 101}, 3, 0.02, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectConvergence(tt.values, tt.window, tt.threshold)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricHypervolume, m)

	m, err = ParseMetric("spacing")
	require.NoError(t, err)
	assert.Equal(t, MetricSpacing, m)
	assert.False(t, m.HigherIsBetter())

	_, err = ParseMetric("sharpe")
	assert.True(t, domain.IsValidation(err))
}

func TestMetricOf(t *testing.T) {
	q := quality.Metrics{Hypervolume: 1.5, Spread: 0.3, Spacing: 0.02, FrontSize: 7}
	assert.Equal(t, 1.5, MetricHypervolume.of(q))
	assert.Equal(t, 0.3, MetricSpread.of(q))
	assert.Equal(t, 0.02, MetricSpacing.of(q))
	assert.Equal(t, 7.0, MetricFrontSize.of(q))
}

func TestStatOf(t *testing.T) {
	s := statOf([]float64{2, 4, 6})
	assert.InDelta(t, 4.0, s.Mean, 1e-12)
	assert.InDelta(t, 2.0, s.Std, 1e-12)

	s = statOf([]float64{3})
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 0.0, s.Std)
}
