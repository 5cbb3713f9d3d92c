// Package tuning chooses evolution hyperparameters: per-generation convergence
// analysis, grid search over population size and generation count, and the store of
// tuned configurations.
package tuning

import (
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/quality"
	"github.com/aristath/frontier/pkg/formulas"
)

// Metric names a quality measure used for convergence detection or ranking.
type Metric string

const (
	MetricHypervolume Metric = "hypervolume"
	MetricSpread      Metric = "spread"
	MetricSpacing     Metric = "spacing"
	MetricFrontSize   Metric = "front_size"
	MetricElapsed     Metric = "elapsed_time"
)

// ParseMetric validates a metric name; empty means hypervolume.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case "":
		return MetricHypervolume, nil
	case MetricHypervolume, MetricSpread, MetricSpacing, MetricFrontSize, MetricElapsed:
		return m, nil
	}
	return "", &domain.ValidationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", s)}
}

// HigherIsBetter reports the ranking direction. Spread, spacing and elapsed time are
// better when lower.
func (m Metric) HigherIsBetter() bool {
	return m == MetricHypervolume || m == MetricFrontSize
}

// of extracts the metric from a front summary; elapsed time is not part of it.
func (m Metric) of(q quality.Metrics) float64 {
	switch m {
	case MetricSpread:
		return q.Spread
	case MetricSpacing:
		return q.Spacing
	case MetricFrontSize:
		return float64(q.FrontSize)
	default:
		return q.Hypervolume
	}
}

// Stat is a mean and sample standard deviation.
type Stat struct {
	Mean float64 `json:"mean" msgpack:"mean"`
	Std  float64 `json:"std" msgpack:"std"`
}

func statOf(values []float64) Stat {
	mean, std := formulas.MeanStdDev(values)
	return Stat{Mean: mean, Std: std}
}

// DetectConvergence returns the first index i at which the metric has settled: the
// relative range (max-min)/(|min|+1e-10) of every trailing window of the given length
// ending at i or later stays below threshold. ok is false when the series never settles
// or is shorter than the window.
func DetectConvergence(values []float64, window int, threshold float64) (index int, ok bool) {
	if window < 2 || len(values) < window {
		return 0, false
	}

	index = -1
	for end := len(values) - 1; end >= window-1; end-- {
		lo, hi := formulas.MinMax(values[end-window+1 : end+1])
		if (hi-lo)/(math.Abs(lo)+1e-10) >= threshold {
			break
		}
		index = end
	}
	if index < 0 {
		return 0, false
	}
	return index, true
}
