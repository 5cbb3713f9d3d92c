package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev is the sample standard deviation; zero for fewer than two values.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// MeanStdDev returns the mean and sample standard deviation of data.
func MeanStdDev(data []float64) (mean, std float64) {
	return Mean(data), StdDev(data)
}

// PopStdDev is the population standard deviation (divides by N).
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(data, nil)
	return math.Sqrt(variance)
}

// MinMax returns the smallest and largest element of a non-empty slice.
func MinMax(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
