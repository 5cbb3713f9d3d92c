package quality

import (
	"math"
	"sort"

	"github.com/aristath/frontier/pkg/formulas"
	"gonum.org/v1/gonum/floats"
)

// Metrics summarizes one front.
type Metrics struct {
	Hypervolume float64 `json:"hypervolume" msgpack:"hypervolume"`
	Spread      float64 `json:"spread" msgpack:"spread"`
	Spacing     float64 `json:"spacing" msgpack:"spacing"`
	FrontSize   int     `json:"front_size" msgpack:"front_size"`
}

// Compute returns every metric of points. A nil ref derives one from points alone,
// which makes hypervolume meaningless across fronts.
func Compute(points [][]float64, ref []float64) Metrics {
	if ref == nil {
		ref = ReferencePoint(points)
	}
	return Metrics{
		Hypervolume: Hypervolume(points, ref),
		Spread:      Spread(points),
		Spacing:     Spacing(points),
		FrontSize:   len(points),
	}
}

// Spread is Deb's diversity measure on the min-max normalized front: extreme gaps
// plus the deviation of consecutive distances from their mean, over the same plus
// (N-1) times the mean distance. Zero is perfectly uniform. Fronts with fewer than
// two points report zero.
func Spread(points [][]float64) float64 {
	if len(points) < 2 {
		return 0
	}
	dims := len(points[0])

	normalized := normalize(points)

	// Extremes: the best point on the first and on the last objective.
	extremes := make([][]float64, dims)
	for m := 0; m < dims; m++ {
		best := 0
		for i, p := range normalized {
			if p[m] < normalized[best][m] {
				best = i
			}
		}
		extremes[m] = normalized[best]
	}

	sorted := append([][]float64(nil), normalized...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a][0] < sorted[b][0] })

	gaps := make([]float64, len(sorted)-1)
	for i := range gaps {
		gaps[i] = floats.Distance(sorted[i], sorted[i+1], 2)
	}
	mean := formulas.Mean(gaps)

	first := floats.Distance(sorted[0], extremes[0], 2)
	last := floats.Distance(sorted[len(sorted)-1], extremes[dims-1], 2)

	deviation := 0.0
	for _, g := range gaps {
		deviation += math.Abs(g - mean)
	}

	denominator := first + last + float64(len(gaps))*mean
	if denominator == 0 {
		return 0
	}
	return (first + last + deviation) / denominator
}

// Spacing is the population standard deviation of nearest-neighbour Euclidean
// distances. Lower means more evenly spaced; fronts with fewer than two points
// report zero.
func Spacing(points [][]float64) float64 {
	if len(points) < 2 {
		return 0
	}
	nearest := make([]float64, len(points))
	for i, p := range points {
		nearest[i] = math.Inf(1)
		for j, q := range points {
			if i != j {
				nearest[i] = math.Min(nearest[i], floats.Distance(p, q, 2))
			}
		}
	}
	return formulas.PopStdDev(nearest)
}

// normalize scales each objective to [0,1] over the points; constant objectives map to 0.
func normalize(points [][]float64) [][]float64 {
	dims := len(points[0])
	lo := append([]float64(nil), points[0]...)
	hi := append([]float64(nil), points[0]...)
	for _, p := range points[1:] {
		for m := 0; m < dims; m++ {
			lo[m] = math.Min(lo[m], p[m])
			hi[m] = math.Max(hi[m], p[m])
		}
	}
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = make([]float64, dims)
		for m := 0; m < dims; m++ {
			if r := hi[m] - lo[m]; r > 0 {
				out[i][m] = (p[m] - lo[m]) / r
			}
		}
	}
	return out
}
