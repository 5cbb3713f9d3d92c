// Package quality measures Pareto fronts: hypervolume, spread, spacing and size.
// Every measure works on minimization vectors alone.
package quality

import (
	"math"
	"sort"
)

// referenceMargin widens the reference point beyond the worst observed value.
const referenceMargin = 0.1

// ReferencePoint returns a point dominated by every given point: per objective, the
// worst value plus 10% of the observed range (or of its magnitude, or a small constant,
// when the range is zero). Comparisons between fronts need one shared reference.
func ReferencePoint(fronts ...[][]float64) []float64 {
	var ref, lo []float64
	for _, front := range fronts {
		for _, p := range front {
			if ref == nil {
				ref = append([]float64(nil), p...)
				lo = append([]float64(nil), p...)
				continue
			}
			for m, v := range p {
				ref[m] = math.Max(ref[m], v)
				lo[m] = math.Min(lo[m], v)
			}
		}
	}
	for m := range ref {
		margin := referenceMargin * (ref[m] - lo[m])
		if margin == 0 {
			margin = referenceMargin * math.Abs(ref[m])
		}
		if margin == 0 {
			margin = referenceMargin
		}
		ref[m] += margin
	}
	return ref
}

// Hypervolume is the exact volume of objective space dominated by points and bounded
// by ref. Points that do not strictly dominate ref contribute nothing.
func Hypervolume(points [][]float64, ref []float64) float64 {
	var inside [][]float64
	for _, p := range points {
		if strictlyBelow(p, ref) {
			inside = append(inside, p)
		}
	}
	if len(inside) == 0 {
		return 0
	}
	return slice(inside, ref)
}

// slice computes hypervolume by sweeping the first objective: between consecutive
// distinct values of objective 0 the dominated region is a prism whose cross-section
// is the hypervolume of the remaining objectives over the points seen so far.
func slice(points [][]float64, ref []float64) float64 {
	if len(ref) == 1 {
		best := ref[0]
		for _, p := range points {
			best = math.Min(best, p[0])
		}
		return ref[0] - best
	}
	if len(ref) == 2 {
		return area(points, ref)
	}

	sorted := append([][]float64(nil), points...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a][0] < sorted[b][0] })

	volume := 0.0
	projected := make([][]float64, 0, len(sorted))
	for i, p := range sorted {
		projected = append(projected, p[1:])
		next := ref[0]
		if i+1 < len(sorted) {
			next = sorted[i+1][0]
		}
		if width := next - p[0]; width > 0 {
			volume += width * slice(projected, ref[1:])
		}
	}
	return volume
}

// area is the exact two-objective dominated area.
func area(points [][]float64, ref []float64) float64 {
	sorted := append([][]float64(nil), points...)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a][0] != sorted[b][0] {
			return sorted[a][0] < sorted[b][0]
		}
		return sorted[a][1] < sorted[b][1]
	})

	total := 0.0
	ceiling := ref[1]
	for _, p := range sorted {
		if p[1] < ceiling {
			total += (ref[0] - p[0]) * (ceiling - p[1])
			ceiling = p[1]
		}
	}
	return total
}

func strictlyBelow(p, ref []float64) bool {
	for m := range ref {
		if !(p[m] < ref[m]) {
			return false
		}
	}
	return true
}
