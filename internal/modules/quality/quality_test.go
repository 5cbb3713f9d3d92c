package quality

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inclusionExclusion computes the union volume of the boxes [p, ref] directly.
func inclusionExclusion(points [][]float64, ref []float64) float64 {
	n := len(points)
	total := 0.0
	for mask := 1; mask < 1<<n; mask++ {
		corner := make([]float64, len(ref))
		for m := range corner {
			corner[m] = math.Inf(-1)
		}
		bits := 0
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				bits++
				for m := range corner {
					corner[m] = math.Max(corner[m], points[i][m])
				}
			}
		}
		volume := 1.0
		for m := range ref {
			volume *= math.Max(0, ref[m]-corner[m])
		}
		if bits%2 == 1 {
			total += volume
		} else {
			total -= volume
		}
	}
	return total
}

func randomFront(rng *rand.Rand, n int) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		points[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	return points
}

func TestHypervolume_SingleBox(t *testing.T) {
	assert.InDelta(t, 6.0, Hypervolume([][]float64{{1, 1, 1}}, []float64{2, 3, 4}), 1e-12)
}

func TestHypervolume_TwoOverlappingBoxes(t *testing.T) {
	points := [][]float64{{0, 0, 1}, {1, 1, 0}}
	assert.InDelta(t, 5.0, Hypervolume(points, []float64{2, 2, 2}), 1e-12)
}

func TestHypervolume_TwoObjectives(t *testing.T) {
	points := [][]float64{{1, 3}, {2, 2}, {3, 1}}
	// Staircase under (4,4): 3*1 + 2*1 + 1*1 columns stacked = 6.
	assert.InDelta(t, 6.0, Hypervolume(points, []float64{4, 4}), 1e-12)
}

func TestHypervolume_IgnoresPointsOutsideReference(t *testing.T) {
	points := [][]float64{{1, 1, 1}, {5, 0, 0}, {2, 2, 2}}
	assert.InDelta(t, 1.0, Hypervolume(points, []float64{2, 2, 2}), 1e-12)
	assert.Equal(t, 0.0, Hypervolume(nil, []float64{1, 1, 1}))
}

func TestHypervolume_MatchesInclusionExclusion(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 22))
	ref := []float64{1.1, 1.1, 1.1}
	for trial := 0; trial < 50; trial++ {
		points := randomFront(rng, 1+rng.IntN(7))
		assert.InDelta(t, inclusionExclusion(points, ref), Hypervolume(points, ref), 1e-9)
	}
}

func TestHypervolume_MonotoneUnderAddition(t *testing.T) {
	rng := rand.New(rand.NewPCG(23, 24))
	ref := []float64{1.1, 1.1, 1.1}
	for trial := 0; trial < 100; trial++ {
		points := randomFront(rng, 1+rng.IntN(20))
		before := Hypervolume(points, ref)
		after := Hypervolume(append(points, randomFront(rng, 1)...), ref)
		assert.GreaterOrEqual(t, after, before-1e-12)
	}
}

func TestHypervolume_DoesNotReorderInput(t *testing.T) {
	points := [][]float64{{0.9, 0.1, 0.5}, {0.1, 0.9, 0.5}}
	Hypervolume(points, []float64{1, 1, 1})
	assert.Equal(t, []float64{0.9, 0.1, 0.5}, points[0])
}

func TestReferencePoint(t *testing.T) {
	ref := ReferencePoint([][]float64{{0, 0, -1}}, [][]float64{{1, 2, -1}})
	require.Len(t, ref, 3)
	assert.InDelta(t, 1.1, ref[0], 1e-12)
	assert.InDelta(t, 2.2, ref[1], 1e-12)
	assert.InDelta(t, -0.9, ref[2], 1e-12, "constant column widens by 10% of its magnitude")

	assert.Equal(t, []float64{0.1}, ReferencePoint([][]float64{{0}}))
	assert.Nil(t, ReferencePoint())
}

func TestReferencePoint_DominatedByAllPoints(t *testing.T) {
	rng := rand.New(rand.NewPCG(25, 26))
	points := randomFront(rng, 30)
	ref := ReferencePoint(points)
	for _, p := range points {
		assert.True(t, strictlyBelow(p, ref))
	}
}

func TestSpread_UniformFrontIsZero(t *testing.T) {
	points := [][]float64{{0, 1}, {0.5, 0.5}, {1, 0}}
	assert.InDelta(t, 0.0, Spread(points), 1e-12)
}

func TestSpread_UnevenFrontIsPositive(t *testing.T) {
	points := [][]float64{{0, 1}, {0.1, 0.9}, {1, 0}}
	assert.Greater(t, Spread(points), 0.0)
}

func TestSpread_SmallFronts(t *testing.T) {
	assert.Equal(t, 0.0, Spread(nil))
	assert.Equal(t, 0.0, Spread([][]float64{{1, 2, 3}}))
}

func TestSpacing(t *testing.T) {
	even := [][]float64{{0, 2}, {1, 1}, {2, 0}}
	assert.InDelta(t, 0.0, Spacing(even), 1e-12)

	uneven := [][]float64{{0, 3}, {0.1, 2.9}, {3, 0}}
	assert.Greater(t, Spacing(uneven), 0.0)

	assert.Equal(t, 0.0, Spacing([][]float64{{1, 1}}))
}

func TestCompute(t *testing.T) {
	points := [][]float64{{0, 1, 0.5}, {1, 0, 0.5}}
	m := Compute(points, []float64{2, 2, 2})

	assert.Equal(t, 2, m.FrontSize)
	assert.InDelta(t, Hypervolume(points, []float64{2, 2, 2}), m.Hypervolume, 1e-12)
	assert.InDelta(t, Spacing(points), m.Spacing, 1e-12)

	derived := Compute(points, nil)
	assert.Greater(t, derived.Hypervolume, 0.0)
}
