package problem

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/aristath/frontier/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newProblem(t *testing.T, assets, periods int, opts Options) *Problem {
	t.Helper()
	p, err := New(testutil.SyntheticSeries(assets, periods, 7), opts, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestNew_InsufficientPeriods(t *testing.T) {
	series := testutil.SyntheticSeries(3, 10, 1)

	_, err := New(series, Options{RiskProfile: domain.RiskProfileModerate}, zerolog.Nop())

	var dataErr *domain.DataInsufficientError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, 10, dataErr.Periods)
	assert.Equal(t, domain.MinPeriods, dataErr.Required)
}

func TestNew_AllAssetsExcluded(t *testing.T) {
	series := testutil.SyntheticSeries(3, 24, 1)

	_, err := New(series, Options{RiskProfile: domain.RiskProfileModerate, Excluded: []int64{1, 2, 3}}, zerolog.Nop())

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "excludedAssets", verr.Field)
	assert.ElementsMatch(t, []int64{1, 2, 3}, verr.AssetIDs)
}

func TestNew_InvalidRiskProfile(t *testing.T) {
	series := testutil.SyntheticSeries(3, 24, 1)
	_, err := New(series, Options{RiskProfile: domain.RiskProfile(42)}, zerolog.Nop())
	assert.True(t, domain.IsValidation(err))
}

func TestNew_InvalidConfidence(t *testing.T) {
	series := testutil.SyntheticSeries(3, 24, 1)
	_, err := New(series, Options{RiskProfile: domain.RiskProfileModerate, Confidence: 1.5}, zerolog.Nop())
	assert.True(t, domain.IsValidation(err))
}

func TestNew_ExclusionShrinksActiveSet(t *testing.T) {
	p := newProblem(t, 5, 24, Options{RiskProfile: domain.RiskProfileConservative, Excluded: []int64{2, 99}})

	assert.Equal(t, 5, p.NumAssets())
	assert.Equal(t, []int{0, 2, 3, 4}, p.ActiveIndices())
	assert.InDelta(t, 0.25, p.MaxWeight(), 1e-12)
}

func TestEvaluate_MatchesDirectComputation(t *testing.T) {
	p := newProblem(t, 4, 36, Options{RiskProfile: domain.RiskProfileModerate})
	series := p.Series()
	w := []float64{0.1, 0.2, 0.3, 0.4}

	obj := p.Evaluate(w)

	portfolio := make([]float64, series.Len())
	for t, row := range series.Returns {
		for j, r := range row {
			portfolio[t] += w[j] * r
		}
	}
	assert.InDelta(t, formulas.Mean(portfolio), obj.ExpectedReturn, 1e-12)
	assert.InDelta(t, formulas.StdDev(portfolio)*formulas.StdDev(portfolio), obj.Variance, 1e-12)
	assert.InDelta(t, -formulas.CalculateCVaR(portfolio, 0.95), obj.CVaR, 1e-12)

	assert.InDelta(t, -obj.ExpectedReturn, obj.Minimized[0], 1e-15)
	assert.InDelta(t, obj.Variance, obj.Minimized[1], 1e-15)
	assert.InDelta(t, obj.CVaR, obj.Minimized[2], 1e-15)
}

func TestEvaluate_RiskMultipliers(t *testing.T) {
	series := testutil.SyntheticSeries(4, 36, 3)
	w := []float64{0.25, 0.25, 0.25, 0.25}

	conservative, err := New(series, Options{RiskProfile: domain.RiskProfileConservative}, zerolog.Nop())
	require.NoError(t, err)
	obj := conservative.Evaluate(w)

	assert.InDelta(t, obj.Variance*1.5, obj.Minimized[1], 1e-15)
	assert.InDelta(t, obj.CVaR*2.0, obj.Minimized[2], 1e-15)
}

func TestRepair_ProducesFeasibleWeights(t *testing.T) {
	p := newProblem(t, 8, 24, Options{RiskProfile: domain.RiskProfileConservative, Excluded: []int64{3}})
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		w := make([]float64, p.NumAssets())
		for j := range w {
			w[j] = rng.NormFloat64()
		}
		p.Repair(w)
		require.True(t, p.IsFeasible(w), "repaired weights should be feasible: %v", w)
		assert.Equal(t, 0.0, w[2], "excluded asset should carry no weight")
	}
}

func TestRepair_DegenerateInputs(t *testing.T) {
	p := newProblem(t, 4, 24, Options{RiskProfile: domain.RiskProfileConservative})

	zeros := p.Repair([]float64{0, 0, 0, 0})
	assert.True(t, p.IsFeasible(zeros))
	assert.InDelta(t, 0.25, zeros[0], 1e-12)

	nan := p.Repair([]float64{math.NaN(), 1, 0, 0})
	assert.True(t, p.IsFeasible(nan))

	concentrated := p.Repair([]float64{1, 0, 0, 0})
	assert.True(t, p.IsFeasible(concentrated))
	assert.InDelta(t, 0.25, concentrated[0], 1e-9)
}

func TestRepair_CapRedistributesProportionally(t *testing.T) {
	w := projectToCappedSimplex([]float64{0.6, 0.3, 0.1}, []bool{true, true, true}, 0.5)

	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.375, w[1], 1e-12)
	assert.InDelta(t, 0.125, w[2], 1e-12)
}

func TestIsFeasible_Rejections(t *testing.T) {
	p := newProblem(t, 4, 24, Options{RiskProfile: domain.RiskProfileAggressive, Excluded: []int64{4}})

	assert.True(t, p.IsFeasible([]float64{0.4, 0.3, 0.3, 0}))
	assert.False(t, p.IsFeasible([]float64{0.4, 0.3, 0.3}), "wrong length")
	assert.False(t, p.IsFeasible([]float64{0.5, 0.3, 0.3, -0.1}), "negative weight")
	assert.False(t, p.IsFeasible([]float64{0.4, 0.3, 0.2, 0.1}), "excluded asset weighted")
	assert.False(t, p.IsFeasible([]float64{0.6, 0.2, 0.2, 0}), "above cap")
	assert.False(t, p.IsFeasible([]float64{0.4, 0.3, 0.2, 0}), "does not sum to one")
}

func TestRegularize_RepairsIndefiniteMatrix(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{
		1, 0.9, -0.9,
		0.9, 1, 0.9,
		-0.9, 0.9, 1,
	})
	psd, lowest := isPSD(cov)
	require.False(t, psd)
	require.Less(t, lowest, 0.0)

	fixed, shrunk, _, ok := regularize(cov)
	require.True(t, ok)
	assert.True(t, shrunk)
	psd, _ = isPSD(fixed)
	assert.True(t, psd)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, fixed.At(i, i), "variances are preserved")
	}
}

func TestRegularize_LeavesPSDMatrixAlone(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.09})
	out, shrunk, _, ok := regularize(cov)
	require.True(t, ok)
	assert.False(t, shrunk)
	assert.Same(t, cov, out)
}

func TestRegularize_NegativeVarianceFails(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{-1, 0, 0, 1})
	_, _, _, ok := regularize(cov)
	assert.False(t, ok)
}
