// Package problem defines the three-objective portfolio problem: expected return,
// variance and CVaR of a long-only, fully invested, capped weight vector.
package problem

import (
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultConfidence is the CVaR confidence level.
const DefaultConfidence = 0.95

// Options configure a Problem.
type Options struct {
	RiskProfile domain.RiskProfile
	// Excluded asset ids are forced to zero weight. Unknown ids are ignored.
	Excluded []int64
	// HorizonYears tightens the weight cap for short horizons; zero means unspecified.
	HorizonYears float64
	// Confidence for CVaR; zero means DefaultConfidence.
	Confidence float64
}

// Problem evaluates candidate weight vectors over a fixed return history.
// It is immutable after New and safe for concurrent Evaluate calls.
type Problem struct {
	series     *domain.ReturnSeries
	returns    *mat.Dense
	mu         []float64
	cov        *mat.SymDense
	active     []bool
	activeIdx  []int
	profile    domain.RiskProfile
	params     domain.RiskParams
	maxWeight  float64
	confidence float64
	shrunk     bool
	log        zerolog.Logger
}

// New builds a problem from a return series. It fails with a DataInsufficientError
// when the series is shorter than domain.MinPeriods, a ValidationError for bad
// parameters or when every asset is excluded, and a SingularCovarianceError when the
// covariance cannot be made positive semi-definite.
func New(series *domain.ReturnSeries, opts Options, log zerolog.Logger) (*Problem, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if series.Len() < domain.MinPeriods {
		return nil, &domain.DataInsufficientError{Periods: series.Len(), Required: domain.MinPeriods, Source: "problem"}
	}
	if series.NumAssets() == 0 {
		return nil, &domain.ValidationError{Field: "assets", Reason: "return series has no assets"}
	}
	if !opts.RiskProfile.Valid() {
		return nil, &domain.ValidationError{Field: "riskProfile", Reason: fmt.Sprintf("unknown risk profile %d", int(opts.RiskProfile))}
	}

	confidence := opts.Confidence
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, &domain.ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be in (0,1), got %g", confidence)}
	}

	excluded := make(map[int64]bool, len(opts.Excluded))
	for _, id := range opts.Excluded {
		excluded[id] = true
	}
	n := series.NumAssets()
	active := make([]bool, n)
	var activeIdx []int
	for j, a := range series.Assets {
		if !excluded[a.ID] {
			active[j] = true
			activeIdx = append(activeIdx, j)
		}
	}
	if len(activeIdx) == 0 {
		return nil, &domain.ValidationError{
			Field:    "excludedAssets",
			Reason:   "every asset in the universe is excluded",
			AssetIDs: series.AssetIDs(),
		}
	}

	periods := series.Len()
	data := make([]float64, 0, periods*n)
	for _, row := range series.Returns {
		data = append(data, row...)
	}
	returns := mat.NewDense(periods, n, data)

	mu := make([]float64, n)
	for j := 0; j < n; j++ {
		mu[j] = formulas.Mean(mat.Col(nil, j, returns))
	}

	cov, shrunk, lowest, ok := regularize(sampleCovariance(returns))
	if !ok {
		return nil, &domain.SingularCovarianceError{MinEigenvalue: lowest, AssetIDs: series.AssetIDs()}
	}
	if shrunk {
		log.Warn().
			Float64("min_eigenvalue", lowest).
			Int("assets", n).
			Msg("Sample covariance not positive semi-definite, applied diagonal shrinkage")
	}

	p := &Problem{
		series:     series,
		returns:    returns,
		mu:         mu,
		cov:        cov,
		active:     active,
		activeIdx:  activeIdx,
		profile:    opts.RiskProfile,
		params:     opts.RiskProfile.Params(),
		maxWeight:  opts.RiskProfile.EffectiveMaxWeight(opts.HorizonYears, len(activeIdx)),
		confidence: confidence,
		shrunk:     shrunk,
		log:        log,
	}
	return p, nil
}

// Evaluate computes the objective vector of w. w must have NumAssets entries.
func (p *Problem) Evaluate(w []float64) domain.ObjectiveVector {
	ret := floats.Dot(p.mu, w)

	x := mat.NewVecDense(len(w), w)
	variance := math.Max(0, mat.Inner(x, p.cov, x))

	var portfolio mat.VecDense
	portfolio.MulVec(p.returns, x)
	cvar := formulas.TailLoss(portfolio.RawVector().Data, p.confidence)

	return domain.ObjectiveVector{
		ExpectedReturn: ret,
		Variance:       variance,
		CVaR:           cvar,
		Minimized: [domain.NumObjectives]float64{
			-ret,
			variance * p.params.VarianceMultiplier,
			cvar * p.params.CVaRMultiplier,
		},
	}
}

// IsFeasible reports whether w satisfies every constraint: non-negative, sums to one,
// zero on excluded assets and at most the weight cap.
func (p *Problem) IsFeasible(w []float64) bool {
	if len(w) != len(p.active) {
		return false
	}
	sum := 0.0
	for i, v := range w {
		if math.IsNaN(v) || v < 0 {
			return false
		}
		if !p.active[i] && v != 0 {
			return false
		}
		if v > p.maxWeight+capTolerance {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) <= sumTolerance
}

// Repair projects w onto the feasible set in place and returns it.
func (p *Problem) Repair(w []float64) []float64 {
	return projectToCappedSimplex(w, p.active, p.maxWeight)
}

// NumAssets is the length of every candidate weight vector.
func (p *Problem) NumAssets() int { return len(p.active) }

// ActiveIndices lists the asset columns that may carry weight.
func (p *Problem) ActiveIndices() []int { return p.activeIdx }

// MaxWeight is the effective per-asset cap.
func (p *Problem) MaxWeight() float64 { return p.maxWeight }

// Series returns the return history the problem was built from.
func (p *Problem) Series() *domain.ReturnSeries { return p.series }

// Assets returns the asset columns.
func (p *Problem) Assets() []domain.Asset { return p.series.Assets }

// RiskProfile returns the profile the objectives are scaled for.
func (p *Problem) RiskProfile() domain.RiskProfile { return p.profile }

// Params returns the profile's multipliers and limits.
func (p *Problem) Params() domain.RiskParams { return p.params }

// MeanReturns returns the per-asset mean periodic return.
func (p *Problem) MeanReturns() []float64 { return p.mu }

// Regularized reports whether the covariance matrix had to be shrunk.
func (p *Problem) Regularized() bool { return p.shrunk }

// Covariance returns the (possibly regularized) covariance matrix.
func (p *Problem) Covariance() mat.Symmetric { return p.cov }
