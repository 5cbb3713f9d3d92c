package evolution

import (
	"errors"
	"math"

	"github.com/aristath/frontier/internal/domain"
)

// SelectionPolicy picks one solution off a Pareto front.
type SelectionPolicy int

const (
	// PolicyIdealPoint minimizes the weighted distance to (return=1, variance=0, cvar=0)
	// in front-normalized objective space.
	PolicyIdealPoint SelectionPolicy = iota
	// PolicyWeightedScore maximizes w_r*return - w_v*variance - w_c*cvar in
	// front-normalized objective space.
	PolicyWeightedScore
)

// ErrEmptyFront is returned when selecting from a front with no solutions.
var ErrEmptyFront = errors.New("pareto front is empty")

// SelectSolution returns the preferred solution and its index. weights are
// [return, variance, cvar] importances. Ties keep the lower index.
func SelectSolution(front domain.ParetoFront, weights [domain.NumObjectives]float64, policy SelectionPolicy) (domain.Solution, int, error) {
	if front.Len() == 0 {
		return domain.Solution{}, -1, ErrEmptyFront
	}

	normalized := normalizeNatural(front)
	best, bestScore := 0, math.Inf(-1)
	for i, x := range normalized {
		var score float64
		switch policy {
		case PolicyWeightedScore:
			score = weights[0]*x[0] - weights[1]*x[1] - weights[2]*x[2]
		default:
			d := weights[0]*(1-x[0])*(1-x[0]) + weights[1]*x[1]*x[1] + weights[2]*x[2]*x[2]
			score = -math.Sqrt(d)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return front.Solutions[best], best, nil
}

// normalizeNatural scales return, variance and CVaR to [0,1] over the front.
// A column with no spread maps to 0.5.
func normalizeNatural(front domain.ParetoFront) [][domain.NumObjectives]float64 {
	columns := func(s domain.Solution) [domain.NumObjectives]float64 {
		o := s.Objectives
		return [domain.NumObjectives]float64{o.ExpectedReturn, o.Variance, o.CVaR}
	}

	lo := columns(front.Solutions[0])
	hi := lo
	for _, s := range front.Solutions[1:] {
		c := columns(s)
		for m := range c {
			lo[m] = math.Min(lo[m], c[m])
			hi[m] = math.Max(hi[m], c[m])
		}
	}

	out := make([][domain.NumObjectives]float64, front.Len())
	for i, s := range front.Solutions {
		c := columns(s)
		for m := range c {
			if hi[m]-lo[m] > 0 {
				out[i][m] = (c[m] - lo[m]) / (hi[m] - lo[m])
			} else {
				out[i][m] = 0.5
			}
		}
	}
	return out
}
