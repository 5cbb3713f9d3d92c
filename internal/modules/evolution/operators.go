package evolution

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distmv"
)

// mutationShare bounds a transfer to this fraction of the smaller of the two weights.
const mutationShare = 0.2

// sampleDirichlet draws a uniform point on the simplex spanned by the active assets.
func sampleDirichlet(n int, active []int, src rand.Source) []float64 {
	alpha := make([]float64, len(active))
	for i := range alpha {
		alpha[i] = 1
	}
	draw := distmv.NewDirichlet(alpha, src).Rand(nil)

	w := make([]float64, n)
	for k, j := range active {
		w[j] = draw[k]
	}
	return w
}

// sbxBeta draws the SBX spread factor for distribution index eta.
func sbxBeta(eta float64, rng *rand.Rand) float64 {
	u := rng.Float64()
	if u <= 0.5 {
		return math.Pow(2*u, 1/(eta+1))
	}
	return math.Pow(1/(2*(1-u)), 1/(eta+1))
}

// simplexSBX recombines two weight vectors with a single spread factor so that the
// children keep the parents' total before clipping. Negative entries are clipped to zero.
func simplexSBX(p1, p2 []float64, eta float64, rng *rand.Rand) ([]float64, []float64) {
	beta := sbxBeta(eta, rng)
	c1 := make([]float64, len(p1))
	c2 := make([]float64, len(p2))
	for i := range p1 {
		c1[i] = math.Max(0, 0.5*((1+beta)*p1[i]+(1-beta)*p2[i]))
		c2[i] = math.Max(0, 0.5*((1-beta)*p1[i]+(1+beta)*p2[i]))
	}
	return c1, c2
}

// polynomialDelta draws a perturbation in (-1, 1) concentrated near zero for large eta.
func polynomialDelta(eta float64, rng *rand.Rand) float64 {
	u := rng.Float64()
	if u < 0.5 {
		return math.Pow(2*u, 1/(eta+1)) - 1
	}
	return 1 - math.Pow(2*(1-u), 1/(eta+1))
}

// transferMutation moves weight between two distinct active assets. The amount is a
// polynomially distributed share of the smaller weight, so both stay non-negative.
func transferMutation(w []float64, active []int, eta float64, rng *rand.Rand) {
	if len(active) < 2 {
		return
	}
	a := rng.IntN(len(active))
	b := rng.IntN(len(active) - 1)
	if b >= a {
		b++
	}
	i, j := active[a], active[b]

	amount := mutationShare * polynomialDelta(eta, rng) * math.Min(w[i], w[j])
	w[i] -= amount
	w[j] += amount
}

// tournament runs a binary tournament: lower rank wins, then larger crowding distance.
func tournament(pop []*individual, rng *rand.Rand) *individual {
	a := pop[rng.IntN(len(pop))]
	b := pop[rng.IntN(len(pop))]
	if a.rank != b.rank {
		if a.rank < b.rank {
			return a
		}
		return b
	}
	if b.crowding > a.crowding {
		return b
	}
	return a
}
