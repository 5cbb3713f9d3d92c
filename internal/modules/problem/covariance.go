package problem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// psdTolerance is relative to the largest variance.
const psdTolerance = 1e-10

// sampleCovariance returns the N-1 sample covariance of the columns of returns.
func sampleCovariance(returns *mat.Dense) *mat.SymDense {
	_, n := returns.Dims()
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, returns, nil)
	return cov
}

// minEigenvalue returns the smallest eigenvalue of a symmetric matrix.
func minEigenvalue(cov *mat.SymDense) (float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		return math.NaN(), fmt.Errorf("eigendecomposition did not converge")
	}
	values := eig.Values(nil)
	lowest := math.Inf(1)
	for _, v := range values {
		lowest = math.Min(lowest, v)
	}
	return lowest, nil
}

// isPSD reports whether cov is positive semi-definite up to a relative tolerance,
// along with the smallest eigenvalue found.
func isPSD(cov *mat.SymDense) (bool, float64) {
	lowest, err := minEigenvalue(cov)
	if err != nil || math.IsNaN(lowest) {
		return false, lowest
	}
	n := cov.SymmetricDim()
	scale := 1.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(cov.At(i, i)))
	}
	return lowest >= -psdTolerance*scale, lowest
}

// shrinkageIntensity estimates how far to pull the sample covariance toward its
// diagonal: the dispersion of the matrix entries relative to their distance from
// the target, capped at one half. Falls back to 0.2 when the matrix has no spread.
func shrinkageIntensity(cov *mat.SymDense) float64 {
	n := cov.SymmetricDim()
	if n < 3 {
		return 0.2
	}

	var sumSqDiff, sum, sumSq float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := cov.At(i, j)
			sum += v
			sumSq += v * v
			if i != j {
				sumSqDiff += v * v
			}
		}
	}
	count := float64(n * n)
	meanSqDiff := sumSqDiff / count
	mean := sum / count
	spread := sumSq/count - mean*mean

	if spread <= 0 || meanSqDiff <= 0 {
		return 0.2
	}
	return math.Min(0.5, math.Max(0, spread/(spread+meanSqDiff)))
}

// shrinkToDiagonal returns (1-delta)*cov + delta*diag(cov).
func shrinkToDiagonal(cov *mat.SymDense, delta float64) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, cov.At(i, i))
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, (1-delta)*cov.At(i, j))
		}
	}
	return out
}

// regularize returns a PSD covariance matrix. A PSD input is returned unchanged with
// shrunk=false. Otherwise the off-diagonal mass is shrunk with increasing intensity until
// the result is PSD. ok is false when even the pure diagonal fails, which only happens
// with negative or non-finite variances.
func regularize(cov *mat.SymDense) (out *mat.SymDense, shrunk bool, lowest float64, ok bool) {
	psd, lowest := isPSD(cov)
	if psd {
		return cov, false, lowest, true
	}

	start := shrinkageIntensity(cov)
	for _, delta := range []float64{start, 0.25, 0.5, 0.75, 1.0} {
		if delta < start {
			continue
		}
		candidate := shrinkToDiagonal(cov, delta)
		if psd, _ := isPSD(candidate); psd {
			return candidate, true, lowest, true
		}
	}
	return nil, true, lowest, false
}
