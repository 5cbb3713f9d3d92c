// Package formulas holds the return-series statistics shared by the optimizer, the
// quality metrics and the backtest runner.
package formulas

import (
	"math"
	"sort"
)

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified confidence level.
// The result is the average of the worst ceil((1-confidence)*N) returns, at least one,
// so it is negative when the tail contains losses.
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := TailCount(len(sorted), confidence)

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}

	return sum / float64(tailCount)
}

// TailLoss is CVaR expressed as a loss: the mean of the worst tail returns with the
// sign flipped, so larger means riskier.
func TailLoss(returns []float64, confidence float64) float64 {
	return -CalculateCVaR(returns, confidence)
}

// TailCount is the number of observations in the (1-confidence) tail of n samples.
func TailCount(n int, confidence float64) int {
	// Round before ceil so 20*(1-0.95) does not become 2 through float noise.
	raw := float64(n) * (1.0 - confidence)
	tail := int(math.Ceil(math.Round(raw*1e9) / 1e9))
	if tail < 1 {
		tail = 1
	}
	if tail > n {
		tail = n
	}
	return tail
}
