package formulas

import "math"

// PeriodsPerYear for the monthly series the optimizer consumes.
const PeriodsPerYear = 12

// CumulativeReturn compounds periodic returns: prod(1+r) - 1.
func CumulativeReturn(returns []float64) float64 {
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	return cumulative - 1
}

// AnnualizedReturn converts compounded periodic returns to a yearly rate.
func AnnualizedReturn(returns []float64, periodsPerYear int) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}
	growth := 1 + CumulativeReturn(returns)
	if growth <= 0 {
		return -1
	}
	years := float64(len(returns)) / float64(periodsPerYear)
	return math.Pow(growth, 1/years) - 1
}

// AnnualizedVolatility scales the periodic standard deviation by sqrt(periodsPerYear).
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}

// SharpeRatio is the arithmetic mean return scaled to a year, less the risk-free rate,
// over annualized volatility. Returns 0 when volatility is zero.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) float64 {
	vol := AnnualizedVolatility(returns, periodsPerYear)
	if vol == 0 {
		return 0
	}
	return (Mean(returns)*float64(periodsPerYear) - riskFreeRate) / vol
}

// MaxDrawdown is the largest peak-to-trough decline of the compounded equity curve,
// reported as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	equity, peak, worst := 1.0, 1.0, 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
