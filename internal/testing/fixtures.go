package testing

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// SeriesStart is the first period of every synthetic series.
var SeriesStart = time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)

// MonthlyDates returns n consecutive month starts beginning at start.
func MonthlyDates(start time.Time, n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, i, 0)
	}
	return dates
}

// NewAssetFixtures returns n assets with ids 1..n and tickers A01, A02, ...
func NewAssetFixtures(n int) []domain.Asset {
	assets := make([]domain.Asset, n)
	for i := range assets {
		assets[i] = domain.Asset{
			ID:        int64(i + 1),
			Ticker:    fmt.Sprintf("A%02d", i+1),
			Name:      fmt.Sprintf("Synthetic asset %d", i+1),
			AssetType: "EQUITY",
		}
	}
	return assets
}

// SyntheticSeries builds a deterministic monthly return table with a shared market
// factor. Higher-numbered assets carry more drift and more volatility, so the
// risk/return trade-off has a real front.
func SyntheticSeries(nAssets, nPeriods int, seed uint64) *domain.ReturnSeries {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	drift := make([]float64, nAssets)
	vol := make([]float64, nAssets)
	beta := make([]float64, nAssets)
	for j := 0; j < nAssets; j++ {
		scale := float64(j+1) / float64(nAssets)
		drift[j] = 0.002 + 0.010*scale
		vol[j] = 0.01 + 0.06*scale
		beta[j] = 0.3 + 0.9*rng.Float64()
	}

	returns := make([][]float64, nPeriods)
	for t := range returns {
		market := 0.02 * rng.NormFloat64()
		row := make([]float64, nAssets)
		for j := range row {
			row[j] = drift[j] + beta[j]*market + vol[j]*rng.NormFloat64()
		}
		returns[t] = row
	}

	return &domain.ReturnSeries{
		Assets:  NewAssetFixtures(nAssets),
		Dates:   MonthlyDates(SeriesStart, nPeriods),
		Returns: returns,
	}
}
