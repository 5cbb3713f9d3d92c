// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MinPeriods is the shortest return history any optimization accepts.
const MinPeriods = 12

// NumObjectives is the dimension of every objective vector.
const NumObjectives = 3

// Asset is an investable instrument in the universe.
type Asset struct {
	ID        int64  `json:"id"`
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	AssetType string `json:"asset_type,omitempty"`
}

// ActiveAssetIDs returns the ids of assets not in excluded, in the order given.
func ActiveAssetIDs(assets []Asset, excluded []int64) []int64 {
	skip := make(map[int64]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	ids := make([]int64, 0, len(assets))
	for _, a := range assets {
		if !skip[a.ID] {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// ReturnSeries is a time-aligned table of periodic returns.
// Returns[t][j] is the return of Assets[j] over the period ending Dates[t].
type ReturnSeries struct {
	Assets  []Asset
	Dates   []time.Time
	Returns [][]float64
}

// Len returns the number of periods.
func (s *ReturnSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Dates)
}

// NumAssets returns the number of asset columns.
func (s *ReturnSeries) NumAssets() int {
	if s == nil {
		return 0
	}
	return len(s.Assets)
}

// Start returns the first period date.
func (s *ReturnSeries) Start() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Dates[0]
}

// End returns the last period date.
func (s *ReturnSeries) End() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}

// Column copies out the return history of one asset.
func (s *ReturnSeries) Column(j int) []float64 {
	col := make([]float64, s.Len())
	for t, row := range s.Returns {
		col[t] = row[j]
	}
	return col
}

// AssetIDs lists the asset ids in column order.
func (s *ReturnSeries) AssetIDs() []int64 {
	ids := make([]int64, len(s.Assets))
	for i, a := range s.Assets {
		ids[i] = a.ID
	}
	return ids
}

// Slice returns the periods in [from, to) sharing the underlying rows.
func (s *ReturnSeries) Slice(from, to int) *ReturnSeries {
	return &ReturnSeries{
		Assets:  s.Assets,
		Dates:   s.Dates[from:to],
		Returns: s.Returns[from:to],
	}
}

// Validate checks that the table is rectangular, chronologically ordered and finite.
func (s *ReturnSeries) Validate() error {
	if s == nil {
		return &ValidationError{Field: "returns", Reason: "series is nil"}
	}
	if len(s.Returns) != len(s.Dates) {
		return &ValidationError{Field: "returns", Reason: fmt.Sprintf("%d rows for %d dates", len(s.Returns), len(s.Dates))}
	}
	for t, row := range s.Returns {
		if len(row) != len(s.Assets) {
			return &ValidationError{Field: "returns", Reason: fmt.Sprintf("row %d has %d values for %d assets", t, len(row), len(s.Assets))}
		}
		if t > 0 && !s.Dates[t].After(s.Dates[t-1]) {
			return &ValidationError{Field: "dates", Reason: fmt.Sprintf("period %d is not after period %d", t, t-1)}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &ValidationError{
					Field:    "returns",
					Reason:   fmt.Sprintf("non-finite return at period %d", t),
					AssetIDs: []int64{s.Assets[j].ID},
				}
			}
		}
	}
	return nil
}

// ObjectiveVector holds a candidate's natural risk/return measures and the
// minimization vector used for dominance.
type ObjectiveVector struct {
	ExpectedReturn float64 `json:"expectedReturn"`
	Variance       float64 `json:"variance"`
	CVaR           float64 `json:"cvar"`
	// Minimized is [-ExpectedReturn, Variance*m_var, CVaR*m_cvar].
	Minimized [NumObjectives]float64 `json:"minimized"`
}

// Point returns the minimization vector as a slice.
func (o ObjectiveVector) Point() []float64 {
	p := o.Minimized
	return p[:]
}

// Solution is a candidate weight vector with its evaluated objectives.
type Solution struct {
	Weights    []float64       `json:"weights"`
	Objectives ObjectiveVector `json:"objectives"`
}

// ParetoFront is a set of mutually non-dominated solutions.
type ParetoFront struct {
	Solutions []Solution `json:"solutions"`
}

// Len returns the number of solutions on the front.
func (f ParetoFront) Len() int {
	return len(f.Solutions)
}

// Points returns the minimization vectors of the front.
func (f ParetoFront) Points() [][]float64 {
	points := make([][]float64, len(f.Solutions))
	for i, s := range f.Solutions {
		points[i] = s.Objectives.Point()
	}
	return points
}

// AllocationItem is one asset's share of the selected portfolio.
type AllocationItem struct {
	AssetID int64           `json:"assetId"`
	Ticker  string          `json:"ticker"`
	Weight  float64         `json:"weight"`
	Amount  decimal.Decimal `json:"amount"`
}

// OptimizationRequest is the input to a single portfolio optimization.
type OptimizationRequest struct {
	RiskProfile            RiskProfile     `json:"riskProfile"`
	InvestmentHorizonYears float64         `json:"investmentHorizonYears,omitempty"`
	Capital                decimal.Decimal `json:"capital"`
	ExcludedAssets         []int64         `json:"excludedAssets,omitempty"`
	ReferenceDate          *time.Time      `json:"referenceDate,omitempty"`
	// LookbackMonths limits the history to that many months before ReferenceDate (or the
	// latest period); zero uses everything available.
	LookbackMonths int     `json:"lookbackMonths,omitempty"`
	Seed           *uint64 `json:"seed,omitempty"`
	PopulationSize int     `json:"populationSize,omitempty"`
	Generations    int     `json:"generations,omitempty"`
}

// OptimizationResult is the externally visible output of an optimization.
type OptimizationResult struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"createdAt"`
	RiskProfile    RiskProfile      `json:"riskProfile"`
	Composition    []AllocationItem `json:"composition"`
	Objectives     ObjectiveVector  `json:"objectives"`
	ReferenceDate  *time.Time       `json:"referenceDate"`
	PeriodStart    time.Time        `json:"periodStart"`
	PeriodEnd      time.Time        `json:"periodEnd"`
	PeriodCount    int              `json:"periodCount"`
	IsBacktest     bool             `json:"isBacktest"`
	Complete       bool             `json:"complete"`
	FrontSize      int              `json:"frontSize"`
	PopulationSize int              `json:"populationSize"`
	Generations    int              `json:"generations"`
	Seed           uint64           `json:"seed"`
	TunedConfig    bool             `json:"tunedConfig"`
}

// HyperparameterConfig is a stored tuning outcome for an (asset count, risk profile) pair.
type HyperparameterConfig struct {
	ID                    int64       `json:"id"`
	AssetCount            int         `json:"assetCount"`
	RiskProfile           RiskProfile `json:"riskProfile"`
	PopulationSize        int         `json:"populationSize"`
	Generations           int         `json:"generations"`
	MeanHypervolume       float64     `json:"meanHypervolume"`
	MeanElapsedSeconds    float64     `json:"meanElapsedSeconds"`
	ConvergenceGeneration *float64    `json:"convergenceGeneration,omitempty"`
	SessionID             string      `json:"sessionId"`
	CreatedAt             time.Time   `json:"createdAt"`
	Active                bool        `json:"active"`
}
