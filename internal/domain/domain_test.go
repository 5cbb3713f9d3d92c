package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestDominates(t *testing.T) {
	assert.True(t, Dominates([]float64{1, 2, 3}, []float64{1, 2, 4}))
	assert.True(t, Dominates([]float64{0, 0, 0}, []float64{1, 1, 1}))
	assert.False(t, Dominates([]float64{1, 2, 3}, []float64{1, 2, 3}), "equal vectors do not dominate")
	assert.False(t, Dominates([]float64{0, 5, 0}, []float64{1, 1, 1}), "trade-offs do not dominate")
}

func TestParseRiskProfile(t *testing.T) {
	for _, p := range RiskProfiles {
		parsed, err := ParseRiskProfile(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	parsed, err := ParseRiskProfile(" Aggressive ")
	require.NoError(t, err)
	assert.Equal(t, RiskProfileAggressive, parsed)

	_, err = ParseRiskProfile("reckless")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestRiskProfile_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(RiskProfileConservative)
	require.NoError(t, err)
	assert.JSONEq(t, `"conservative"`, string(data))

	var p RiskProfile
	require.NoError(t, json.Unmarshal([]byte(`"moderate"`), &p))
	assert.Equal(t, RiskProfileModerate, p)
	assert.Error(t, json.Unmarshal([]byte(`"bold"`), &p))
}

func TestRiskProfile_Params(t *testing.T) {
	conservative := RiskProfileConservative.Params()
	aggressive := RiskProfileAggressive.Params()

	assert.Greater(t, conservative.VarianceMultiplier, aggressive.VarianceMultiplier)
	assert.Greater(t, conservative.CVaRMultiplier, aggressive.CVaRMultiplier)
	assert.Less(t, conservative.MaxWeight, aggressive.MaxWeight)

	for _, p := range append([]RiskProfile{RiskProfileNeutral}, RiskProfiles...) {
		w := p.Params().SelectionWeights
		assert.InDelta(t, 1.0, w[0]+w[1]+w[2], 1e-12, "selection weights of %s should sum to 1", p)
	}
}

func TestRiskProfile_EffectiveMaxWeight(t *testing.T) {
	assert.InDelta(t, 0.30, RiskProfileModerate.EffectiveMaxWeight(5, 10), 1e-12)
	assert.InDelta(t, 0.25, RiskProfileModerate.EffectiveMaxWeight(1, 10), 1e-12, "short horizon tightens the cap")
	assert.InDelta(t, 0.5, RiskProfileConservative.EffectiveMaxWeight(5, 2), 1e-12, "cap is raised to keep the problem feasible")
	assert.InDelta(t, 1.0, RiskProfileNeutral.EffectiveMaxWeight(1, 3), 1e-12)
}

func TestReturnSeries_Validate(t *testing.T) {
	series := &ReturnSeries{
		Assets:  []Asset{{ID: 1, Ticker: "AAA"}, {ID: 2, Ticker: "BBB"}},
		Dates:   []time.Time{month(2020, 1), month(2020, 2)},
		Returns: [][]float64{{0.01, 0.02}, {-0.01, 0.03}},
	}
	require.NoError(t, series.Validate())
	assert.Equal(t, 2, series.Len())
	assert.Equal(t, []float64{0.02, 0.03}, series.Column(1))
	assert.Equal(t, []int64{1, 2}, series.AssetIDs())
	assert.Equal(t, month(2020, 1), series.Start())
	assert.Equal(t, month(2020, 2), series.End())

	series.Returns[1][0] = math.NaN()
	var verr *ValidationError
	require.ErrorAs(t, series.Validate(), &verr)
	assert.Equal(t, []int64{1}, verr.AssetIDs)

	series.Returns[1][0] = 0
	series.Dates[1] = month(2019, 12)
	assert.Error(t, series.Validate(), "dates must be increasing")
}

func TestErrors_Wrapping(t *testing.T) {
	ref := month(2020, 6)
	err := fmt.Errorf("optimize: %w", &DataInsufficientError{Periods: 3, Required: MinPeriods, ReferenceDate: &ref, Source: "backtest_filter"})

	assert.True(t, IsDataInsufficient(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "3 periods available, 12 required up to 2020-06-01")

	verr := &ValidationError{Field: "excludedAssets", Reason: "no assets remain", AssetIDs: []int64{4, 7}}
	assert.Equal(t, "invalid excludedAssets: no assets remain [assets 4,7]", verr.Error())

	assert.True(t, errors.Is(fmt.Errorf("run: %w", ErrCancelled), ErrCancelled))
}

func TestParetoFront_Points(t *testing.T) {
	front := ParetoFront{Solutions: []Solution{
		{Objectives: ObjectiveVector{Minimized: [3]float64{-0.1, 0.2, 0.3}}},
		{Objectives: ObjectiveVector{Minimized: [3]float64{-0.2, 0.4, 0.5}}},
	}}
	assert.Equal(t, 2, front.Len())
	assert.Equal(t, [][]float64{{-0.1, 0.2, 0.3}, {-0.2, 0.4, 0.5}}, front.Points())
}

func TestActiveAssetIDs(t *testing.T) {
	assets := []Asset{{ID: 3}, {ID: 1}, {ID: 7}, {ID: 2}}
	assert.Equal(t, []int64{3, 2}, ActiveAssetIDs(assets, []int64{1, 7, 99}))
	assert.Equal(t, []int64{3, 1, 7, 2}, ActiveAssetIDs(assets, nil))
	assert.Empty(t, ActiveAssetIDs(assets, []int64{1, 2, 3, 7}))
}
