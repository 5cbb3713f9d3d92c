package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// RiskProfile is an investor risk tolerance level.
type RiskProfile int

const (
	// RiskProfileNeutral applies no risk scaling; used for tuning and stored-config fallback.
	RiskProfileNeutral RiskProfile = iota
	RiskProfileConservative
	RiskProfileModerate
	RiskProfileAggressive
)

// RiskProfiles lists the user-selectable profiles.
var RiskProfiles = []RiskProfile{RiskProfileConservative, RiskProfileModerate, RiskProfileAggressive}

// RiskParams are the objective multipliers and allocation limits of a profile.
type RiskParams struct {
	VarianceMultiplier float64
	CVaRMultiplier     float64
	MaxWeight          float64
	// SelectionWeights weight [return, variance, cvar] when picking one solution off the front.
	SelectionWeights [NumObjectives]float64
}

// ParseRiskProfile parses a profile name. An empty string is an error.
func ParseRiskProfile(s string) (RiskProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conservative":
		return RiskProfileConservative, nil
	case "moderate":
		return RiskProfileModerate, nil
	case "aggressive":
		return RiskProfileAggressive, nil
	case "neutral":
		return RiskProfileNeutral, nil
	}
	return RiskProfileNeutral, &ValidationError{
		Field:  "riskProfile",
		Reason: fmt.Sprintf("unknown risk profile %q (expected conservative, moderate or aggressive)", s),
	}
}

func (p RiskProfile) String() string {
	switch p {
	case RiskProfileNeutral:
		return "neutral"
	case RiskProfileConservative:
		return "conservative"
	case RiskProfileModerate:
		return "moderate"
	case RiskProfileAggressive:
		return "aggressive"
	}
	return fmt.Sprintf("RiskProfile(%d)", int(p))
}

// Valid reports whether p is one of the known profiles.
func (p RiskProfile) Valid() bool {
	return p >= RiskProfileNeutral && p <= RiskProfileAggressive
}

// Selectable reports whether p can be requested by a user.
func (p RiskProfile) Selectable() bool {
	return p >= RiskProfileConservative && p <= RiskProfileAggressive
}

// Params returns the profile's multipliers and limits.
func (p RiskProfile) Params() RiskParams {
	switch p {
	case RiskProfileConservative:
		return RiskParams{VarianceMultiplier: 1.5, CVaRMultiplier: 2.0, MaxWeight: 0.25, SelectionWeights: [3]float64{0.2, 0.4, 0.4}}
	case RiskProfileModerate:
		return RiskParams{VarianceMultiplier: 1.0, CVaRMultiplier: 1.0, MaxWeight: 0.30, SelectionWeights: [3]float64{0.4, 0.3, 0.3}}
	case RiskProfileAggressive:
		return RiskParams{VarianceMultiplier: 0.8, CVaRMultiplier: 0.8, MaxWeight: 0.40, SelectionWeights: [3]float64{0.6, 0.2, 0.2}}
	}
	third := 1.0 / 3.0
	return RiskParams{VarianceMultiplier: 1, CVaRMultiplier: 1, MaxWeight: 1, SelectionWeights: [3]float64{third, third, third}}
}

// EffectiveMaxWeight applies the horizon adjustment and the feasibility floor to the
// profile cap. Horizons shorter than two years tighten the cap by five points; the cap is
// never below 1/activeAssets, otherwise no portfolio could sum to one.
func (p RiskProfile) EffectiveMaxWeight(horizonYears float64, activeAssets int) float64 {
	limit := p.Params().MaxWeight
	if horizonYears > 0 && horizonYears < 2 && limit < 1 {
		limit -= 0.05
	}
	if activeAssets > 0 {
		limit = math.Max(limit, 1/float64(activeAssets))
	}
	return math.Min(limit, 1)
}

// MarshalJSON encodes the profile by name.
func (p RiskProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a profile name.
func (p *RiskProfile) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRiskProfile(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
