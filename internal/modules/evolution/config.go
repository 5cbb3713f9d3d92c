// Package evolution implements NSGA-II over long-only portfolio weight vectors:
// Dirichlet sampling, simplex SBX crossover, weight-transfer mutation, fast
// non-dominated sorting and crowding-distance truncation.
package evolution

import (
	"fmt"
	"runtime"

	"github.com/aristath/frontier/internal/domain"
)

// Config holds the evolution parameters.
type Config struct {
	PopulationSize int
	Generations    int
	Seed           uint64
	CrossoverRate  float64
	CrossoverEta   float64
	MutationRate   float64
	MutationEta    float64
	// Workers bounds concurrent objective evaluations.
	Workers int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 100,
		Generations:    50,
		Seed:           42,
		CrossoverRate:  0.9,
		CrossoverEta:   15,
		MutationRate:   0.1,
		MutationEta:    20,
		Workers:        runtime.NumCPU(),
	}
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 2:
		return &domain.ValidationError{Field: "populationSize", Reason: fmt.Sprintf("must be at least 2, got %d", c.PopulationSize)}
	case c.Generations < 0:
		return &domain.ValidationError{Field: "generations", Reason: fmt.Sprintf("must not be negative, got %d", c.Generations)}
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return &domain.ValidationError{Field: "crossoverRate", Reason: fmt.Sprintf("must be in [0,1], got %g", c.CrossoverRate)}
	case c.MutationRate < 0 || c.MutationRate > 1:
		return &domain.ValidationError{Field: "mutationRate", Reason: fmt.Sprintf("must be in [0,1], got %g", c.MutationRate)}
	case c.CrossoverEta <= 0 || c.MutationEta <= 0:
		return &domain.ValidationError{Field: "eta", Reason: "distribution indices must be positive"}
	}
	return nil
}
