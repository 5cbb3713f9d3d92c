package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/aristath/frontier/internal/domain"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type optimizeCmd struct {
	problem     problemFlags
	capital     string
	horizon     float64
	population  int
	generations int
	asJSON      bool
	verbose     bool
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "optimize a portfolio and save the result" }
func (*optimizeCmd) Usage() string {
	return `frontier optimize -profile <profile> [-capital n] [-horizon years] [-exclude ids] [-ref date]

  Evolves a Pareto front over the universe, picks one portfolio for the risk
  profile and prints its composition.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.problem.register(f, "moderate")
	f.StringVar(&c.capital, "capital", "0", "Capital to allocate")
	f.Float64Var(&c.horizon, "horizon", 0, "Investment horizon in years")
	f.IntVar(&c.population, "pop", 0, "Population size override")
	f.IntVar(&c.generations, "gens", 0, "Generation count override")
	f.BoolVar(&c.asJSON, "json", false, "Print the full result as JSON")
	f.BoolVar(&c.verbose, "v", false, "Debug logging")
}

func (c *optimizeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	profile, err := c.problem.riskProfile()
	if err != nil {
		return fail(err)
	}
	excluded, err := c.problem.excluded()
	if err != nil {
		return fail(err)
	}
	ref, err := c.problem.referenceDate()
	if err != nil {
		return fail(err)
	}
	capital, err := decimal.NewFromString(c.capital)
	if err != nil {
		return fail(&domain.ValidationError{Field: "capital", Reason: err.Error()})
	}

	s, err := openSession(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	result, err := s.container.OptimizationService.Optimize(ctx, domain.OptimizationRequest{
		RiskProfile:            profile,
		InvestmentHorizonYears: c.horizon,
		Capital:                capital,
		ExcludedAssets:         excluded,
		ReferenceDate:          ref,
		LookbackMonths:         c.problem.lookback,
		Seed:                   c.problem.seedPtr(),
		PopulationSize:         c.population,
		Generations:            c.generations,
	})
	if err != nil {
		return fail(err)
	}

	if c.asJSON {
		if err := printJSON(result); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	fmt.Printf("Result %s (%s, %d periods, front of %d)\n", result.ID, result.RiskProfile, result.PeriodCount, result.FrontSize)
	fmt.Printf("Expected return %.4f  variance %.6f  CVaR %.4f\n\n",
		result.Objectives.ExpectedReturn, result.Objectives.Variance, result.Objectives.CVaR)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTICKER\tWEIGHT\tAMOUNT")
	for _, item := range result.Composition {
		fmt.Fprintf(w, "%d\t%s\t%.2f%%\t%s\n", item.AssetID, item.Ticker, item.Weight*100, item.Amount.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if !result.Complete {
		fmt.Fprintln(os.Stderr, "Warning: run was cancelled before the last generation")
	}
	return subcommands.ExitSuccess
}
