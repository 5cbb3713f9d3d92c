package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/tuning"
	"github.com/google/subcommands"
)

type convergeCmd struct {
	problem     problemFlags
	generations int
	population  int
	runs        int
	metric      string
	asJSON      bool
	verbose     bool
}

func (*convergeCmd) Name() string     { return "converge" }
func (*convergeCmd) Synopsis() string { return "measure how many generations the engine needs" }
func (*convergeCmd) Usage() string {
	return `frontier converge [-profile p] [-gens n] [-pop n] [-runs n] [-metric hypervolume|spread|spacing]

  Runs independent trials, records front quality per generation and reports when
  each trial stopped improving. The report is also written to REPORTS_DIR.
`
}

func (c *convergeCmd) SetFlags(f *flag.FlagSet) {
	c.problem.register(f, "neutral")
	f.IntVar(&c.generations, "gens", 0, "Maximum generations per trial")
	f.IntVar(&c.population, "pop", 0, "Population size")
	f.IntVar(&c.runs, "runs", 0, "Number of trials")
	f.StringVar(&c.metric, "metric", "hypervolume", "Convergence metric")
	f.BoolVar(&c.asJSON, "json", false, "Print the full report as JSON")
	f.BoolVar(&c.verbose, "v", false, "Debug logging")
}

func (c *convergeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	req, err := c.problem.tuningRequest()
	if err != nil {
		return fail(err)
	}
	metric, err := tuning.ParseMetric(c.metric)
	if err != nil {
		return fail(err)
	}

	s, err := openSession(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	report, err := s.container.TuningService.Converge(ctx, tuning.ConvergenceRequest{
		ProblemRequest: req,
		MaxGenerations: c.generations,
		PopulationSize: c.population,
		Runs:           c.runs,
		Metric:         metric,
		Seed:           c.problem.seedPtr(),
	})
	if err != nil {
		return fail(err)
	}

	if c.asJSON {
		if err := printJSON(report); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	fmt.Printf("Population %d, up to %d generations, %d trials, metric %s\n",
		report.PopulationSize, report.MaxGenerations, report.Runs, report.Metric)
	for _, trial := range report.Trials {
		status := "did not converge"
		if trial.ConvergenceGeneration != nil {
			status = "converged at generation " + strconv.Itoa(*trial.ConvergenceGeneration)
		}
		fmt.Printf("  trial %d (seed %d): %s in %.1fs\n", trial.Run+1, trial.Seed, status, trial.ElapsedSeconds)
	}
	if report.ConvergenceMean != nil {
		fmt.Printf("Mean convergence generation %.1f", *report.ConvergenceMean)
		if report.ConvergenceStd != nil {
			fmt.Printf(" (std %.1f)", *report.ConvergenceStd)
		}
		fmt.Println()
	}
	fmt.Printf("%d/%d trials converged in %.1fs\n", report.Converged, report.Runs, report.ElapsedSeconds)
	if report.Cancelled {
		fmt.Fprintln(os.Stderr, "Warning: analysis was cancelled, trials are partial")
	}
	return subcommands.ExitSuccess
}

type gridCmd struct {
	problem     problemFlags
	populations string
	generations string
	runs        int
	cellLimit   time.Duration
	metric      string
	save        bool
	asJSON      bool
	verbose     bool
}

func (*gridCmd) Name() string     { return "grid" }
func (*gridCmd) Synopsis() string { return "grid-search population size and generation count" }
func (*gridCmd) Usage() string {
	return `frontier grid [-profile p] [-pops 50,100] [-gens 30,50] [-runs n] [-limit 2m] [-save]

  Evaluates every population/generation pair, ranks them by the metric and, with
  -save, stores the winner for the universe's asset count and risk profile.
`
}

func (c *gridCmd) SetFlags(f *flag.FlagSet) {
	c.problem.register(f, "neutral")
	f.StringVar(&c.populations, "pops", "", "Comma-separated population sizes (default from config)")
	f.StringVar(&c.generations, "gens", "", "Comma-separated generation counts (default from config)")
	f.IntVar(&c.runs, "runs", 0, "Runs per cell")
	f.DurationVar(&c.cellLimit, "limit", 0, "Advisory time limit per cell, checked between runs")
	f.StringVar(&c.metric, "metric", "hypervolume", "Ranking metric")
	f.BoolVar(&c.save, "save", false, "Store the best configuration")
	f.BoolVar(&c.asJSON, "json", false, "Print the full report as JSON")
	f.BoolVar(&c.verbose, "v", false, "Debug logging")
}

func (c *gridCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	req, err := c.problem.tuningRequest()
	if err != nil {
		return fail(err)
	}
	metric, err := tuning.ParseMetric(c.metric)
	if err != nil {
		return fail(err)
	}
	pops, err := parseInts("pops", c.populations)
	if err != nil {
		return fail(err)
	}
	gens, err := parseInts("gens", c.generations)
	if err != nil {
		return fail(err)
	}

	s, err := openSession(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	report, err := s.container.TuningService.Grid(ctx, tuning.GridRequest{
		ProblemRequest:   req,
		PopulationSizes:  pops,
		GenerationCounts: gens,
		Runs:             c.runs,
		CellTimeLimit:    c.cellLimit,
		Metric:           metric,
		Seed:             c.problem.seedPtr(),
		Save:             c.save,
	})
	if err != nil {
		return fail(err)
	}

	if c.asJSON {
		if err := printJSON(report); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	fmt.Printf("Session %s: %d assets, %d runs per cell, ranked by %s\n\n",
		report.SessionID, report.AssetCount, report.RunsPerCell, report.Metric)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POP\tGENS\tRUNS\tHYPERVOLUME\tSPREAD\tSPACING\tSECONDS\t")
	for _, r := range report.Results {
		partial := ""
		if r.Partial {
			partial = "partial"
		}
		fmt.Fprintf(w, "%d\t%d\t%d/%d\t%.6g ± %.2g\t%.4f\t%.4g\t%.2f\t%s\n",
			r.PopulationSize, r.Generations, r.CompletedRuns, r.Runs,
			r.Hypervolume.Mean, r.Hypervolume.Std, r.Spread.Mean, r.Spacing.Mean,
			r.ElapsedSeconds.Mean, partial)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if report.Best != nil {
		fmt.Printf("\nBest: population %d, %d generations\n", report.Best.PopulationSize, report.Best.Generations)
		if c.save {
			fmt.Println("Saved as the active configuration")
		}
	}
	if report.Cancelled {
		fmt.Fprintln(os.Stderr, "Warning: grid search was cancelled, results are partial")
	}
	return subcommands.ExitSuccess
}

type bestCmd struct {
	assets  int
	profile string
}

func (*bestCmd) Name() string     { return "best" }
func (*bestCmd) Synopsis() string { return "show the stored configuration for a problem shape" }
func (*bestCmd) Usage() string {
	return `frontier best -assets n [-profile p]

  Prints the tuned configuration the optimizer would use, following the same
  nearest-match fallback as production.
`
}

func (c *bestCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.assets, "assets", 0, "Number of assets")
	f.StringVar(&c.profile, "profile", "neutral", "Risk profile")
}

func (c *bestCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.assets < 1 {
		return fail(&domain.ValidationError{Field: "assets", Reason: "must be a positive integer"})
	}
	profile, err := domain.ParseRiskProfile(c.profile)
	if err != nil {
		return fail(err)
	}

	s, err := openSession(false)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	cfg, err := s.container.TuningService.Best(ctx, c.assets, profile)
	if err != nil {
		return fail(err)
	}
	if cfg == nil {
		fmt.Fprintln(os.Stderr, "No tuned configuration stored")
		return subcommands.ExitFailure
	}
	if err := printJSON(cfg); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// tuningRequest builds the shared tuning problem selection.
func (p *problemFlags) tuningRequest() (tuning.ProblemRequest, error) {
	profile, err := p.riskProfile()
	if err != nil {
		return tuning.ProblemRequest{}, err
	}
	excluded, err := p.excluded()
	if err != nil {
		return tuning.ProblemRequest{}, err
	}
	ref, err := p.referenceDate()
	if err != nil {
		return tuning.ProblemRequest{}, err
	}
	return tuning.ProblemRequest{
		RiskProfile:    profile,
		ExcludedAssets: excluded,
		ReferenceDate:  ref,
		LookbackMonths: p.lookback,
	}, nil
}
