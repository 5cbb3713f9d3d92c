package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/work"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type backtestCmd struct {
	problem   problemFlags
	start     string
	end       string
	rebalance int
	window    int
	capital   string
	asJSON    bool
	verbose   bool
}

func (*backtestCmd) Name() string     { return "backtest" }
func (*backtestCmd) Synopsis() string { return "replay periodic re-optimization over history" }
func (*backtestCmd) Usage() string {
	return `frontier backtest -start YYYY-MM-DD -end YYYY-MM-DD [-profile p] [-rebalance months] [-window months]

  Optimizes at every rebalance date using only the history available then, holds
  the portfolio until the next date and reports the realized performance.
`
}

func (c *backtestCmd) SetFlags(f *flag.FlagSet) {
	c.problem.register(f, "moderate")
	f.StringVar(&c.start, "start", "", "First rebalance date")
	f.StringVar(&c.end, "end", "", "End of the backtest")
	f.IntVar(&c.rebalance, "rebalance", 0, "Months between rebalances (default from config)")
	f.IntVar(&c.window, "window", 0, "Months of history per optimization (default from config)")
	f.StringVar(&c.capital, "capital", "0", "Capital to allocate")
	f.BoolVar(&c.asJSON, "json", false, "Print the full report as JSON")
	f.BoolVar(&c.verbose, "v", false, "Debug logging")
}

func (c *backtestCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	profile, err := c.problem.riskProfile()
	if err != nil {
		return fail(err)
	}
	excluded, err := c.problem.excluded()
	if err != nil {
		return fail(err)
	}
	start, err := time.Parse("2006-01-02", c.start)
	if err != nil {
		return fail(&domain.ValidationError{Field: "start", Reason: "expected YYYY-MM-DD"})
	}
	end, err := time.Parse("2006-01-02", c.end)
	if err != nil {
		return fail(&domain.ValidationError{Field: "end", Reason: "expected YYYY-MM-DD"})
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

	rebalance := c.rebalance
	if rebalance == 0 {
		rebalance = s.cfg.Backtest.RebalanceMonths
	}
	window := c.window
	if window == 0 {
		window = s.cfg.Backtest.WindowMonths
	}

	runner := s.container.BacktestRunner
	runner.SetProgressReporter(work.NewProgressReporter(work.NewLogEmitter(s.log), uuid.NewString(), work.JobBacktest, profile.String()))

	report, err := runner.Run(ctx, backtest.Options{
		Start:           start,
		End:             end,
		Excluded:        excluded,
		RiskProfile:     profile,
		RebalanceMonths: rebalance,
		WindowMonths:    window,
		Capital:         capital,
		Seed:            c.problem.seedPtr(),
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

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REBALANCE\tUNTIL\tPERIODS\tRETURN\tHOLDINGS\t")
	for _, p := range report.Periods {
		if p.Error != "" {
			fmt.Fprintf(w, "%s\t%s\t-\t-\tfailed: %s\t\n", p.RebalanceDate.Format("2006-01-02"), p.Until.Format("2006-01-02"), p.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f%%\t%d\t\n",
			p.RebalanceDate.Format("2006-01-02"), p.Until.Format("2006-01-02"), p.Periods, p.Return*100, len(p.Composition))
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}

	fmt.Printf("\nCumulative %.2f%%  annualized %.2f%%  volatility %.2f%%  Sharpe %.2f  max drawdown %.2f%%\n",
		report.CumulativeReturn*100, report.AnnualizedReturn*100, report.AnnualizedVolatility*100,
		report.SharpeRatio, report.MaxDrawdown*100)
	if report.FailedPeriods > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d periods failed to optimize\n", report.FailedPeriods)
	}
	if report.Cancelled {
		fmt.Fprintln(os.Stderr, "Warning: backtest was cancelled, results are partial")
	}
	return subcommands.ExitSuccess
}
