package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/work"
	"github.com/aristath/frontier/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Default rolling parameters.
const (
	DefaultRebalanceMonths = 6
	DefaultWindowMonths    = 36
)

// Optimizer produces a portfolio for a request. The optimization service satisfies it.
type Optimizer interface {
	Optimize(ctx context.Context, req domain.OptimizationRequest) (*domain.OptimizationResult, error)
}

// Options describe a rolling backtest.
type Options struct {
	Start           time.Time
	End             time.Time
	Excluded        []int64
	RiskProfile     domain.RiskProfile
	RebalanceMonths int
	WindowMonths    int
	Capital         decimal.Decimal
	Seed            *uint64
}

// Period is one rebalance interval.
type Period struct {
	RebalanceDate time.Time               `json:"rebalance_date"`
	Until         time.Time               `json:"until"`
	Composition   []domain.AllocationItem `json:"composition,omitempty"`
	Return        float64                 `json:"return"`
	Periods       int                     `json:"periods"`
	Error         string                  `json:"error,omitempty"`
}

// Report summarizes a rolling backtest. Dates and Returns are the realized monthly
// portfolio returns across all successful intervals.
type Report struct {
	Options              Options     `json:"-"`
	Periods              []Period    `json:"periods"`
	Dates                []time.Time `json:"dates"`
	Returns              []float64   `json:"returns"`
	CumulativeReturn     float64     `json:"cumulative_return"`
	AnnualizedReturn     float64     `json:"annualized_return"`
	AnnualizedVolatility float64     `json:"annualized_volatility"`
	SharpeRatio          float64     `json:"sharpe_ratio"`
	MaxDrawdown          float64     `json:"max_drawdown"`
	FailedPeriods        int         `json:"failed_periods"`
	Cancelled            bool        `json:"cancelled"`
}

// Runner replays periodic re-optimization over history.
type Runner struct {
	data      domain.DataProvider
	optimizer Optimizer
	progress  *work.ProgressReporter
	log       zerolog.Logger
}

// NewRunner creates a backtest runner.
func NewRunner(data domain.DataProvider, optimizer Optimizer, log zerolog.Logger) *Runner {
	return &Runner{
		data:      data,
		optimizer: optimizer,
		log:       log.With().Str("component", "backtest").Logger(),
	}
}

// SetProgressReporter attaches a progress reporter for subsequent runs.
func (r *Runner) SetProgressReporter(p *work.ProgressReporter) {
	r.progress = p
}

// RebalanceDates lists start, start+step, ... strictly before end.
func RebalanceDates(start, end time.Time, stepMonths int) []time.Time {
	if stepMonths <= 0 {
		return nil
	}
	var dates []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, stepMonths, 0) {
		dates = append(dates, d)
	}
	return dates
}

// Run optimizes at each rebalance date using only history up to that date (limited to
// WindowMonths), then holds the portfolio over the periods after the date up to and
// including the next rebalance date (or End). Intervals whose optimization fails are
// logged and skipped. Cancellation stops at the next rebalance date and returns the
// report so far with Cancelled set.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.RebalanceMonths == 0 {
		opts.RebalanceMonths = DefaultRebalanceMonths
	}
	if opts.WindowMonths == 0 {
		opts.WindowMonths = DefaultWindowMonths
	}
	if opts.RebalanceMonths < 0 || opts.WindowMonths < 0 {
		return nil, &domain.ValidationError{Field: "months", Reason: "rebalance and window months must be positive"}
	}
	if !opts.Start.Before(opts.End) {
		return nil, &domain.ValidationError{Field: "start", Reason: "start must be before end"}
	}
	if !opts.RiskProfile.Selectable() {
		return nil, &domain.ValidationError{Field: "riskProfile", Reason: fmt.Sprintf("%s cannot be used for a backtest", opts.RiskProfile)}
	}

	// Realized returns are aligned on the holdable assets only
	assets, err := r.data.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}
	active := domain.ActiveAssetIDs(assets, opts.Excluded)
	if len(active) == 0 {
		return nil, &domain.ValidationError{Field: "excludedAssets", Reason: "every asset in the universe is excluded", AssetIDs: opts.Excluded}
	}
	series, err := r.data.ReturnSeries(ctx, active, &opts.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load returns: %w", err)
	}
	column := make(map[int64]int, series.NumAssets())
	for j, a := range series.Assets {
		column[a.ID] = j
	}

	dates := RebalanceDates(opts.Start, opts.End, opts.RebalanceMonths)
	report := &Report{Options: opts}

	r.log.Info().
		Time("start", opts.Start).
		Time("end", opts.End).
		Int("rebalances", len(dates)).
		Str("risk_profile", opts.RiskProfile.String()).
		Msg("Starting backtest")
	r.progress.Started()

	for k, date := range dates {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		until := opts.End
		if k+1 < len(dates) {
			until = dates[k+1]
		}

		ref := date
		period := Period{RebalanceDate: date, Until: until}
		result, err := r.optimizer.Optimize(ctx, domain.OptimizationRequest{
			RiskProfile:    opts.RiskProfile,
			Capital:        opts.Capital,
			ExcludedAssets: opts.Excluded,
			ReferenceDate:  &ref,
			LookbackMonths: opts.WindowMonths,
			Seed:           opts.Seed,
		})
		if err != nil {
			r.log.Warn().Err(err).Time("date", date).Msg("Optimization failed, skipping period")
			period.Error = err.Error()
			report.FailedPeriods++
			report.Periods = append(report.Periods, period)
			r.progress.Report(k+1, len(dates), "period skipped")
			continue
		}
		if !result.Complete {
			report.Cancelled = true
		}

		period.Composition = result.Composition
		var realized []float64
		for t, d := range series.Dates {
			if !d.After(date) || d.After(until) {
				continue
			}
			ret := 0.0
			for _, item := range result.Composition {
				if j, ok := column[item.AssetID]; ok {
					ret += item.Weight * series.Returns[t][j]
				}
			}
			realized = append(realized, ret)
			report.Dates = append(report.Dates, d)
		}
		period.Periods = len(realized)
		period.Return = formulas.CumulativeReturn(realized)
		report.Returns = append(report.Returns, realized...)
		report.Periods = append(report.Periods, period)

		r.log.Debug().
			Time("date", date).
			Int("periods", period.Periods).
			Float64("return", period.Return).
			Msg("Backtest period realized")
		r.progress.Report(k+1, len(dates), "period realized")
	}

	report.CumulativeReturn = formulas.CumulativeReturn(report.Returns)
	report.AnnualizedReturn = formulas.AnnualizedReturn(report.Returns, formulas.PeriodsPerYear)
	report.AnnualizedVolatility = formulas.AnnualizedVolatility(report.Returns, formulas.PeriodsPerYear)
	report.SharpeRatio = formulas.SharpeRatio(report.Returns, 0, formulas.PeriodsPerYear)
	report.MaxDrawdown = formulas.MaxDrawdown(report.Returns)

	r.log.Info().
		Int("periods", len(report.Periods)).
		Int("failed", report.FailedPeriods).
		Float64("cumulative_return", report.CumulativeReturn).
		Float64("sharpe", report.SharpeRatio).
		Float64("max_drawdown", report.MaxDrawdown).
		Bool("cancelled", report.Cancelled).
		Msg("Backtest finished")
	r.progress.Completed()

	return report, nil
}
