// Package backtest restricts return histories to what was known at a reference date
// and replays periodic re-optimization over history.
package backtest

import (
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// SourceFilter tags DataInsufficientErrors raised here.
const SourceFilter = "backtest_filter"

// Filter keeps the periods dated on or before ref. A nil ref returns series itself,
// unfiltered. Fewer than domain.MinPeriods remaining periods is a DataInsufficientError.
// The result shares rows with series.
func Filter(series *domain.ReturnSeries, ref *time.Time) (*domain.ReturnSeries, error) {
	if ref == nil {
		return series, nil
	}
	end := cutoff(series, *ref)
	if end < domain.MinPeriods {
		return nil, insufficient(end, ref)
	}
	return series.Slice(0, end), nil
}

// Window is Filter followed by keeping only periods within the months before the
// last kept period: dates after lastDate minus months. months <= 0 disables the window.
// With a nil ref the window ends at the series' last period.
func Window(series *domain.ReturnSeries, ref *time.Time, months int) (*domain.ReturnSeries, error) {
	filtered, err := Filter(series, ref)
	if err != nil {
		return nil, err
	}
	if months <= 0 || filtered.Len() == 0 {
		return filtered, nil
	}

	start := filtered.End().AddDate(0, -months, 0)
	from := 0
	for from < filtered.Len() && !filtered.Dates[from].After(start) {
		from++
	}
	if n := filtered.Len() - from; n < domain.MinPeriods {
		return nil, insufficient(n, ref)
	}
	return filtered.Slice(from, filtered.Len()), nil
}

// cutoff returns the number of leading periods dated on or before ref.
func cutoff(series *domain.ReturnSeries, ref time.Time) int {
	n := 0
	for n < series.Len() && !series.Dates[n].After(ref) {
		n++
	}
	return n
}

func insufficient(periods int, ref *time.Time) error {
	var date *time.Time
	if ref != nil {
		d := *ref
		date = &d
	}
	return &domain.DataInsufficientError{
		Periods:       periods,
		Required:      domain.MinPeriods,
		ReferenceDate: date,
		Source:        SourceFilter,
	}
}
