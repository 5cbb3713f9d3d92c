package universe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// MonthlyPrice is a month-end (or month-average) closing price.
type MonthlyPrice struct {
	Month time.Time
	Close float64
}

// ReturnsFromPrices converts a price history into simple period returns
// close[t]/close[t-1] - 1. Prices are sorted by month first; the first month yields
// no return. Non-positive prices are rejected.
func ReturnsFromPrices(prices []MonthlyPrice) ([]ReturnPoint, error) {
	sorted := append([]MonthlyPrice(nil), prices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Month.Before(sorted[j].Month) })

	points := make([]ReturnPoint, 0, max(len(sorted)-1, 0))
	for t, p := range sorted {
		if p.Close <= 0 {
			return nil, &domain.ValidationError{
				Field:  "prices",
				Reason: fmt.Sprintf("non-positive close %.4f at %s", p.Close, p.Month.Format("2006-01")),
			}
		}
		if t == 0 {
			continue
		}
		if !p.Month.After(sorted[t-1].Month) {
			return nil, &domain.ValidationError{Field: "prices", Reason: fmt.Sprintf("duplicate month %s", p.Month.Format("2006-01"))}
		}
		points = append(points, ReturnPoint{PeriodEnd: p.Month, Value: p.Close/sorted[t-1].Close - 1})
	}
	return points, nil
}

// SyncMonthlyPrices converts prices to returns and stores them for the asset.
func (r *Repository) SyncMonthlyPrices(ctx context.Context, assetID int64, prices []MonthlyPrice) error {
	points, err := ReturnsFromPrices(prices)
	if err != nil {
		return err
	}
	if err := r.InsertReturns(ctx, assetID, points); err != nil {
		return err
	}

	r.log.Info().
		Int64("asset_id", assetID).
		Int("prices", len(prices)).
		Int("returns", len(points)).
		Msg("Synced monthly prices")
	return nil
}

// ImportCSV reads a wide return table and stores it. The header is "date" followed by
// one ticker per column; each row holds a YYYY-MM-DD date and one return per ticker.
// Empty cells are skipped. Unknown tickers are created. Returns the number of values stored.
func (r *Repository) ImportCSV(ctx context.Context, in io.Reader) (int, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(header[0], "date") {
		return 0, &domain.ValidationError{Field: "csv", Reason: `header must start with "date" and name at least one ticker`}
	}

	ids := make([]int64, len(header)-1)
	for j, ticker := range header[1:] {
		id, err := r.UpsertAsset(ctx, domain.Asset{Ticker: ticker})
		if err != nil {
			return 0, err
		}
		ids[j] = id
	}

	points := make([][]ReturnPoint, len(ids))
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("failed to read line %d: %w", line, err)
		}
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return 0, &domain.ValidationError{Field: "csv", Reason: fmt.Sprintf("line %d: bad date %q", line, record[0])}
		}
		for j, cell := range record[1:] {
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return 0, &domain.ValidationError{
					Field:    "csv",
					Reason:   fmt.Sprintf("line %d: bad return %q", line, cell),
					AssetIDs: []int64{ids[j]},
				}
			}
			points[j] = append(points[j], ReturnPoint{PeriodEnd: date, Value: v})
		}
	}

	stored := 0
	for j, id := range ids {
		if err := r.InsertReturns(ctx, id, points[j]); err != nil {
			return stored, err
		}
		stored += len(points[j])
	}

	r.log.Info().
		Int("assets", len(ids)).
		Int("values", stored).
		Msg("Imported returns")
	return stored, nil
}
