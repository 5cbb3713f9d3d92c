// Package universe stores the investable assets and their monthly return history,
// and serves aligned return series to the optimizer.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles universe.db operations.
// Assets live in the assets table; returns are one row per (asset, period) in
// asset_returns, with period_end stored as Unix seconds (UTC).
//
// Repository implements domain.DataProvider.
type Repository struct {
	db  *sql.DB        // universe.db - assets, asset_returns
	log zerolog.Logger // Structured logger
}

// NewRepository creates a new universe repository.
//
// Parameters:
//   - db: Database connection to universe.db
//   - log: Structured logger
//
// Returns:
//   - *Repository: Initialized repository instance
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "universe").Logger(),
	}
}

// UpsertAsset inserts an asset or updates it by ticker, and returns its id.
// The ticker is normalized to upper case.
func (r *Repository) UpsertAsset(ctx context.Context, asset domain.Asset) (int64, error) {
	ticker := strings.ToUpper(strings.TrimSpace(asset.Ticker))
	if ticker == "" {
		return 0, &domain.ValidationError{Field: "ticker", Reason: "must not be empty"}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO assets (ticker, name, asset_type, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			asset_type = excluded.asset_type,
			active = 1
		RETURNING id
	`, ticker, asset.Name, asset.AssetType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert asset %s: %w", ticker, err)
	}
	return id, nil
}

// Deactivate removes an asset from the investable universe without deleting its history.
func (r *Repository) Deactivate(ctx context.Context, assetID int64) error {
	res, err := r.db.ExecContext(ctx, "UPDATE assets SET active = 0 WHERE id = ?", assetID)
	if err != nil {
		return fmt.Errorf("failed to deactivate asset %d: %w", assetID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ValidationError{Field: "assetId", Reason: "unknown asset", AssetIDs: []int64{assetID}}
	}
	return nil
}

// ReturnPoint is one period's return for an asset.
type ReturnPoint struct {
	PeriodEnd time.Time
	Value     float64
}

// InsertReturns writes return points for one asset, replacing existing periods,
// in a single transaction.
//
// Parameters:
//   - ctx: Context for the database operation
//   - assetID: Asset the returns belong to
//   - points: Returns to write; dates are stored as UTC
//
// Returns:
//   - error: Error if any point is non-finite or the transaction fails
func (r *Repository) InsertReturns(ctx context.Context, assetID int64, points []ReturnPoint) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO asset_returns (asset_id, period_end, value)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				return &domain.ValidationError{
					Field:    "returns",
					Reason:   fmt.Sprintf("non-finite return at %s", p.PeriodEnd.Format("2006-01-02")),
					AssetIDs: []int64{assetID},
				}
			}
			if _, err := stmt.ExecContext(ctx, assetID, p.PeriodEnd.UTC().Unix(), p.Value); err != nil {
				return fmt.Errorf("failed to insert return for %s: %w", p.PeriodEnd.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Int64("asset_id", assetID).
		Int("count", len(points)).
		Msg("Stored returns")
	return nil
}

// Assets returns the active assets ordered by id.
func (r *Repository) Assets(ctx context.Context) ([]domain.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticker, name, asset_type
		FROM assets
		WHERE active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Name, &a.AssetType); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// ReturnSeries loads an aligned return table for assetIDs (all active assets when
// empty), in the order given. Only periods where every requested asset has a value
// are kept; with until set, periods after it are dropped. Unknown or inactive ids are
// a ValidationError naming them.
func (r *Repository) ReturnSeries(ctx context.Context, assetIDs []int64, until *time.Time) (*domain.ReturnSeries, error) {
	universe, err := r.Assets(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Asset, len(universe))
	for _, a := range universe {
		byID[a.ID] = a
	}

	assets := universe
	if len(assetIDs) > 0 {
		assets = make([]domain.Asset, 0, len(assetIDs))
		var unknown []int64
		seen := make(map[int64]bool, len(assetIDs))
		for _, id := range assetIDs {
			if seen[id] {
				return nil, &domain.ValidationError{Field: "assetIds", Reason: "duplicate asset", AssetIDs: []int64{id}}
			}
			seen[id] = true
			a, ok := byID[id]
			if !ok {
				unknown = append(unknown, id)
				continue
			}
			assets = append(assets, a)
		}
		if len(unknown) > 0 {
			return nil, &domain.ValidationError{Field: "assetIds", Reason: "unknown or inactive assets", AssetIDs: unknown}
		}
	}
	if len(assets) == 0 {
		return nil, &domain.ValidationError{Field: "assetIds", Reason: "no assets selected"}
	}

	column := make(map[int64]int, len(assets))
	args := make([]any, 0, len(assets)+1)
	for j, a := range assets {
		column[a.ID] = j
		args = append(args, a.ID)
	}

	query := `SELECT asset_id, period_end, value FROM asset_returns
		WHERE asset_id IN (?` + strings.Repeat(", ?", len(assets)-1) + `)`
	if until != nil {
		query += " AND period_end <= ?"
		args = append(args, until.UTC().Unix())
	}
	query += " ORDER BY period_end"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns: %w", err)
	}
	defer rows.Close()

	periods := make(map[int64][]float64)
	filled := make(map[int64]int)
	for rows.Next() {
		var assetID, periodEnd int64
		var value float64
		if err := rows.Scan(&assetID, &periodEnd, &value); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		row, ok := periods[periodEnd]
		if !ok {
			row = make([]float64, len(assets))
			periods[periodEnd] = row
		}
		row[column[assetID]] = value
		filled[periodEnd]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var keys []int64
	for k, n := range filled {
		if n == len(assets) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	series := &domain.ReturnSeries{
		Assets:  assets,
		Dates:   make([]time.Time, len(keys)),
		Returns: make([][]float64, len(keys)),
	}
	for t, k := range keys {
		series.Dates[t] = time.Unix(k, 0).UTC()
		series.Returns[t] = periods[k]
	}

	if dropped := len(filled) - len(keys); dropped > 0 {
		r.log.Debug().
			Int("assets", len(assets)).
			Int("aligned_periods", len(keys)).
			Int("dropped_periods", dropped).
			Msg("Dropped periods with missing returns")
	}
	return series, nil
}
