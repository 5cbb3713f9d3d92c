package optimization

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// PortfolioRepository keeps optimization results in portfolio.db.
// Each result is stored whole as JSON, with the columns needed for listing.
//
// PortfolioRepository implements domain.PersistenceSink.
type PortfolioRepository struct {
	db  *sql.DB        // portfolio.db - saved_portfolios table
	log zerolog.Logger // Structured logger
}

// NewPortfolioRepository creates a new portfolio repository.
func NewPortfolioRepository(db *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repository", "portfolios").Logger(),
	}
}

// SaveOptimization stores a result, replacing any earlier one with the same id.
func (r *PortfolioRepository) SaveOptimization(ctx context.Context, result *domain.OptimizationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	var ref sql.NullInt64
	if result.ReferenceDate != nil {
		ref = sql.NullInt64{Int64: result.ReferenceDate.Unix(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO saved_portfolios
		(id, created_at, risk_profile, is_backtest, reference_date, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.ID, result.CreatedAt.Unix(), result.RiskProfile.String(), boolToInt(result.IsBacktest), ref, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save result %s: %w", result.ID, err)
	}

	r.log.Debug().Str("id", result.ID).Msg("Saved optimization result")
	return nil
}

// Get returns a stored result, or nil if the id is unknown.
func (r *PortfolioRepository) Get(ctx context.Context, id string) (*domain.OptimizationResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, "SELECT payload FROM saved_portfolios WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result %s: %w", id, err)
	}

	var result domain.OptimizationResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", id, err)
	}
	return &result, nil
}

// Recent returns up to limit results, newest first. Backtest results are included
// only when withBacktests is set.
func (r *PortfolioRepository) Recent(ctx context.Context, limit int, withBacktests bool) ([]domain.OptimizationResult, error) {
	query := "SELECT payload FROM saved_portfolios"
	if !withBacktests {
		query += " WHERE is_backtest = 0"
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []domain.OptimizationResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var result domain.OptimizationResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			r.log.Warn().Err(err).Msg("Skipping undecodable result")
			continue
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
