package tuning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// countOffsets is the order in which neighbouring asset counts are tried by Lookup.
var countOffsets = []int{0, 1, -1, 2, -2}

const configColumns = `id, asset_count, risk_profile, population_size, generations,
	mean_hypervolume, mean_elapsed_seconds, convergence_generation, session_id, created_at, active`

// Repository stores tuned hyperparameter configurations in tuning.db.
// At most one row is active per (asset_count, risk_profile); saving a new best
// configuration deactivates the previous ones, which stay for history.
//
// Repository implements domain.ConfigSource for the optimization service.
type Repository struct {
	db  *sql.DB        // tuning.db - hyperparameter_configs table
	log zerolog.Logger // Structured logger
}

// NewRepository creates a new hyperparameter repository.
//
// Parameters:
//   - db: Database connection to tuning.db
//   - log: Structured logger
//
// Returns:
//   - *Repository: Initialized repository instance
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "hyperparameters").Logger(),
	}
}

// Save records cfg as the active configuration for its (asset count, risk profile) key.
// Earlier active rows for the same key are deactivated in the same transaction.
// On success cfg.ID, cfg.CreatedAt (when zero) and cfg.Active are filled in.
//
// Parameters:
//   - ctx: Context for the database operation
//   - cfg: Configuration to store
//
// Returns:
//   - error: Error if the configuration is invalid or the transaction fails
func (r *Repository) Save(ctx context.Context, cfg *domain.HyperparameterConfig) error {
	if cfg.AssetCount < 1 || cfg.PopulationSize < 2 || cfg.Generations < 0 {
		return &domain.ValidationError{
			Field:  "config",
			Reason: fmt.Sprintf("assets=%d population=%d generations=%d", cfg.AssetCount, cfg.PopulationSize, cfg.Generations),
		}
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}

	var convergence sql.NullFloat64
	if cfg.ConvergenceGeneration != nil {
		convergence = sql.NullFloat64{Float64: *cfg.ConvergenceGeneration, Valid: true}
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE hyperparameter_configs SET active = 0
			WHERE asset_count = ? AND risk_profile = ? AND active = 1
		`, cfg.AssetCount, cfg.RiskProfile.String()); err != nil {
			return fmt.Errorf("failed to deactivate previous configs: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO hyperparameter_configs (
				asset_count, risk_profile, population_size, generations,
				mean_hypervolume, mean_elapsed_seconds, convergence_generation,
				session_id, created_at, active
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`, cfg.AssetCount, cfg.RiskProfile.String(), cfg.PopulationSize, cfg.Generations,
			cfg.MeanHypervolume, cfg.MeanElapsedSeconds, convergence,
			cfg.SessionID, cfg.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert config: %w", err)
		}
		cfg.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return err
	}
	cfg.Active = true

	r.log.Info().
		Int64("id", cfg.ID).
		Int("asset_count", cfg.AssetCount).
		Str("risk_profile", cfg.RiskProfile.String()).
		Int("population", cfg.PopulationSize).
		Int("generations", cfg.Generations).
		Msg("Saved hyperparameter config")
	return nil
}

// Lookup finds the best applicable configuration for a problem shape.
// The search order is: the requested profile at asset counts n, n+1, n-1, n+2, n-2;
// the neutral profile at the same counts; then the active row of either profile whose
// asset count is closest to n (ties prefer the requested profile, then the smaller count).
//
// Returns:
//   - *domain.HyperparameterConfig: Matching configuration, nil if none is stored
//   - error: Error if a query fails
func (r *Repository) Lookup(ctx context.Context, assetCount int, profile domain.RiskProfile) (*domain.HyperparameterConfig, error) {
	profiles := []domain.RiskProfile{profile}
	if profile != domain.RiskProfileNeutral {
		profiles = append(profiles, domain.RiskProfileNeutral)
	}

	for _, p := range profiles {
		for _, offset := range countOffsets {
			n := assetCount + offset
			if n < 1 {
				continue
			}
			cfg, err := r.Active(ctx, n, p)
			if err != nil {
				return nil, err
			}
			if cfg != nil {
				if offset != 0 || p != profile {
					r.log.Debug().
						Int("requested_assets", assetCount).
						Int("matched_assets", n).
						Str("matched_profile", p.String()).
						Msg("Using neighbouring hyperparameter config")
				}
				return cfg, nil
			}
		}
	}

	names := make([]any, len(profiles))
	for i, p := range profiles {
		names[i] = p.String()
	}
	query := `SELECT ` + configColumns + ` FROM hyperparameter_configs
		WHERE active = 1 AND risk_profile IN (?` + repeatPlaceholder(len(profiles)-1) + `)
		ORDER BY ABS(asset_count - ?), risk_profile = ? DESC, asset_count, id DESC
		LIMIT 1`
	args := append(names, assetCount, profile.String())
	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find closest config: %w", err)
	}
	return cfg, nil
}

// Active returns the active configuration for an exact key.
//
// Returns:
//   - *domain.HyperparameterConfig: Active configuration, nil if none
//   - error: Error if the query fails
func (r *Repository) Active(ctx context.Context, assetCount int, profile domain.RiskProfile) (*domain.HyperparameterConfig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM hyperparameter_configs
		WHERE asset_count = ? AND risk_profile = ? AND active = 1
		ORDER BY id DESC LIMIT 1`, assetCount, profile.String())
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config for %d assets (%s): %w", assetCount, profile, err)
	}
	return cfg, nil
}

// History returns every stored configuration for a key, newest first.
func (r *Repository) History(ctx context.Context, assetCount int, profile domain.RiskProfile) ([]domain.HyperparameterConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+configColumns+` FROM hyperparameter_configs
		WHERE asset_count = ? AND risk_profile = ?
		ORDER BY id DESC`, assetCount, profile.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query config history: %w", err)
	}
	defer rows.Close()

	var configs []domain.HyperparameterConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// ConfigFromGrid turns the best cell of a grid report into a storable configuration.
func ConfigFromGrid(report *GridReport, profile domain.RiskProfile) (*domain.HyperparameterConfig, error) {
	if report == nil || report.Best == nil {
		return nil, ErrNoResults
	}
	best := report.Best
	cfg := &domain.HyperparameterConfig{
		AssetCount:         report.AssetCount,
		RiskProfile:        profile,
		PopulationSize:     best.PopulationSize,
		Generations:        best.Generations,
		MeanHypervolume:    best.Hypervolume.Mean,
		MeanElapsedSeconds: best.ElapsedSeconds.Mean,
		SessionID:          report.SessionID,
	}
	if best.ConvergenceGeneration != nil {
		mean := best.ConvergenceGeneration.Mean
		cfg.ConvergenceGeneration = &mean
	}
	return cfg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*domain.HyperparameterConfig, error) {
	var (
		cfg         domain.HyperparameterConfig
		profile     string
		convergence sql.NullFloat64
		createdAt   int64
		active      int
	)
	if err := row.Scan(&cfg.ID, &cfg.AssetCount, &profile, &cfg.PopulationSize, &cfg.Generations,
		&cfg.MeanHypervolume, &cfg.MeanElapsedSeconds, &convergence, &cfg.SessionID, &createdAt, &active); err != nil {
		return nil, err
	}
	p, err := domain.ParseRiskProfile(profile)
	if err != nil {
		return nil, err
	}
	cfg.RiskProfile = p
	if convergence.Valid {
		v := convergence.Float64
		cfg.ConvergenceGeneration = &v
	}
	cfg.CreatedAt = time.Unix(createdAt, 0).UTC()
	cfg.Active = active == 1
	return &cfg, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
