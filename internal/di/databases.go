package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	databases := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// universe.db - assets and monthly returns
		{"universe", database.ProfileStandard, &container.UniverseDB},
		// tuning.db - hyperparameter configurations
		{"tuning", database.ProfileStandard, &container.TuningDB},
		// portfolio.db - saved results, must survive a crash
		{"portfolio", database.ProfileLedger, &container.PortfolioDB},
	}

	for _, entry := range databases {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, entry.name+".db"),
			Profile: entry.profile,
			Name:    entry.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", entry.name, err)
		}
		*entry.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", entry.name, err)
		}
		log.Debug().Str("database", entry.name).Str("path", db.Path()).Msg("Database ready")
	}

	return container, nil
}
