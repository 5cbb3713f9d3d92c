package tuning

import (
	"context"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	testutil "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "tuning")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func saveConfig(t *testing.T, repo *Repository, assets int, profile domain.RiskProfile, population int) *domain.HyperparameterConfig {
	t.Helper()
	cfg := &domain.HyperparameterConfig{
		AssetCount:         assets,
		RiskProfile:        profile,
		PopulationSize:     population,
		Generations:        50,
		MeanHypervolume:    0.5,
		MeanElapsedSeconds: 1.2,
		SessionID:          "session",
	}
	require.NoError(t, repo.Save(context.Background(), cfg))
	return cfg
}

func TestRepository_SaveDeactivatesPrevious(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := saveConfig(t, repo, 10, domain.RiskProfileModerate, 100)
	second := saveConfig(t, repo, 10, domain.RiskProfileModerate, 200)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Active)

	active, err := repo.Active(ctx, 10, domain.RiskProfileModerate)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 200, active.PopulationSize)
	assert.Nil(t, active.ConvergenceGeneration)

	history, err := repo.History(ctx, 10, domain.RiskProfileModerate)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Active)
	assert.False(t, history[1].Active)
}

func TestRepository_SaveRejectsInvalid(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.Save(context.Background(), &domain.HyperparameterConfig{AssetCount: 0, PopulationSize: 10})
	assert.True(t, domain.IsValidation(err))
}

func TestRepository_LookupFallbacks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saveConfig(t, repo, 10, domain.RiskProfileModerate, 100)
	saveConfig(t, repo, 11, domain.RiskProfileModerate, 110)
	saveConfig(t, repo, 8, domain.RiskProfileModerate, 80)
	saveConfig(t, repo, 20, domain.RiskProfileNeutral, 300)
	saveConfig(t, repo, 30, domain.RiskProfileAggressive, 400)

	tests := []struct {
		name       string
		assets     int
		profile    domain.RiskProfile
		population int
	}{
		{"exact", 10, domain.RiskProfileModerate, 100},
		{"plus one before minus one", 9, domain.RiskProfileModerate, 100},
		{"plus two", 6, domain.RiskProfileModerate, 80},
		{"neutral profile", 21, domain.RiskProfileModerate, 300},
		{"closest count", 15, domain.RiskProfileConservative, 300},
		{"closest count prefers requested profile", 40, domain.RiskProfileAggressive, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := repo.Lookup(ctx, tt.assets, tt.profile)
			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.Equal(t, tt.population, cfg.PopulationSize)
		})
	}
}

func TestRepository_LookupEmpty(t *testing.T) {
	repo := newTestRepository(t)
	cfg, err := repo.Lookup(context.Background(), 5, domain.RiskProfileModerate)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestConfigFromGrid(t *testing.T) {
	conv := Stat{Mean: 17.5}
	report := &GridReport{
		SessionID:  "abc",
		AssetCount: 6,
		Best: &TuningResult{
			PopulationSize:        100,
			Generations:           50,
			Hypervolume:           Stat{Mean: 0.42},
			ElapsedSeconds:        Stat{Mean: 3},
			ConvergenceGeneration: &conv,
		},
	}
	cfg, err := ConfigFromGrid(report, domain.RiskProfileConservative)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.AssetCount)
	assert.Equal(t, 100, cfg.PopulationSize)
	require.NotNil(t, cfg.ConvergenceGeneration)
	assert.Equal(t, 17.5, *cfg.ConvergenceGeneration)

	_, err = ConfigFromGrid(&GridReport{}, domain.RiskProfileModerate)
	assert.ErrorIs(t, err, ErrNoResults)
}
