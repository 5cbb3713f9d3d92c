// Package optimization runs the production portfolio optimization: load history,
// apply backtest filtering, evolve a Pareto front and pick one portfolio from it.
package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/evolution"
	"github.com/aristath/frontier/internal/modules/problem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// amountPlaces is the precision of allocation amounts.
const amountPlaces = 2

// Settings configure the service.
type Settings struct {
	// Engine supplies defaults for anything neither the tuned config nor the request sets.
	Engine     evolution.Config
	Confidence float64
	Policy     evolution.SelectionPolicy
}

// DefaultSettings uses the engine defaults, 95% CVaR and ideal-point selection.
func DefaultSettings() Settings {
	return Settings{
		Engine:     evolution.DefaultConfig(),
		Confidence: problem.DefaultConfidence,
		Policy:     evolution.PolicyIdealPoint,
	}
}

// Service orchestrates a single optimization.
type Service struct {
	data     domain.DataProvider
	sink     domain.PersistenceSink // Optional: stores every result
	configs  domain.ConfigSource    // Optional: tuned population/generations
	settings Settings
	log      zerolog.Logger
}

// NewService creates an optimization service.
func NewService(data domain.DataProvider, settings Settings, log zerolog.Logger) *Service {
	return &Service{
		data:     data,
		settings: settings,
		log:      log.With().Str("component", "optimization_service").Logger(),
	}
}

// SetPersistenceSink sets where results are saved.
func (s *Service) SetPersistenceSink(sink domain.PersistenceSink) {
	s.sink = sink
}

// SetConfigSource sets the source of tuned hyperparameters.
func (s *Service) SetConfigSource(configs domain.ConfigSource) {
	s.configs = configs
}

// Run carries the evolved front alongside the selected result.
type Run struct {
	Result  *domain.OptimizationResult
	Front   domain.ParetoFront
	Problem *problem.Problem
	Config  evolution.Config
}

// Optimize runs one optimization and returns the selected portfolio.
// Structural problems (unknown profile, everything excluded, too little history) fail
// before the engine starts. A cancelled context yields the best portfolio so far
// with Complete=false.
func (s *Service) Optimize(ctx context.Context, req domain.OptimizationRequest) (*domain.OptimizationResult, error) {
	run, err := s.OptimizeFront(ctx, req)
	if err != nil {
		return nil, err
	}
	return run.Result, nil
}

// OptimizeFront is Optimize that also returns the full front.
func (s *Service) OptimizeFront(ctx context.Context, req domain.OptimizationRequest) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	p, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	filtered := p.Series()

	cfg, tuned := s.engineConfig(ctx, req, len(p.ActiveIndices()))

	s.log.Info().
		Str("risk_profile", req.RiskProfile.String()).
		Int("assets", p.NumAssets()).
		Int("active_assets", len(p.ActiveIndices())).
		Int("periods", filtered.Len()).
		Bool("backtest", req.ReferenceDate != nil).
		Int("population", cfg.PopulationSize).
		Int("generations", cfg.Generations).
		Bool("tuned", tuned).
		Msg("Starting optimization")

	engine, err := evolution.NewEngine(p, cfg, s.log)
	if err != nil {
		return nil, err
	}
	evolved, err := engine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("evolution failed: %w", err)
	}
	if evolved.Front.Len() == 0 {
		// Only possible when cancelled before the first population was evaluated.
		return nil, domain.ErrCancelled
	}

	selected, _, err := evolution.SelectSolution(evolved.Front, req.RiskProfile.Params().SelectionWeights, s.settings.Policy)
	if err != nil {
		return nil, err
	}

	result := &domain.OptimizationResult{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		RiskProfile:    req.RiskProfile,
		Composition:    composition(filtered.Assets, selected.Weights, req.Capital),
		Objectives:     selected.Objectives,
		ReferenceDate:  req.ReferenceDate,
		PeriodStart:    filtered.Start(),
		PeriodEnd:      filtered.End(),
		PeriodCount:    filtered.Len(),
		IsBacktest:     req.ReferenceDate != nil,
		Complete:       evolved.Complete(),
		FrontSize:      evolved.Front.Len(),
		PopulationSize: cfg.PopulationSize,
		Generations:    evolved.Generations,
		Seed:           cfg.Seed,
		TunedConfig:    tuned,
	}

	if s.sink != nil {
		if err := s.sink.SaveOptimization(ctx, result); err != nil {
			s.log.Error().Err(err).Str("id", result.ID).Msg("Failed to save optimization result")
		}
	}

	s.log.Info().
		Str("id", result.ID).
		Int("front_size", result.FrontSize).
		Int("holdings", len(result.Composition)).
		Float64("expected_return", result.Objectives.ExpectedReturn).
		Float64("cvar", result.Objectives.CVaR).
		Bool("complete", result.Complete).
		Dur("elapsed", evolved.Elapsed).
		Msg("Optimization finished")

	return &Run{Result: result, Front: evolved.Front, Problem: p, Config: cfg}, nil
}

// Prepare loads the history a request may see and builds its problem: every asset
// in the universe that is not excluded, filtered to the reference date and lookback
// window, with the request's profile. Excluded assets are left out of the series so
// their history never narrows the periods the others are aligned on. The neutral
// profile is accepted here for tuning.
func (s *Service) Prepare(ctx context.Context, req domain.OptimizationRequest) (*problem.Problem, error) {
	assets, err := s.data.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}
	if err := checkExclusions(assets, req.ExcludedAssets); err != nil {
		return nil, err
	}

	series, err := s.data.ReturnSeries(ctx, domain.ActiveAssetIDs(assets, req.ExcludedAssets), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load returns: %w", err)
	}
	filtered, err := backtest.Window(series, req.ReferenceDate, req.LookbackMonths)
	if err != nil {
		return nil, err
	}

	return problem.New(filtered, problem.Options{
		RiskProfile:  req.RiskProfile,
		Excluded:     req.ExcludedAssets,
		HorizonYears: req.InvestmentHorizonYears,
		Confidence:   s.settings.Confidence,
	}, s.log)
}

// engineConfig layers the tuned configuration and the request overrides on the defaults.
func (s *Service) engineConfig(ctx context.Context, req domain.OptimizationRequest, activeAssets int) (evolution.Config, bool) {
	cfg := s.settings.Engine
	tuned := false
	if s.configs != nil {
		stored, err := s.configs.Lookup(ctx, activeAssets, req.RiskProfile)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("Hyperparameter lookup failed, using defaults")
		case stored != nil:
			cfg.PopulationSize = stored.PopulationSize
			cfg.Generations = stored.Generations
			tuned = true
		}
	}
	if req.PopulationSize > 0 {
		cfg.PopulationSize = req.PopulationSize
		tuned = false
	}
	if req.Generations > 0 {
		cfg.Generations = req.Generations
		tuned = false
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	return cfg, tuned
}

func validateRequest(req domain.OptimizationRequest) error {
	if !req.RiskProfile.Selectable() {
		return &domain.ValidationError{
			Field:  "riskProfile",
			Reason: fmt.Sprintf("%s is not one of conservative, moderate or aggressive", req.RiskProfile),
		}
	}
	if req.Capital.IsNegative() {
		return &domain.ValidationError{Field: "capital", Reason: "must not be negative"}
	}
	if req.InvestmentHorizonYears < 0 {
		return &domain.ValidationError{Field: "investmentHorizonYears", Reason: "must not be negative"}
	}
	if req.PopulationSize < 0 || req.PopulationSize == 1 {
		return &domain.ValidationError{Field: "populationSize", Reason: "must be at least 2 when set"}
	}
	if req.Generations < 0 || req.LookbackMonths < 0 {
		return &domain.ValidationError{Field: "generations", Reason: "must not be negative"}
	}
	return nil
}

// checkExclusions rejects a request that leaves no asset to invest in.
func checkExclusions(assets []domain.Asset, excluded []int64) error {
	if len(assets) == 0 {
		return &domain.ValidationError{Field: "assets", Reason: "asset universe is empty"}
	}
	skip := make(map[int64]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	for _, a := range assets {
		if !skip[a.ID] {
			return nil
		}
	}
	return &domain.ValidationError{
		Field:    "excludedAssets",
		Reason:   "every asset in the universe is excluded",
		AssetIDs: excluded,
	}
}

// composition lists the assets with positive weight. Amounts are capital*weight
// rounded to cents.
func composition(assets []domain.Asset, weights []float64, capital decimal.Decimal) []domain.AllocationItem {
	items := make([]domain.AllocationItem, 0, len(weights))
	for j, w := range weights {
		if w <= 0 {
			continue
		}
		items = append(items, domain.AllocationItem{
			AssetID: assets[j].ID,
			Ticker:  assets[j].Ticker,
			Weight:  w,
			Amount:  capital.Mul(decimal.NewFromFloat(w)).Round(amountPlaces),
		})
	}
	return items
}
