package tuning

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/evolution"
	"github.com/aristath/frontier/internal/modules/problem"
	"github.com/aristath/frontier/internal/work"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProblemSource builds the problem a request describes. The optimization service
// satisfies it.
type ProblemSource interface {
	Prepare(ctx context.Context, req domain.OptimizationRequest) (*problem.Problem, error)
}

// Exporter persists a finished report. kind is "convergence" or "grid".
type Exporter interface {
	Export(ctx context.Context, kind, sessionID string, report any) ([]string, error)
}

// Settings are the service defaults, overridable per request.
type Settings struct {
	Engine           evolution.Config
	Runs             int
	PopulationSizes  []int
	GenerationCounts []int
	CellTimeLimit    time.Duration
	Parallelism      int
	Window           int
	Threshold        float64
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Engine:           evolution.DefaultConfig(),
		Runs:             3,
		PopulationSizes:  []int{50, 100, 200, 300},
		GenerationCounts: []int{30, 50, 100, 150},
		Parallelism:      4,
		Window:           10,
		Threshold:        0.01,
	}
}

// ProblemRequest selects the data a tuning run works on. The zero profile is neutral.
type ProblemRequest struct {
	RiskProfile    domain.RiskProfile
	ExcludedAssets []int64
	ReferenceDate  *time.Time
	LookbackMonths int
}

// ConvergenceRequest asks for a convergence analysis. Zero fields take the defaults.
type ConvergenceRequest struct {
	ProblemRequest
	MaxGenerations int
	PopulationSize int
	Runs           int
	Metric         Metric
	Seed           *uint64
}

// GridRequest asks for a grid search. Zero fields take the defaults. With Save the
// best cell becomes the active configuration for the problem's asset count and profile.
type GridRequest struct {
	ProblemRequest
	PopulationSizes  []int
	GenerationCounts []int
	Runs             int
	CellTimeLimit    time.Duration
	Metric           Metric
	Seed             *uint64
	Save             bool
}

// Service runs tuning jobs against the live universe.
type Service struct {
	problems ProblemSource
	repo     *Repository
	exporter Exporter // Optional: writes reports
	emitter  work.EventEmitter
	settings Settings
	log      zerolog.Logger
}

// NewService creates a tuning service. repo may be nil when results are not stored.
func NewService(problems ProblemSource, repo *Repository, settings Settings, log zerolog.Logger) *Service {
	return &Service{
		problems: problems,
		repo:     repo,
		emitter:  work.NewLogEmitter(log),
		settings: settings,
		log:      log.With().Str("component", "tuning_service").Logger(),
	}
}

// SetExporter sets where finished reports are written.
func (s *Service) SetExporter(e Exporter) {
	s.exporter = e
}

// SetEventEmitter replaces the default log emitter for progress events.
func (s *Service) SetEventEmitter(e work.EventEmitter) {
	s.emitter = e
}

func (s *Service) prepare(ctx context.Context, req ProblemRequest) (*problem.Problem, error) {
	if !req.RiskProfile.Valid() {
		return nil, &domain.ValidationError{Field: "riskProfile", Reason: fmt.Sprintf("unknown risk profile %d", int(req.RiskProfile))}
	}
	return s.problems.Prepare(ctx, domain.OptimizationRequest{
		RiskProfile:    req.RiskProfile,
		ExcludedAssets: req.ExcludedAssets,
		ReferenceDate:  req.ReferenceDate,
		LookbackMonths: req.LookbackMonths,
	})
}

// Converge runs a convergence analysis and exports the report when an exporter is set.
func (s *Service) Converge(ctx context.Context, req ConvergenceRequest) (*ConvergenceReport, error) {
	p, err := s.prepare(ctx, req.ProblemRequest)
	if err != nil {
		return nil, err
	}

	opts := ConvergenceOptions{
		Engine:      s.settings.Engine,
		Window:      s.settings.Window,
		Threshold:   s.settings.Threshold,
		Metric:      req.Metric,
		Parallelism: s.settings.Parallelism,
	}
	if req.Seed != nil {
		opts.Engine.Seed = *req.Seed
	}
	maxGenerations := valueOr(req.MaxGenerations, s.settings.Engine.Generations)
	populationSize := valueOr(req.PopulationSize, s.settings.Engine.PopulationSize)
	runs := valueOr(req.Runs, s.settings.Runs)

	sessionID := uuid.NewString()
	analyzer := NewConvergenceAnalyzer(opts, s.log)
	analyzer.SetProgressReporter(work.NewProgressReporter(s.emitter, sessionID, work.JobConvergence, req.RiskProfile.String()))

	report, err := analyzer.Run(ctx, p, maxGenerations, populationSize, runs)
	if err != nil {
		return nil, err
	}
	s.export(ctx, "convergence", sessionID, report)
	return report, nil
}

// Grid runs a grid search, optionally storing the best configuration.
// A cancelled search is never stored.
func (s *Service) Grid(ctx context.Context, req GridRequest) (*GridReport, error) {
	p, err := s.prepare(ctx, req.ProblemRequest)
	if err != nil {
		return nil, err
	}

	opts := GridOptions{
		Engine:      s.settings.Engine,
		Parallelism: s.settings.Parallelism,
		Window:      s.settings.Window,
		Threshold:   s.settings.Threshold,
	}
	if req.Seed != nil {
		opts.Engine.Seed = *req.Seed
	}
	pops := req.PopulationSizes
	if len(pops) == 0 {
		pops = s.settings.PopulationSizes
	}
	gens := req.GenerationCounts
	if len(gens) == 0 {
		gens = s.settings.GenerationCounts
	}
	limit := req.CellTimeLimit
	if limit == 0 {
		limit = s.settings.CellTimeLimit
	}

	tuner := NewGridSearchTuner(opts, s.log)
	tuner.SetProgressReporter(work.NewProgressReporter(s.emitter, uuid.NewString(), work.JobGridSearch, req.RiskProfile.String()))

	report, err := tuner.Run(ctx, p, pops, gens, valueOr(req.Runs, s.settings.Runs), limit, req.Metric)
	if err != nil {
		return nil, err
	}

	if req.Save && !report.Cancelled && s.repo != nil {
		cfg, err := ConfigFromGrid(report, req.RiskProfile)
		if err != nil {
			return report, err
		}
		if err := s.repo.Save(ctx, cfg); err != nil {
			return report, fmt.Errorf("failed to save best configuration: %w", err)
		}
	}
	s.export(ctx, "grid", report.SessionID, report)
	return report, nil
}

// Best returns the stored configuration that applies to a problem shape, or nil.
func (s *Service) Best(ctx context.Context, assetCount int, profile domain.RiskProfile) (*domain.HyperparameterConfig, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.Lookup(ctx, assetCount, profile)
}

// Retune grid-searches every selectable risk profile over the full universe and
// stores the winners. A failing profile is logged and the rest still run.
func (s *Service) Retune(ctx context.Context) error {
	var failed int
	for _, profile := range domain.RiskProfiles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report, err := s.Grid(ctx, GridRequest{ProblemRequest: ProblemRequest{RiskProfile: profile}, Save: true})
		if err != nil {
			failed++
			s.log.Error().Err(err).Str("risk_profile", profile.String()).Msg("Retune failed")
			continue
		}
		if report.Best != nil {
			s.log.Info().
				Str("risk_profile", profile.String()).
				Int("population", report.Best.PopulationSize).
				Int("generations", report.Best.Generations).
				Msg("Retuned")
		}
	}
	if failed == len(domain.RiskProfiles) {
		return fmt.Errorf("retune failed for every risk profile")
	}
	return nil
}

func (s *Service) export(ctx context.Context, kind, sessionID string, report any) {
	if s.exporter == nil {
		return
	}
	paths, err := s.exporter.Export(ctx, kind, sessionID, report)
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Str("session_id", sessionID).Msg("Failed to export report")
		return
	}
	s.log.Info().Strs("paths", paths).Str("kind", kind).Msg("Exported report")
}

func valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
