package tuning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/evolution"
	"github.com/aristath/frontier/internal/modules/quality"
	"github.com/aristath/frontier/internal/work"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ConvergenceOptions configure a convergence analysis.
type ConvergenceOptions struct {
	// Engine is the template; population, generations and seed are set per trial.
	Engine      evolution.Config
	Window      int
	Threshold   float64
	Metric      Metric
	Parallelism int
}

// DefaultConvergenceOptions returns window 10, threshold 1% on hypervolume.
func DefaultConvergenceOptions() ConvergenceOptions {
	return ConvergenceOptions{
		Engine:      evolution.DefaultConfig(),
		Window:      10,
		Threshold:   0.01,
		Metric:      MetricHypervolume,
		Parallelism: 4,
	}
}

// GenerationRecord holds the quality of one generation's front.
type GenerationRecord struct {
	Generation      int `json:"generation" msgpack:"generation"`
	quality.Metrics `msgpack:",inline"`
}

// Trial is one independent run of the analysis.
type Trial struct {
	Run                   int                `json:"run" msgpack:"run"`
	Seed                  uint64             `json:"seed" msgpack:"seed"`
	Records               []GenerationRecord `json:"records" msgpack:"records"`
	ConvergenceGeneration *int               `json:"convergence_generation" msgpack:"convergence_generation"`
	ElapsedSeconds        float64            `json:"elapsed_seconds" msgpack:"elapsed_seconds"`
	Cancelled             bool               `json:"cancelled" msgpack:"cancelled"`
}

// TrajectoryPoint aggregates one generation across trials.
type TrajectoryPoint struct {
	Generation  int  `json:"generation" msgpack:"generation"`
	Trials      int  `json:"trials" msgpack:"trials"`
	Hypervolume Stat `json:"hypervolume" msgpack:"hypervolume"`
	Spread      Stat `json:"spread" msgpack:"spread"`
	Spacing     Stat `json:"spacing" msgpack:"spacing"`
	FrontSize   Stat `json:"front_size" msgpack:"front_size"`
}

// ConvergenceReport is the outcome of a convergence analysis.
type ConvergenceReport struct {
	PopulationSize         int               `json:"population_size" msgpack:"population_size"`
	MaxGenerations         int               `json:"max_generations" msgpack:"max_generations"`
	Runs                   int               `json:"runs" msgpack:"runs"`
	Metric                 Metric            `json:"metric" msgpack:"metric"`
	Window                 int               `json:"window" msgpack:"window"`
	Threshold              float64           `json:"threshold" msgpack:"threshold"`
	Reference              []float64         `json:"reference_point" msgpack:"reference_point"`
	Trials                 []Trial           `json:"trials" msgpack:"trials"`
	ConvergenceGenerations []int             `json:"convergence_generations" msgpack:"convergence_generations"`
	Converged              int               `json:"converged" msgpack:"converged"`
	ConvergenceMean        *float64          `json:"convergence_mean" msgpack:"convergence_mean"`
	ConvergenceStd         *float64          `json:"convergence_std" msgpack:"convergence_std"`
	Trajectory             []TrajectoryPoint `json:"trajectory" msgpack:"trajectory"`
	ElapsedSeconds         float64           `json:"elapsed_seconds" msgpack:"elapsed_seconds"`
	Cancelled              bool              `json:"cancelled" msgpack:"cancelled"`
}

// ConvergenceAnalyzer runs independent trials and records per-generation front quality.
type ConvergenceAnalyzer struct {
	opts     ConvergenceOptions
	progress *work.ProgressReporter
	log      zerolog.Logger
}

// NewConvergenceAnalyzer creates an analyzer.
func NewConvergenceAnalyzer(opts ConvergenceOptions, log zerolog.Logger) *ConvergenceAnalyzer {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Metric == "" {
		opts.Metric = MetricHypervolume
	}
	return &ConvergenceAnalyzer{
		opts: opts,
		log:  log.With().Str("component", "convergence").Logger(),
	}
}

// SetProgressReporter attaches a progress reporter for subsequent runs.
func (a *ConvergenceAnalyzer) SetProgressReporter(r *work.ProgressReporter) {
	a.progress = r
}

// trialFronts is the per-generation front history of one trial.
type trialFronts struct {
	generations []int
	fronts      [][][]float64
	elapsed     time.Duration
	cancelled   bool
}

// Run executes runs independent trials of maxGenerations generations each. Trial i
// uses seed Engine.Seed+i. All hypervolumes share one reference point derived from
// every front observed, so trajectories are comparable across trials and generations.
// A cancelled context yields a report with Cancelled set rather than an error.
func (a *ConvergenceAnalyzer) Run(ctx context.Context, p evolution.Problem, maxGenerations, populationSize, runs int) (*ConvergenceReport, error) {
	if runs < 1 {
		return nil, &domain.ValidationError{Field: "runs", Reason: fmt.Sprintf("must be positive, got %d", runs)}
	}
	if maxGenerations < a.opts.Window {
		return nil, &domain.ValidationError{
			Field:  "maxGenerations",
			Reason: fmt.Sprintf("must be at least the convergence window (%d), got %d", a.opts.Window, maxGenerations),
		}
	}

	start := time.Now()
	histories := make([]trialFronts, runs)

	var done int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Parallelism)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			cfg := a.opts.Engine
			cfg.PopulationSize = populationSize
			cfg.Generations = maxGenerations
			cfg.Seed = a.opts.Engine.Seed + uint64(i)

			history, err := recordRun(gctx, p, cfg, a.log)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			histories[i] = history

			mu.Lock()
			done++
			a.progress.Report(done, runs, "trial finished")
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all [][][]float64
	for _, h := range histories {
		all = append(all, h.fronts...)
	}
	ref := quality.ReferencePoint(all...)

	report := &ConvergenceReport{
		PopulationSize: populationSize,
		MaxGenerations: maxGenerations,
		Runs:           runs,
		Metric:         a.opts.Metric,
		Window:         a.opts.Window,
		Threshold:      a.opts.Threshold,
		Reference:      ref,
		Trials:         make([]Trial, runs),
	}

	for i, h := range histories {
		trial := Trial{
			Run:            i,
			Seed:           a.opts.Engine.Seed + uint64(i),
			Records:        make([]GenerationRecord, len(h.fronts)),
			ElapsedSeconds: h.elapsed.Seconds(),
			Cancelled:      h.cancelled,
		}
		values := make([]float64, len(h.fronts))
		for k, front := range h.fronts {
			m := quality.Compute(front, ref)
			trial.Records[k] = GenerationRecord{Generation: h.generations[k], Metrics: m}
			values[k] = a.opts.Metric.of(m)
		}
		if idx, ok := DetectConvergence(values, a.opts.Window, a.opts.Threshold); ok {
			gen := h.generations[idx]
			trial.ConvergenceGeneration = &gen
			report.ConvergenceGenerations = append(report.ConvergenceGenerations, gen)
		}
		report.Cancelled = report.Cancelled || h.cancelled
		report.Trials[i] = trial
	}

	report.Converged = len(report.ConvergenceGenerations)
	if report.Converged > 0 {
		values := make([]float64, report.Converged)
		for i, gen := range report.ConvergenceGenerations {
			values[i] = float64(gen)
		}
		s := statOf(values)
		report.ConvergenceMean, report.ConvergenceStd = &s.Mean, &s.Std
	}
	report.Trajectory = trajectory(report.Trials)
	report.ElapsedSeconds = time.Since(start).Seconds()

	a.log.Info().
		Int("population", populationSize).
		Int("max_generations", maxGenerations).
		Int("runs", runs).
		Int("converged", report.Converged).
		Bool("cancelled", report.Cancelled).
		Float64("elapsed_s", report.ElapsedSeconds).
		Msg("Convergence analysis finished")

	return report, nil
}

// recordRun runs one engine and captures the minimization points of every generation's front.
func recordRun(ctx context.Context, p evolution.Problem, cfg evolution.Config, log zerolog.Logger) (trialFronts, error) {
	engine, err := evolution.NewEngine(p, cfg, log)
	if err != nil {
		return trialFronts{}, err
	}
	var h trialFronts
	engine.AddObserver(evolution.ObserverFunc(func(s evolution.Snapshot) {
		h.generations = append(h.generations, s.Generation)
		h.fronts = append(h.fronts, s.Front.Points())
	}))
	result, err := engine.Run(ctx)
	if err != nil {
		return trialFronts{}, err
	}
	h.elapsed = result.Elapsed
	h.cancelled = result.Cancelled
	return h, nil
}

// trajectory aggregates records by generation over the trials that reached it.
func trajectory(trials []Trial) []TrajectoryPoint {
	longest := 0
	for _, t := range trials {
		longest = max(longest, len(t.Records))
	}

	points := make([]TrajectoryPoint, 0, longest)
	for k := 0; k < longest; k++ {
		var hv, spread, spacing, size []float64
		generation := 0
		for _, t := range trials {
			if k >= len(t.Records) {
				continue
			}
			r := t.Records[k]
			generation = r.Generation
			hv = append(hv, r.Hypervolume)
			spread = append(spread, r.Spread)
			spacing = append(spacing, r.Spacing)
			size = append(size, float64(r.FrontSize))
		}
		points = append(points, TrajectoryPoint{
			Generation:  generation,
			Trials:      len(hv),
			Hypervolume: statOf(hv),
			Spread:      statOf(spread),
			Spacing:     statOf(spacing),
			FrontSize:   statOf(size),
		})
	}
	return points
}
