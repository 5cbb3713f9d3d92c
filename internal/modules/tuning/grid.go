package tuning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/evolution"
	"github.com/aristath/frontier/internal/modules/quality"
	"github.com/aristath/frontier/internal/work"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// GridOptions configure a grid search.
type GridOptions struct {
	// Engine is the template; population, generations and seed are set per run.
	Engine evolution.Config
	// Parallelism bounds how many cells run at once. Runs within a cell are sequential.
	Parallelism int
	// Window and Threshold drive per-run convergence detection on hypervolume.
	Window    int
	Threshold float64
}

// DefaultGridOptions mirrors DefaultConvergenceOptions.
func DefaultGridOptions() GridOptions {
	return GridOptions{
		Engine:      evolution.DefaultConfig(),
		Parallelism: 4,
		Window:      10,
		Threshold:   0.01,
	}
}

// TuningResult aggregates the runs of one (population size, generation count) cell.
type TuningResult struct {
	PopulationSize        int     `json:"population_size" msgpack:"population_size"`
	Generations           int     `json:"generations" msgpack:"generations"`
	Runs                  int     `json:"runs" msgpack:"runs"`
	CompletedRuns         int     `json:"completed_runs" msgpack:"completed_runs"`
	Partial               bool    `json:"partial" msgpack:"partial"`
	Hypervolume           Stat    `json:"hypervolume" msgpack:"hypervolume"`
	HypervolumeMin        float64 `json:"hypervolume_min" msgpack:"hypervolume_min"`
	HypervolumeMax        float64 `json:"hypervolume_max" msgpack:"hypervolume_max"`
	Spread                Stat    `json:"spread" msgpack:"spread"`
	Spacing               Stat    `json:"spacing" msgpack:"spacing"`
	FrontSize             Stat    `json:"front_size" msgpack:"front_size"`
	ElapsedSeconds        Stat    `json:"elapsed_seconds" msgpack:"elapsed_seconds"`
	ConvergenceGeneration *Stat   `json:"convergence_generation,omitempty" msgpack:"convergence_generation,omitempty"`
	ConvergedRuns         int     `json:"converged_runs" msgpack:"converged_runs"`
}

// value returns the cell's mean for metric.
func (r TuningResult) value(metric Metric) float64 {
	switch metric {
	case MetricSpread:
		return r.Spread.Mean
	case MetricSpacing:
		return r.Spacing.Mean
	case MetricFrontSize:
		return r.FrontSize.Mean
	case MetricElapsed:
		return r.ElapsedSeconds.Mean
	default:
		return r.Hypervolume.Mean
	}
}

// GridReport is the outcome of a grid search.
type GridReport struct {
	SessionID      string         `json:"session_id" msgpack:"session_id"`
	StartedAt      time.Time      `json:"started_at" msgpack:"started_at"`
	ElapsedSeconds float64        `json:"elapsed_seconds" msgpack:"elapsed_seconds"`
	AssetCount     int            `json:"asset_count" msgpack:"asset_count"`
	RunsPerCell    int            `json:"runs_per_cell" msgpack:"runs_per_cell"`
	CellTimeLimit  float64        `json:"cell_time_limit_seconds" msgpack:"cell_time_limit_seconds"`
	Reference      []float64      `json:"reference_point" msgpack:"reference_point"`
	Metric         Metric         `json:"metric" msgpack:"metric"`
	Results        []TuningResult `json:"results" msgpack:"results"`
	Best           *TuningResult  `json:"best" msgpack:"best"`
	Cancelled      bool           `json:"cancelled" msgpack:"cancelled"`
}

// GridSearchTuner evaluates every combination of population size and generation count.
type GridSearchTuner struct {
	opts     GridOptions
	progress *work.ProgressReporter
	log      zerolog.Logger
}

// NewGridSearchTuner creates a tuner.
func NewGridSearchTuner(opts GridOptions, log zerolog.Logger) *GridSearchTuner {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &GridSearchTuner{
		opts: opts,
		log:  log.With().Str("component", "grid_search").Logger(),
	}
}

// SetProgressReporter attaches a progress reporter for subsequent runs.
func (t *GridSearchTuner) SetProgressReporter(r *work.ProgressReporter) {
	t.progress = r
}

// runOutcome is what one run contributes before metrics are computed.
type runOutcome struct {
	front       [][]float64
	elapsed     time.Duration
	convergence *int
}

type cellOutcome struct {
	popSize, generations int
	runs                 []runOutcome
	partial              bool
}

// Run executes runs repeats of every grid cell. With a positive cellTimeLimit a cell
// stops starting new repeats once that much time has passed (at least one repeat always
// runs) and is marked Partial. Hypervolumes share one reference point across the whole
// grid. Results are sorted best first by metric; Best is nil when no cell completed a run.
func (t *GridSearchTuner) Run(ctx context.Context, p evolution.Problem, populationSizes, generationCounts []int, runs int, cellTimeLimit time.Duration, metric Metric) (*GridReport, error) {
	if len(populationSizes) == 0 || len(generationCounts) == 0 {
		return nil, &domain.ValidationError{Field: "grid", Reason: "population sizes and generation counts must not be empty"}
	}
	if runs < 1 {
		return nil, &domain.ValidationError{Field: "runs", Reason: fmt.Sprintf("must be positive, got %d", runs)}
	}
	if metric == "" {
		metric = MetricHypervolume
	}

	report := &GridReport{
		SessionID:     uuid.NewString(),
		StartedAt:     time.Now().UTC(),
		AssetCount:    len(p.ActiveIndices()),
		RunsPerCell:   runs,
		CellTimeLimit: cellTimeLimit.Seconds(),
		Metric:        metric,
	}

	var cells []*cellOutcome
	for _, pop := range populationSizes {
		for _, gens := range generationCounts {
			cells = append(cells, &cellOutcome{popSize: pop, generations: gens})
		}
	}

	t.log.Info().
		Str("session_id", report.SessionID).
		Ints("population_sizes", populationSizes).
		Ints("generation_counts", generationCounts).
		Int("runs", runs).
		Msg("Starting grid search")
	t.progress.Started()

	var done int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Parallelism)
	for _, cell := range cells {
		g.Go(func() error {
			if err := t.runCell(gctx, p, cell, runs, cellTimeLimit); err != nil {
				return err
			}
			mu.Lock()
			done++
			t.progress.ReportWithDetails(done, len(cells), "cell finished", map[string]any{
				"population_size": cell.popSize,
				"generations":     cell.generations,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.progress.Failed(err)
		return nil, err
	}
	report.Cancelled = ctx.Err() != nil

	var fronts [][][]float64
	for _, cell := range cells {
		for _, r := range cell.runs {
			fronts = append(fronts, r.front)
		}
	}
	report.Reference = quality.ReferencePoint(fronts...)

	for _, cell := range cells {
		report.Results = append(report.Results, aggregate(cell, runs, report.Reference))
	}
	SortResults(report.Results, metric)
	if best, err := BestConfiguration(report.Results, metric); err == nil {
		report.Best = &best
	}
	report.ElapsedSeconds = time.Since(report.StartedAt).Seconds()

	event := t.log.Info().
		Str("session_id", report.SessionID).
		Bool("cancelled", report.Cancelled).
		Float64("elapsed_s", report.ElapsedSeconds)
	if report.Best != nil {
		event = event.Int("best_population", report.Best.PopulationSize).
			Int("best_generations", report.Best.Generations).
			Float64("best_hypervolume", report.Best.Hypervolume.Mean)
	}
	event.Msg("Grid search finished")
	t.progress.Completed()

	return report, nil
}

// runCell executes the repeats of one cell sequentially.
func (t *GridSearchTuner) runCell(ctx context.Context, p evolution.Problem, cell *cellOutcome, runs int, limit time.Duration) error {
	start := time.Now()
	for i := 0; i < runs; i++ {
		if ctx.Err() != nil {
			cell.partial = true
			return nil
		}
		if i > 0 && limit > 0 && time.Since(start) >= limit {
			cell.partial = true
			t.log.Warn().
				Int("population_size", cell.popSize).
				Int("generations", cell.generations).
				Int("completed_runs", i).
				Dur("limit", limit).
				Msg("Cell time limit reached, skipping remaining runs")
			return nil
		}

		cfg := t.opts.Engine
		cfg.PopulationSize = cell.popSize
		cfg.Generations = cell.generations
		cfg.Seed = t.opts.Engine.Seed + uint64(i)

		history, err := recordRun(ctx, p, cfg, t.log)
		if err != nil {
			return fmt.Errorf("cell pop=%d gen=%d run %d: %w", cell.popSize, cell.generations, i, err)
		}
		if history.cancelled {
			cell.partial = true
			return nil
		}
		cell.runs = append(cell.runs, runOutcome{
			front:       history.fronts[len(history.fronts)-1],
			elapsed:     history.elapsed,
			convergence: runConvergence(history, t.opts.Window, t.opts.Threshold),
		})
	}
	return nil
}

// runConvergence detects hypervolume convergence within one run against a reference
// point derived from that run's own fronts.
func runConvergence(h trialFronts, window int, threshold float64) *int {
	if window < 2 || len(h.fronts) < window {
		return nil
	}
	ref := quality.ReferencePoint(h.fronts...)
	values := make([]float64, len(h.fronts))
	for k, front := range h.fronts {
		values[k] = quality.Hypervolume(front, ref)
	}
	idx, ok := DetectConvergence(values, window, threshold)
	if !ok {
		return nil
	}
	gen := h.generations[idx]
	return &gen
}

func aggregate(cell *cellOutcome, runs int, ref []float64) TuningResult {
	result := TuningResult{
		PopulationSize: cell.popSize,
		Generations:    cell.generations,
		Runs:           runs,
		CompletedRuns:  len(cell.runs),
		Partial:        cell.partial || len(cell.runs) < runs,
	}
	if len(cell.runs) == 0 {
		return result
	}

	var hv, spread, spacing, size, elapsed, convergence []float64
	for _, r := range cell.runs {
		m := quality.Compute(r.front, ref)
		hv = append(hv, m.Hypervolume)
		spread = append(spread, m.Spread)
		spacing = append(spacing, m.Spacing)
		size = append(size, float64(m.FrontSize))
		elapsed = append(elapsed, r.elapsed.Seconds())
		if r.convergence != nil {
			convergence = append(convergence, float64(*r.convergence))
		}
	}

	result.Hypervolume = statOf(hv)
	result.HypervolumeMin, result.HypervolumeMax = math.Inf(1), math.Inf(-1)
	for _, v := range hv {
		result.HypervolumeMin = math.Min(result.HypervolumeMin, v)
		result.HypervolumeMax = math.Max(result.HypervolumeMax, v)
	}
	result.Spread = statOf(spread)
	result.Spacing = statOf(spacing)
	result.FrontSize = statOf(size)
	result.ElapsedSeconds = statOf(elapsed)
	result.ConvergedRuns = len(convergence)
	if len(convergence) > 0 {
		s := statOf(convergence)
		result.ConvergenceGeneration = &s
	}
	return result
}

// better orders results: cells with completed runs first, then complete cells before
// partial ones, then the metric mean in its preferred direction, then lower mean
// elapsed time, then the smaller configuration.
func better(a, b TuningResult, metric Metric) bool {
	if (a.CompletedRuns > 0) != (b.CompletedRuns > 0) {
		return a.CompletedRuns > 0
	}
	if a.Partial != b.Partial {
		return !a.Partial
	}
	av, bv := a.value(metric), b.value(metric)
	if av != bv {
		if metric.HigherIsBetter() {
			return av > bv
		}
		return av < bv
	}
	if a.ElapsedSeconds.Mean != b.ElapsedSeconds.Mean {
		return a.ElapsedSeconds.Mean < b.ElapsedSeconds.Mean
	}
	if a.PopulationSize != b.PopulationSize {
		return a.PopulationSize < b.PopulationSize
	}
	return a.Generations < b.Generations
}

// SortResults orders results best first.
func SortResults(results []TuningResult, metric Metric) {
	sort.SliceStable(results, func(i, j int) bool {
		return better(results[i], results[j], metric)
	})
}

// ErrNoResults is returned when no cell has a completed run.
var ErrNoResults = fmt.Errorf("no tuning results with completed runs")

// BestConfiguration returns the preferred cell. By default (hypervolume) this is the
// highest mean hypervolume with ties broken by lower mean elapsed time. Partial cells
// rank after every complete cell, so the best mean hypervolume is only guaranteed to be
// at least that of every other complete cell; a partial cell is chosen only when no
// cell completed all its runs.
func BestConfiguration(results []TuningResult, metric Metric) (TuningResult, error) {
	var best *TuningResult
	for i := range results {
		if results[i].CompletedRuns == 0 {
			continue
		}
		if best == nil || better(results[i], *best, metric) {
			best = &results[i]
		}
	}
	if best == nil {
		return TuningResult{}, ErrNoResults
	}
	return *best, nil
}
