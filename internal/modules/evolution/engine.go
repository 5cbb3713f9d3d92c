package evolution

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// seedStream is mixed into the second PCG word so seeds 0 and 1 do not share a stream.
const seedStream = 0x9e3779b97f4a7c15

// Problem is what the engine needs from an optimization problem.
type Problem interface {
	NumAssets() int
	ActiveIndices() []int
	Evaluate(w []float64) domain.ObjectiveVector
	Repair(w []float64) []float64
}

// Snapshot is the state of a run after one generation. Generation 0 is the evaluated
// initial population.
type Snapshot struct {
	Generation  int
	Front       domain.ParetoFront
	Evaluations int
	Elapsed     time.Duration
}

// Observer receives a snapshot after every generation, on the engine goroutine.
type Observer interface {
	OnGeneration(s Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s Snapshot)

// OnGeneration implements Observer
func (f ObserverFunc) OnGeneration(s Snapshot) { f(s) }

// Result is the outcome of a run.
type Result struct {
	Front       domain.ParetoFront
	Generations int // completed generations after initialization
	Evaluations int
	Elapsed     time.Duration
	Seed        uint64
	// Cancelled is set when the context ended the run early; Front is then the best so far.
	Cancelled bool
}

// Complete reports whether every configured generation ran.
func (r *Result) Complete() bool { return !r.Cancelled }

// Err returns domain.ErrCancelled for a cancelled run and nil otherwise.
func (r *Result) Err() error {
	if r.Cancelled {
		return domain.ErrCancelled
	}
	return nil
}

// Engine runs NSGA-II on a Problem. An Engine may be run many times; each run starts
// from the configured seed so identical inputs give identical fronts.
type Engine struct {
	problem   Problem
	cfg       Config
	observers []Observer
	log       zerolog.Logger
}

// NewEngine validates cfg and binds it to problem.
func NewEngine(problem Problem, cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(problem.ActiveIndices()) == 0 {
		return nil, &domain.ValidationError{Field: "excludedAssets", Reason: "no active assets"}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		problem: problem,
		cfg:     cfg,
		log:     log.With().Str("component", "evolution").Logger(),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// AddObserver registers o for every subsequent Run.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Run evolves the population for the configured number of generations. Cancellation is
// checked between generations; a cancelled run returns its current front with
// Result.Cancelled set and a nil error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	var emit func(Snapshot) bool
	if len(e.observers) > 0 {
		emit = func(s Snapshot) bool {
			for _, o := range e.observers {
				o.OnGeneration(s)
			}
			return true
		}
	}
	return e.run(ctx, emit)
}

// Snapshots returns a fresh run as a sequence of per-generation snapshots. Each
// iteration starts a new run from the seed; breaking out stops the run. An evaluation
// failure is yielded once as a final pair with a zero Snapshot and the error.
// Cancellation just ends the sequence.
func (e *Engine) Snapshots(ctx context.Context) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		stopped := false
		_, err := e.run(ctx, func(s Snapshot) bool {
			if !yield(s, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(Snapshot{}, err)
		}
	}
}

func (e *Engine) run(ctx context.Context, emit func(Snapshot) bool) (*Result, error) {
	start := time.Now()
	src := rand.NewPCG(e.cfg.Seed, e.cfg.Seed^seedStream)
	rng := rand.New(src)
	result := &Result{Seed: e.cfg.Seed}

	if ctx.Err() != nil {
		result.Cancelled = true
		return result, nil
	}

	n := e.problem.NumAssets()
	active := e.problem.ActiveIndices()
	size := e.cfg.PopulationSize

	pop := make([]*individual, size)
	for i := range pop {
		pop[i] = &individual{weights: e.problem.Repair(sampleDirichlet(n, active, src))}
	}
	if err := e.evaluate(pop); err != nil {
		return nil, err
	}
	result.Evaluations = size
	pop = truncate(pop, size)

	snapshot := func(gen int) bool {
		if emit == nil {
			return true
		}
		return emit(Snapshot{
			Generation:  gen,
			Front:       firstFront(pop),
			Evaluations: result.Evaluations,
			Elapsed:     time.Since(start),
		})
	}
	stopped := !snapshot(0)

	for gen := 1; gen <= e.cfg.Generations && !stopped; gen++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			e.log.Debug().Int("generation", gen).Msg("Run cancelled between generations")
			break
		}

		offspring := e.variation(pop, active, rng)
		if err := e.evaluate(offspring); err != nil {
			return nil, err
		}
		result.Evaluations += len(offspring)
		pop = truncate(append(pop, offspring...), size)
		result.Generations = gen

		stopped = !snapshot(gen)
	}

	result.Front = firstFront(pop)
	result.Elapsed = time.Since(start)

	e.log.Debug().
		Int("population", size).
		Int("generations", result.Generations).
		Int("front_size", result.Front.Len()).
		Bool("cancelled", result.Cancelled).
		Dur("elapsed", result.Elapsed).
		Msg("Evolution finished")

	return result, nil
}

// variation produces a full offspring population by tournament selection, simplex SBX,
// weight-transfer mutation and repair.
func (e *Engine) variation(pop []*individual, active []int, rng *rand.Rand) []*individual {
	size := len(pop)
	offspring := make([]*individual, 0, size+1)

	for len(offspring) < size {
		p1 := tournament(pop, rng)
		p2 := tournament(pop, rng)

		var c1, c2 []float64
		if rng.Float64() < e.cfg.CrossoverRate {
			c1, c2 = simplexSBX(p1.weights, p2.weights, e.cfg.CrossoverEta, rng)
		} else {
			c1 = append([]float64(nil), p1.weights...)
			c2 = append([]float64(nil), p2.weights...)
		}

		for _, child := range [][]float64{c1, c2} {
			if rng.Float64() < e.cfg.MutationRate {
				transferMutation(child, active, e.cfg.MutationEta, rng)
			}
			offspring = append(offspring, &individual{weights: e.problem.Repair(child)})
		}
	}
	return offspring[:size]
}

// evaluate computes objectives for every individual using a bounded worker pool.
func (e *Engine) evaluate(pop []*individual) error {
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, ind := range pop {
		g.Go(func() error {
			ind.obj = e.problem.Evaluate(ind.weights)
			for _, v := range ind.obj.Minimized {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("non-finite objectives %v for weights %v", ind.obj.Minimized, ind.weights)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
