package scheduler

import (
	"context"
	"time"

	"github.com/aristath/frontier/internal/work"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Retuner re-runs the hyperparameter grid search and stores the winners.
type Retuner interface {
	Retune(ctx context.Context) error
}

// RetuneJob refreshes stored hyperparameters for every risk profile.
type RetuneJob struct {
	retuner Retuner
	timeout time.Duration // Zero means no limit
	emitter work.EventEmitter
	log     zerolog.Logger
}

// NewRetuneJob creates a retune job
func NewRetuneJob(retuner Retuner, timeout time.Duration) *RetuneJob {
	return &RetuneJob{
		retuner: retuner,
		timeout: timeout,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *RetuneJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// SetEventEmitter sets where job lifecycle events go
func (j *RetuneJob) SetEventEmitter(e work.EventEmitter) {
	j.emitter = e
}

// Name returns the job name
func (j *RetuneJob) Name() string {
	return "retune_hyperparameters"
}

// Run executes the retune
func (j *RetuneJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	progress := work.NewProgressReporter(j.emitter, uuid.NewString(), work.JobRetune, "")
	progress.Started()

	start := time.Now()
	if err := j.retuner.Retune(ctx); err != nil {
		progress.Failed(err)
		return err
	}
	progress.Completed()

	j.log.Info().Dur("duration", time.Since(start)).Msg("Hyperparameters retuned")
	return nil
}
