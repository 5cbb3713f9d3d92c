// Package scheduler runs background jobs on cron schedules and on demand.
//
// Every job is registered by name. A job never overlaps itself: a cron tick or a
// manual trigger that arrives while the job is still running is skipped. The last
// outcome of each job is kept for the system API.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownJob is returned when triggering a name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when a job is triggered while it is still running.
	ErrJobRunning = errors.New("job already running")
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes a registered job and its last run.
type JobStatus struct {
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule,omitempty"` // empty for manual-only jobs
	Running      bool       `json:"running"`
	Runs         int        `json:"runs"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration float64    `json:"last_duration_seconds,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

type registration struct {
	job      Job
	schedule string
	entryID  cron.EntryID

	mu           sync.Mutex
	running      bool
	runs         int
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
}

// claim marks the job running. It fails when a run is already in flight.
func (r *registration) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *registration) release(started time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.runs++
	r.lastRun = started
	r.lastDuration = time.Since(started)
	r.lastErr = err
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu    sync.RWMutex
	jobs  map[string]*registration
	order []string
	wg    sync.WaitGroup // manual runs in flight
}

// New creates a new scheduler. Schedules take a leading seconds field.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*registration),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.order)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs, scheduled or manual, to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule. Examples:
//   - "0 */30 * * * *"  every 30 minutes
//   - "0 0 3 * * SUN"   3 AM on Sundays
//   - "@weekly"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	reg, err := s.register(job, schedule)
	if err != nil {
		return err
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(reg, "schedule")
	})
	if err != nil {
		s.unregister(job.Name())
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}

	s.mu.Lock()
	reg.entryID = id
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Register makes a job available for manual triggering without a schedule.
func (s *Scheduler) Register(job Job) error {
	if _, err := s.register(job, ""); err != nil {
		return err
	}
	s.log.Debug().Str("job", job.Name()).Msg("Manual job registered")
	return nil
}

// RunNow executes a job immediately and waits for it. A registered job keeps its
// overlap guard and status; an unregistered one simply runs.
func (s *Scheduler) RunNow(job Job) error {
	s.mu.RLock()
	reg, ok := s.jobs[job.Name()]
	s.mu.RUnlock()
	if !ok {
		s.log.Info().Str("job", job.Name()).Msg("Running unregistered job immediately")
		return job.Run()
	}
	return s.execute(reg, "manual")
}

// Trigger starts a registered job in the background.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !reg.claim() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runClaimed(reg, "manual")
	}()
	return nil
}

// Statuses lists the registered jobs in registration order.
func (s *Scheduler) Statuses() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		reg := s.jobs[name]
		status := JobStatus{Name: name, Schedule: reg.schedule}

		if reg.entryID != 0 {
			if next := s.cron.Entry(reg.entryID).Next; !next.IsZero() {
				status.NextRun = &next
			}
		}

		reg.mu.Lock()
		status.Running = reg.running
		status.Runs = reg.runs
		if !reg.lastRun.IsZero() {
			last := reg.lastRun
			status.LastRun = &last
			status.LastDuration = reg.lastDuration.Seconds()
		}
		if reg.lastErr != nil {
			status.LastError = reg.lastErr.Error()
		}
		reg.mu.Unlock()

		out = append(out, status)
	}
	return out
}

func (s *Scheduler) register(job Job, schedule string) (*registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return nil, fmt.Errorf("job %s is already registered", name)
	}
	reg := &registration{job: job, schedule: schedule}
	s.jobs[name] = reg
	s.order = append(s.order, name)
	return reg, nil
}

func (s *Scheduler) unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Scheduler) execute(reg *registration, trigger string) error {
	if !reg.claim() {
		s.log.Warn().
			Str("job", reg.job.Name()).
			Str("trigger", trigger).
			Msg("Job still running, skipped")
		return fmt.Errorf("%w: %s", ErrJobRunning, reg.job.Name())
	}
	return s.runClaimed(reg, trigger)
}

func (s *Scheduler) runClaimed(reg *registration, trigger string) error {
	name := reg.job.Name()
	started := time.Now()
	s.log.Debug().Str("job", name).Str("trigger", trigger).Msg("Running job")

	err := reg.job.Run()
	reg.release(started, err)

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", name).
			Str("trigger", trigger).
			Dur("duration", time.Since(started)).
			Msg("Job failed")
		return err
	}
	s.log.Debug().
		Str("job", name).
		Str("trigger", trigger).
		Dur("duration", time.Since(started)).
		Msg("Job completed")
	return nil
}
