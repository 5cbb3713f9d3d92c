// Package work reports progress of long-running jobs such as grid searches,
// convergence analyses and rolling backtests.
package work

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProgressReporter emits throttled progress events for one job.
// A nil *ProgressReporter is valid and reports nothing.
type ProgressReporter struct {
	eventEmitter EventEmitter
	jobID        string
	jobType      string
	subject      string
	started      time.Time

	lastReport time.Time
	mu         sync.Mutex
}

// EventEmitter defines the interface for emitting events
type EventEmitter interface {
	Emit(event string, data any)
}

// ProgressEvent is emitted during job execution
type ProgressEvent struct {
	JobID   string         `json:"job_id"`
	JobType string         `json:"job_type"`
	Subject string         `json:"subject,omitempty"`
	Current int            `json:"current,omitempty"`
	Total   int            `json:"total,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// JobStartedEvent is emitted when a job begins
type JobStartedEvent struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Subject string `json:"subject,omitempty"`
}

// JobCompletedEvent is emitted when a job finishes successfully
type JobCompletedEvent struct {
	JobID    string        `json:"job_id"`
	JobType  string        `json:"job_type"`
	Subject  string        `json:"subject,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// JobFailedEvent is emitted when a job fails
type JobFailedEvent struct {
	JobID    string        `json:"job_id"`
	JobType  string        `json:"job_type"`
	Subject  string        `json:"subject,omitempty"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration_ms"`
}

// Event names for the job lifecycle
const (
	EventJobStarted   = "JobStarted"
	EventJobProgress  = "JobProgress"
	EventJobCompleted = "JobCompleted"
	EventJobFailed    = "JobFailed"
)

// Job types
const (
	JobGridSearch  = "grid_search"
	JobConvergence = "convergence"
	JobBacktest    = "backtest"
	JobRetune      = "retune"
)

const progressThrottleInterval = 100 * time.Millisecond

// NewProgressReporter creates a reporter for one job
func NewProgressReporter(emitter EventEmitter, jobID, jobType, subject string) *ProgressReporter {
	return &ProgressReporter{
		eventEmitter: emitter,
		jobID:        jobID,
		jobType:      jobType,
		subject:      subject,
	}
}

// Report reports current/total progress. Intermediate reports are throttled; the final
// one (current == total) is always emitted.
func (r *ProgressReporter) Report(current, total int, message string) {
	r.ReportWithDetails(current, total, message, nil)
}

// ReportWithDetails reports progress with additional key-value details.
func (r *ProgressReporter) ReportWithDetails(current, total int, message string, details map[string]any) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current < total && time.Since(r.lastReport) < progressThrottleInterval {
		return
	}
	r.lastReport = time.Now()

	r.eventEmitter.Emit(EventJobProgress, ProgressEvent{
		JobID:   r.jobID,
		JobType: r.jobType,
		Subject: r.subject,
		Current: current,
		Total:   total,
		Message: message,
		Details: details,
	})
}

// ReportPhase reports a named phase rather than numeric progress.
func (r *ProgressReporter) ReportPhase(phase, message string) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastReport) < progressThrottleInterval {
		return
	}
	r.lastReport = time.Now()

	r.eventEmitter.Emit(EventJobProgress, ProgressEvent{
		JobID:   r.jobID,
		JobType: r.jobType,
		Subject: r.subject,
		Phase:   phase,
		Message: message,
	})
}

// Started emits a JobStarted event and starts the duration clock.
func (r *ProgressReporter) Started() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()

	if r.eventEmitter == nil {
		return
	}
	r.eventEmitter.Emit(EventJobStarted, JobStartedEvent{
		JobID:   r.jobID,
		JobType: r.jobType,
		Subject: r.subject,
	})
}

// Completed emits a JobCompleted event.
func (r *ProgressReporter) Completed() {
	if r == nil || r.eventEmitter == nil {
		return
	}
	r.eventEmitter.Emit(EventJobCompleted, JobCompletedEvent{
		JobID:    r.jobID,
		JobType:  r.jobType,
		Subject:  r.subject,
		Duration: r.elapsed(),
	})
}

// Failed emits a JobFailed event.
func (r *ProgressReporter) Failed(err error) {
	if r == nil || r.eventEmitter == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.eventEmitter.Emit(EventJobFailed, JobFailedEvent{
		JobID:    r.jobID,
		JobType:  r.jobType,
		Subject:  r.subject,
		Error:    msg,
		Duration: r.elapsed(),
	})
}

func (r *ProgressReporter) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	return time.Since(r.started)
}

// LogEmitter writes job events to a zerolog logger.
type LogEmitter struct {
	log zerolog.Logger
}

// NewLogEmitter creates an emitter that logs at info level.
func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log.With().Str("component", "jobs").Logger()}
}

// Emit implements EventEmitter
func (e *LogEmitter) Emit(event string, data any) {
	entry := e.log.Info().Str("event", event)
	switch ev := data.(type) {
	case ProgressEvent:
		entry = entry.Str("job_id", ev.JobID).Str("job_type", ev.JobType).
			Int("current", ev.Current).Int("total", ev.Total)
		if ev.Phase != "" {
			entry = entry.Str("phase", ev.Phase)
		}
		entry.Msg(ev.Message)
	case JobFailedEvent:
		e.log.Error().Str("event", event).Str("job_id", ev.JobID).Str("job_type", ev.JobType).
			Str("error", ev.Error).Dur("duration", ev.Duration).Msg("Job failed")
	default:
		entry.Interface("data", data).Msg("Job event")
	}
}
