package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eunmann/snapcost/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// TaskTracker tracks per-task completion for one evaluation job with ETA
// estimation. The orchestrator logs a tracker snapshot on every status
// poll; workers record completions as tasks reach a terminal state.
// It is safe for concurrent use.
type TaskTracker struct {
	total     int64
	succeeded atomic.Int64
	failed    atomic.Int64
	startTime time.Time
	log       zerolog.Logger

	// Moving average of recent task durations for ETA
	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewTaskTracker creates a tracker for a job with the given task count.
func NewTaskTracker(jobID string, total int64, log zerolog.Logger) *TaskTracker {
	return &TaskTracker{
		total:           total,
		startTime:       time.Now(),
		log:             log.With().Str("job_id", jobID).Logger(),
		recentDurations: make([]time.Duration, 0, 10),
		maxRecent:       10,
	}
}

// RecordSuccess records a task that reached Succeeded, with its duration.
func (tt *TaskTracker) RecordSuccess(d time.Duration) {
	tt.succeeded.Add(1)

	tt.mu.Lock()
	if len(tt.recentDurations) >= tt.maxRecent {
		tt.recentDurations = tt.recentDurations[1:]
	}
	tt.recentDurations = append(tt.recentDurations, d)
	tt.mu.Unlock()
}

// RecordFailure records a task that reached Failed.
func (tt *TaskTracker) RecordFailure() {
	tt.failed.Add(1)
}

// SetTerminal overwrites the terminal counts from an authoritative job
// store query. The orchestrator uses this on each poll since workers may
// run in a different process.
func (tt *TaskTracker) SetTerminal(succeeded, failed int64) {
	tt.succeeded.Store(succeeded)
	tt.failed.Store(failed)
}

// Remaining returns how many tasks are not yet terminal.
func (tt *TaskTracker) Remaining() int64 {
	return tt.total - tt.succeeded.Load() - tt.failed.Load()
}

// Pct returns terminal progress as a percentage (0-100).
func (tt *TaskTracker) Pct() float64 {
	if tt.total == 0 {
		return 100.0
	}
	done := tt.succeeded.Load() + tt.failed.Load()
	return float64(done) * 100.0 / float64(tt.total)
}

// ETA estimates the remaining time from the average terminal rate.
// Uses a moving average of recent task durations when workers report
// them, otherwise the overall average since start.
func (tt *TaskTracker) ETA() time.Duration {
	done := tt.succeeded.Load() + tt.failed.Load()
	if done == 0 {
		return 0
	}
	remaining := tt.total - done
	if remaining <= 0 {
		return 0
	}

	tt.mu.Lock()
	var avg time.Duration
	if len(tt.recentDurations) > 0 {
		var sum time.Duration
		for _, d := range tt.recentDurations {
			sum += d
		}
		avg = sum / time.Duration(len(tt.recentDurations))
	} else {
		avg = time.Since(tt.startTime) / time.Duration(done)
	}
	tt.mu.Unlock()

	return avg * time.Duration(remaining)
}

// Elapsed returns time since tracking started.
func (tt *TaskTracker) Elapsed() time.Duration {
	return time.Since(tt.startTime)
}

// LogPoll emits one progress line, intended for the orchestrator's
// status-poll loop.
func (tt *TaskTracker) LogPoll() {
	tt.log.Info().
		Int64("total", tt.total).
		Int64("succeeded", tt.succeeded.Load()).
		Int64("failed", tt.failed.Load()).
		Int64("remaining", tt.Remaining()).
		Str("pct", humanfmt.Pct(tt.Pct())).
		Str("elapsed", humanfmt.Duration(tt.Elapsed())).
		Str("eta", humanfmt.Duration(tt.ETA())).
		Msg("job progress")
}
