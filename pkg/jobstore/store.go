// Package jobstore owns the durable Job and Task lifecycle records for
// evaluation runs.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/snapshot"
)

// ErrJobNotFound indicates the job id has no record.
var ErrJobNotFound = errors.New("job not found")

// ErrTaskNotFound indicates no task exists for (job id, snapshot id).
var ErrTaskNotFound = errors.New("task not found")

// JobStatus is the overall state of a job.
type JobStatus string

const (
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
)

// TaskStatus is the state of one snapshot evaluation within a job.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// Job is one end-to-end evaluation run.
type Job struct {
	ID         string          `json:"job_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Filter     snapshot.Filter `json:"filter"`
	TotalTasks int             `json:"total_tasks"`
	Status     JobStatus       `json:"status"`
}

// Task is the unit of work evaluating exactly one snapshot. Tasks are
// written with upsert semantics keyed by (JobID, SnapshotID): delivery
// is at-least-once, and rewriting the same terminal result must leave
// aggregate counts unchanged.
type Task struct {
	JobID      string           `json:"job_id"`
	SnapshotID string           `json:"snapshot_id"`
	Status     TaskStatus       `json:"status"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
	Result     *evaluate.Result `json:"result,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Counts aggregates task statuses for one job.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// AllTerminal reports whether every task is Succeeded or Failed.
// Vacuously true for a job with no tasks.
func (c Counts) AllTerminal() bool {
	return c.Pending == 0 && c.InProgress == 0
}

// Store is the durable record of jobs and their per-snapshot tasks.
// PutTask is an idempotent upsert; the rest are plain reads and status
// transitions.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error

	PutTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, jobID, snapshotID string) (Task, error)
	ListTasks(ctx context.Context, jobID string) ([]Task, error)
	Counts(ctx context.Context, jobID string) (Counts, error)
}
