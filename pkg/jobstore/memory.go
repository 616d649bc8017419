package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and single-process runs.
type Memory struct {
	mu    sync.Mutex
	jobs  map[string]Job
	tasks map[string]map[string]Task // job id -> snapshot id -> task
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:  make(map[string]Job),
		tasks: make(map[string]map[string]Task),
	}
}

// CreateJob records a new job.
func (m *Memory) CreateJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = job
	m.tasks[job.ID] = make(map[string]Task)
	return nil
}

// GetJob returns the job record.
func (m *Memory) GetJob(_ context.Context, jobID string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return job, nil
}

// UpdateJobStatus transitions the job's overall status.
func (m *Memory) UpdateJobStatus(_ context.Context, jobID string, status JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	job.Status = status
	m.jobs[jobID] = job
	return nil
}

// PutTask upserts the task keyed by (job id, snapshot id).
func (m *Memory) PutTask(_ context.Context, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tasks[task.JobID]
	if !ok {
		return fmt.Errorf("job %s: %w", task.JobID, ErrJobNotFound)
	}
	byID[task.SnapshotID] = task
	return nil
}

// GetTask returns the task for (job id, snapshot id).
func (m *Memory) GetTask(_ context.Context, jobID, snapshotID string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[jobID][snapshotID]
	if !ok {
		return Task{}, fmt.Errorf("task %s/%s: %w", jobID, snapshotID, ErrTaskNotFound)
	}
	return task, nil
}

// ListTasks returns all tasks of a job, ordered by snapshot id for
// deterministic consolidation.
func (m *Memory) ListTasks(_ context.Context, jobID string) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tasks[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	tasks := make([]Task, 0, len(byID))
	for _, task := range byID {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].SnapshotID < tasks[j].SnapshotID
	})
	return tasks, nil
}

// Counts aggregates task statuses for a job.
func (m *Memory) Counts(_ context.Context, jobID string) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.tasks[jobID]
	if !ok {
		return Counts{}, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	var counts Counts
	for _, task := range byID {
		counts.Total++
		switch task.Status {
		case TaskPending:
			counts.Pending++
		case TaskInProgress:
			counts.InProgress++
		case TaskSucceeded:
			counts.Succeeded++
		case TaskFailed:
			counts.Failed++
		}
	}
	return counts, nil
}
