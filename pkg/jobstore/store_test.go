package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/snapshot"
)

func newJob(t *testing.T, store *Memory, id string) Job {
	t.Helper()
	job := Job{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Filter:    snapshot.DefaultFilter(),
		Status:    JobRunning,
	}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestCreateJob_DuplicateRejected(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")

	if err := store.CreateJob(context.Background(), Job{ID: "job-1"}); err == nil {
		t.Error("expected error creating a duplicate job")
	}
}

func TestGetJob_NotFound(t *testing.T) {
	store := NewMemory()
	if _, err := store.GetJob(context.Background(), "job-missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestUpdateJobStatus(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")

	if err := store.UpdateJobStatus(context.Background(), "job-1", JobCompleted); err != nil {
		t.Fatalf("update: %v", err)
	}
	job, err := store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("status: got %s", job.Status)
	}

	if err := store.UpdateJobStatus(context.Background(), "job-missing", JobCompleted); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestPutTask_UpsertIdempotent(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")
	ctx := context.Background()

	task := Task{
		JobID:      "job-1",
		SnapshotID: "snap-1",
		Status:     TaskSucceeded,
		Attempts:   1,
		Result:     &evaluate.Result{TargetSnapshot: "snap-1"},
		UpdatedAt:  time.Now().UTC(),
	}

	// Rewriting the same terminal record (duplicate queue delivery) must
	// leave aggregate counts unchanged.
	for i := 0; i < 3; i++ {
		if err := store.PutTask(ctx, task); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	counts, err := store.Counts(ctx, "job-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 1 || counts.Succeeded != 1 {
		t.Errorf("counts after duplicate writes: %+v", counts)
	}
}

func TestPutTask_StatusTransitions(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")
	ctx := context.Background()

	task := Task{JobID: "job-1", SnapshotID: "snap-1", Status: TaskPending}
	if err := store.PutTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	task.Status = TaskInProgress
	task.Attempts = 1
	if err := store.PutTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetTask(ctx, "job-1", "snap-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != TaskInProgress || got.Attempts != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestPutTask_UnknownJob(t *testing.T) {
	store := NewMemory()
	err := store.PutTask(context.Background(), Task{JobID: "job-missing", SnapshotID: "snap-1"})
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")

	_, err := store.GetTask(context.Background(), "job-1", "snap-missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("got %v, want ErrTaskNotFound", err)
	}
}

func TestListTasks_SortedBySnapshotID(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")
	ctx := context.Background()

	for _, id := range []string{"snap-c", "snap-a", "snap-b"} {
		if err := store.PutTask(ctx, Task{JobID: "job-1", SnapshotID: id, Status: TaskPending}); err != nil {
			t.Fatal(err)
		}
	}

	tasks, err := store.ListTasks(ctx, "job-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"snap-a", "snap-b", "snap-c"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks", len(tasks))
	}
	for i, id := range want {
		if tasks[i].SnapshotID != id {
			t.Errorf("position %d: got %s, want %s", i, tasks[i].SnapshotID, id)
		}
	}
}

func TestCounts_Aggregation(t *testing.T) {
	store := NewMemory()
	newJob(t, store, "job-1")
	ctx := context.Background()

	puts := []Task{
		{JobID: "job-1", SnapshotID: "snap-1", Status: TaskPending},
		{JobID: "job-1", SnapshotID: "snap-2", Status: TaskInProgress},
		{JobID: "job-1", SnapshotID: "snap-3", Status: TaskSucceeded},
		{JobID: "job-1", SnapshotID: "snap-4", Status: TaskSucceeded},
		{JobID: "job-1", SnapshotID: "snap-5", Status: TaskFailed},
	}
	for _, task := range puts {
		if err := store.PutTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := store.Counts(ctx, "job-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	want := Counts{Total: 5, Pending: 1, InProgress: 1, Succeeded: 2, Failed: 1}
	if counts != want {
		t.Errorf("got %+v, want %+v", counts, want)
	}
	if counts.AllTerminal() {
		t.Error("AllTerminal true with pending work")
	}
}

func TestCounts_AllTerminal(t *testing.T) {
	tests := []struct {
		name   string
		counts Counts
		want   bool
	}{
		{"empty job", Counts{}, true},
		{"all succeeded", Counts{Total: 3, Succeeded: 3}, true},
		{"mixed terminal", Counts{Total: 3, Succeeded: 2, Failed: 1}, true},
		{"pending left", Counts{Total: 3, Succeeded: 2, Pending: 1}, false},
		{"in progress left", Counts{Total: 3, Succeeded: 2, InProgress: 1}, false},
	}

	for _, tt := range tests {
		if got := tt.counts.AllTerminal(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	for status, want := range map[TaskStatus]bool{
		TaskPending:    false,
		TaskInProgress: false,
		TaskSucceeded:  true,
		TaskFailed:     true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s: got %v, want %v", status, got, want)
		}
	}
}
