package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/jobstore"
)

type memSink struct {
	artifacts map[string][]byte
}

func (s *memSink) Store(_ context.Context, name string, data []byte) (string, error) {
	if s.artifacts == nil {
		s.artifacts = make(map[string][]byte)
	}
	s.artifacts[name] = data
	return "mem://" + name, nil
}

func seedJob(t *testing.T, store *jobstore.Memory, tasks []jobstore.Task) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateJob(ctx, jobstore.Job{ID: "job-1", Status: jobstore.JobRunning}); err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		task.JobID = "job-1"
		if err := store.PutTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
}

func parseCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return rows
}

func result(id string) *evaluate.Result {
	return &evaluate.Result{
		TargetSnapshot:     id,
		VolumeID:           "vol-1",
		VolumeSizeGiB:      8,
		BlockSizeBytes:     524288,
		FullSizeBytes:      1073741824,
		UniqueSizeBytes:    52428800,
		Before:             "snap-before",
		StandardCost90Days: 0.0073242187,
		ArchiveCost90Days:  0.0375,
	}
}

func TestConsolidate_ResultAndErrorArtifacts(t *testing.T) {
	store := jobstore.NewMemory()
	seedJob(t, store, []jobstore.Task{
		{SnapshotID: "snap-ok", Status: jobstore.TaskSucceeded, Result: result("snap-ok")},
		{SnapshotID: "snap-bad", Status: jobstore.TaskFailed, LastError: "TransientRemoteFailure: throttled"},
	})

	sink := &memSink{}
	c := NewConsolidator(store, sink)
	c.now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC) }

	if err := c.Consolidate(context.Background(), "job-1"); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	results, ok := sink.artifacts["ebs_snapshot_evaluation_20250601123045.csv"]
	if !ok {
		t.Fatalf("results artifact missing, have %v", sink.artifacts)
	}
	rows := parseCSV(t, results)
	if len(rows) != 2 {
		t.Fatalf("result rows: got %d, want header + 1", len(rows))
	}
	if rows[0][0] != "target_snapshot" || len(rows[0]) != 10 {
		t.Errorf("header: %v", rows[0])
	}
	row := rows[1]
	if row[0] != "snap-ok" || row[4] != "vol-1" || row[5] != "snap-before" || row[6] != "" {
		t.Errorf("result row: %v", row)
	}
	if row[7] != "52428800" {
		t.Errorf("unique size column: %q", row[7])
	}
	if row[9] != "0.037500" {
		t.Errorf("archive cost column: %q", row[9])
	}

	errArtifact, ok := sink.artifacts["ebs_snapshot_evaluation_errors_20250601123045.csv"]
	if !ok {
		t.Fatal("errors artifact missing")
	}
	errRows := parseCSV(t, errArtifact)
	if len(errRows) != 2 {
		t.Fatalf("error rows: got %d", len(errRows))
	}
	if errRows[1][0] != "job-1" || errRows[1][1] != "snap-bad" || !strings.HasPrefix(errRows[1][2], "TransientRemoteFailure") {
		t.Errorf("error row: %v", errRows[1])
	}
}

func TestConsolidate_RowsOrderedBySnapshotID(t *testing.T) {
	store := jobstore.NewMemory()
	seedJob(t, store, []jobstore.Task{
		{SnapshotID: "snap-c", Status: jobstore.TaskSucceeded, Result: result("snap-c")},
		{SnapshotID: "snap-a", Status: jobstore.TaskSucceeded, Result: result("snap-a")},
		{SnapshotID: "snap-b", Status: jobstore.TaskSucceeded, Result: result("snap-b")},
	})

	sink := &memSink{}
	if err := NewConsolidator(store, sink).Consolidate(context.Background(), "job-1"); err != nil {
		t.Fatal(err)
	}

	var rows [][]string
	for name, data := range sink.artifacts {
		if !strings.Contains(name, "errors") {
			rows = parseCSV(t, data)
		}
	}
	want := []string{"snap-a", "snap-b", "snap-c"}
	if len(rows) != 4 {
		t.Fatalf("rows: got %d", len(rows))
	}
	for i, id := range want {
		if rows[i+1][0] != id {
			t.Errorf("row %d: got %s, want %s", i, rows[i+1][0], id)
		}
	}
}

func TestConsolidate_EmptyJob(t *testing.T) {
	store := jobstore.NewMemory()
	seedJob(t, store, nil)

	sink := &memSink{}
	if err := NewConsolidator(store, sink).Consolidate(context.Background(), "job-1"); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	// Header-only artifacts still written.
	if len(sink.artifacts) != 2 {
		t.Fatalf("artifacts: got %d, want 2", len(sink.artifacts))
	}
	for name, data := range sink.artifacts {
		if rows := parseCSV(t, data); len(rows) != 1 {
			t.Errorf("%s: got %d rows, want header only", name, len(rows))
		}
	}
}

func TestConsolidate_SucceededWithoutResult(t *testing.T) {
	store := jobstore.NewMemory()
	seedJob(t, store, []jobstore.Task{
		{SnapshotID: "snap-odd", Status: jobstore.TaskSucceeded},
	})

	sink := &memSink{}
	if err := NewConsolidator(store, sink).Consolidate(context.Background(), "job-1"); err != nil {
		t.Fatal(err)
	}

	for name, data := range sink.artifacts {
		rows := parseCSV(t, data)
		if strings.Contains(name, "errors") {
			if len(rows) != 2 || rows[1][1] != "snap-odd" {
				t.Errorf("error artifact rows: %v", rows)
			}
		} else if len(rows) != 1 {
			t.Errorf("result artifact has %d rows, want header only", len(rows))
		}
	}
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	sink := DirSink{Dir: dir}

	loc, err := sink.Store(context.Background(), "out.csv", []byte("a,b\n"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if loc != filepath.Join(dir, "out.csv") {
		t.Errorf("location: %q", loc)
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("content: %q", data)
	}
}

func TestWriteSummary(t *testing.T) {
	var sb strings.Builder
	WriteSummary(&sb, *result("snap-ok"))
	out := sb.String()

	for _, want := range []string{
		"snap-ok",
		"vol-1",
		"snap-before",
		"Snapshot after:         none",
		"standard tier",
		"archive tier",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
