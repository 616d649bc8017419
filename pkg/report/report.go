// Package report consolidates terminal task results into the tabular
// artifacts a job leaves behind: one results CSV and one errors CSV.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/jobstore"
)

// resultHeaders is the results CSV column set, one row per succeeded
// snapshot evaluation.
var resultHeaders = []string{
	"target_snapshot",
	"source_ebs_volume_size_gb",
	"snapshot_block_size_bytes",
	"approx_full_snapshot_size_bytes",
	"snapshot_source_volume_id",
	"snapshot_before",
	"snapshot_after",
	"approx_size_target_snapshot_bytes",
	"cost_estimate_90days_target_snapshot_in_std_tier",
	"cost_estimate_90days_target_snapshot_in_archive_tier",
}

var errorHeaders = []string{"job_id", "snapshot_id", "error_message"}

// Sink stores one named report artifact and returns its location.
type Sink interface {
	Store(ctx context.Context, name string, data []byte) (location string, err error)
}

// Consolidator reads all terminal tasks of a job and writes the report
// artifacts. Failed tasks never suppress the report: every Succeeded
// task is emitted, and failures are flagged by id and reason in the
// companion errors artifact.
type Consolidator struct {
	store jobstore.Store
	sink  Sink
	now   func() time.Time
}

// NewConsolidator creates a consolidator writing to sink.
func NewConsolidator(store jobstore.Store, sink Sink) *Consolidator {
	return &Consolidator{store: store, sink: sink, now: time.Now}
}

// Consolidate emits both artifacts for jobID. Rows are ordered by
// snapshot id, not completion order, so repeated consolidations of the
// same job are byte-identical apart from the timestamped names.
func (c *Consolidator) Consolidate(ctx context.Context, jobID string) error {
	tasks, err := c.store.ListTasks(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	results, errRows := splitTasks(tasks)

	resultCSV, err := renderCSV(resultHeaders, results)
	if err != nil {
		return fmt.Errorf("render results: %w", err)
	}
	errorCSV, err := renderCSV(errorHeaders, errRows)
	if err != nil {
		return fmt.Errorf("render errors: %w", err)
	}

	stamp := c.now().UTC().Format("20060102150405")
	resultLoc, err := c.sink.Store(ctx, fmt.Sprintf("ebs_snapshot_evaluation_%s.csv", stamp), resultCSV)
	if err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	errorLoc, err := c.sink.Store(ctx, fmt.Sprintf("ebs_snapshot_evaluation_errors_%s.csv", stamp), errorCSV)
	if err != nil {
		return fmt.Errorf("store errors: %w", err)
	}

	log := logctx.FromContext(ctx)
	log.Info().
		Str("job_id", jobID).
		Int("results", len(results)).
		Int("errors", len(errRows)).
		Str("output_location", resultLoc).
		Str("errors_location", errorLoc).
		Msg("report consolidated")
	return nil
}

// splitTasks renders succeeded tasks as result rows and everything else
// terminal-but-resultless as error rows. ListTasks already orders by
// snapshot id.
func splitTasks(tasks []jobstore.Task) (results, errRows [][]string) {
	for _, task := range tasks {
		switch {
		case task.Status == jobstore.TaskSucceeded && task.Result != nil:
			r := task.Result
			results = append(results, []string{
				r.TargetSnapshot,
				strconv.FormatInt(r.VolumeSizeGiB, 10),
				strconv.FormatInt(r.BlockSizeBytes, 10),
				strconv.FormatInt(r.FullSizeBytes, 10),
				r.VolumeID,
				r.Before,
				r.After,
				strconv.FormatInt(r.UniqueSizeBytes, 10),
				formatUSD(r.StandardCost90Days),
				formatUSD(r.ArchiveCost90Days),
			})
		case task.Status == jobstore.TaskFailed:
			reason := task.LastError
			if reason == "" {
				reason = "no data was captured for this snapshot"
			}
			errRows = append(errRows, []string{task.JobID, task.SnapshotID, reason})
		case task.Status == jobstore.TaskSucceeded:
			// Succeeded without a payload is a store inconsistency;
			// surface it rather than dropping the snapshot silently.
			errRows = append(errRows, []string{task.JobID, task.SnapshotID, "no data was captured for this snapshot"})
		}
	}
	return results, errRows
}

func renderCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// formatUSD renders costs with fixed precision so spreadsheet imports
// sort numerically.
func formatUSD(dollars float64) string {
	return strconv.FormatFloat(dollars, 'f', 6, 64)
}
