// Package evaluate computes a snapshot's unique logical size from its
// chain position and prices the standard-vs-archive tier comparison.
package evaluate

import (
	"context"
	"fmt"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/ebsapi"
	"github.com/eunmann/snapcost/pkg/pricing"
	"github.com/eunmann/snapcost/pkg/snapshot"
)

// BlockLister enumerates a snapshot's allocated blocks.
type BlockLister interface {
	SnapshotBlocks(ctx context.Context, snapshotID string) (ebsapi.SnapshotBlocks, error)
}

// DiffSource returns the changed-block indexes between two snapshots,
// normally the cache-backed read-through source.
type DiffSource interface {
	ChangedBlocks(ctx context.Context, olderID, newerID string) ([]int32, error)
}

// Result is the outcome of evaluating one snapshot. It carries every
// column of the consolidated report.
type Result struct {
	TargetSnapshot  string            `json:"target_snapshot"`
	VolumeID        string            `json:"snapshot_source_volume_id"`
	VolumeSizeGiB   int64             `json:"source_ebs_volume_size_gb"`
	BlockSizeBytes  int64             `json:"snapshot_block_size_bytes"`
	FullSizeBytes   int64             `json:"approx_full_snapshot_size_bytes"`
	UniqueSizeBytes int64             `json:"approx_unique_size_bytes"`
	Before          string            `json:"snapshot_before,omitempty"`
	After           string            `json:"snapshot_after,omitempty"`
	Scenario        snapshot.Scenario `json:"-"`

	// StandardCost90Days prices the unique logical size: only blocks not
	// referenced by a chain neighbor are freed by leaving the standard
	// tier. ArchiveCost90Days prices the full snapshot size: archiving
	// converts the incremental snapshot to a full one. The asymmetry is
	// the whole point of the comparison.
	StandardCost90Days float64 `json:"cost_estimate_90days_std_tier"`
	ArchiveCost90Days  float64 `json:"cost_estimate_90days_archive_tier"`
}

// Evaluator is stateless; all state lives in the collaborators, so one
// evaluator is shared by every worker in the pool. The price pair is an
// argument to Evaluate because it travels with each task message,
// resolved once at job start.
type Evaluator struct {
	blocks BlockLister
	diffs  DiffSource
}

// New creates an evaluator.
func New(blocks BlockLister, diffs DiffSource) *Evaluator {
	return &Evaluator{blocks: blocks, diffs: diffs}
}

// Evaluate computes the unique logical size and tier costs for the
// chain context's target snapshot.
//
// Unique size by scenario:
//   - no neighbors: the snapshot is the full snapshot; unique = full.
//   - one neighbor: the single pairwise diff's blocks are the data only
//     this snapshot holds.
//   - both neighbors: the union of the two diffs, de-duplicated by block
//     index so a block changed on both sides counts once.
func (e *Evaluator) Evaluate(ctx context.Context, cc snapshot.ChainContext, prices pricing.TierPrices) (Result, error) {
	target := cc.Target

	blocks, err := e.blocks.SnapshotBlocks(ctx, target.ID)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		TargetSnapshot: target.ID,
		VolumeID:       target.VolumeID,
		VolumeSizeGiB:  blocks.VolumeSizeGiB,
		BlockSizeBytes: blocks.BlockSizeBytes,
		FullSizeBytes:  blocks.FullSizeBytes(),
		Scenario:       cc.Scenario(),
	}
	if cc.Before != nil {
		result.Before = cc.Before.ID
	}
	if cc.After != nil {
		result.After = cc.After.ID
	}

	uniqueBlocks, err := e.uniqueBlockCount(ctx, cc)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %s: %w", target.ID, err)
	}

	switch result.Scenario {
	case snapshot.ScenarioNeither:
		result.UniqueSizeBytes = result.FullSizeBytes
	default:
		result.UniqueSizeBytes = int64(uniqueBlocks) * blocks.BlockSizeBytes
	}

	result.StandardCost90Days = pricing.Cost90Days(result.UniqueSizeBytes, prices.StandardPerGBMonth)
	result.ArchiveCost90Days = pricing.Cost90Days(result.FullSizeBytes, prices.ArchivePerGBMonth)

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("scenario", result.Scenario.String()).
		Int64("full_bytes", result.FullSizeBytes).
		Int64("unique_bytes", result.UniqueSizeBytes).
		Msg("snapshot evaluated")

	return result, nil
}

// uniqueBlockCount returns the number of distinct changed block indexes
// across the diffs the scenario calls for. Zero for ScenarioNeither.
func (e *Evaluator) uniqueBlockCount(ctx context.Context, cc snapshot.ChainContext) (int, error) {
	seen := make(map[int32]struct{})

	if cc.Before != nil {
		indexes, err := e.diffs.ChangedBlocks(ctx, cc.Before.ID, cc.Target.ID)
		if err != nil {
			return 0, fmt.Errorf("diff before..target: %w", err)
		}
		for _, idx := range indexes {
			seen[idx] = struct{}{}
		}
	}

	if cc.After != nil {
		indexes, err := e.diffs.ChangedBlocks(ctx, cc.Target.ID, cc.After.ID)
		if err != nil {
			return 0, fmt.Errorf("diff target..after: %w", err)
		}
		for _, idx := range indexes {
			seen[idx] = struct{}{}
		}
	}

	return len(seen), nil
}
