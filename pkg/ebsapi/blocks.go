package ebsapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ebs"
	ebstypes "github.com/aws/aws-sdk-go-v2/service/ebs/types"
)

// SnapshotBlocks summarizes the allocated blocks of one snapshot as
// reported by EBS ListSnapshotBlocks.
type SnapshotBlocks struct {
	SnapshotID     string
	VolumeSizeGiB  int64
	BlockSizeBytes int64
	MaxBlockIndex  int32
	BlockCount     int
}

// FullSizeBytes approximates the size of the snapshot materialized as a
// full snapshot, which is what the archive tier stores.
func (b SnapshotBlocks) FullSizeBytes() int64 {
	return int64(b.MaxBlockIndex) * b.BlockSizeBytes
}

// BlockAPI is the subset of the EBS direct API the block client uses.
// It matches the SDK paginator client interfaces.
type BlockAPI interface {
	ebs.ListSnapshotBlocksAPIClient
	ebs.ListChangedBlocksAPIClient
}

// Blocks queries snapshot block allocations and pairwise changed-block
// sets. Every ListChangedBlocks call is billed and rate limited by the
// provider; callers go through the diff cache rather than calling
// ChangedBlocks directly.
type Blocks struct {
	api BlockAPI
}

// NewBlocks creates a block-diff client.
func NewBlocks(api BlockAPI) *Blocks {
	return &Blocks{api: api}
}

// SnapshotBlocks lists all allocated blocks of a snapshot and reduces
// them to the sizing summary the evaluator needs.
func (b *Blocks) SnapshotBlocks(ctx context.Context, snapshotID string) (SnapshotBlocks, error) {
	result := SnapshotBlocks{SnapshotID: snapshotID}

	input := &ebs.ListSnapshotBlocksInput{SnapshotId: &snapshotID}
	paginator := ebs.NewListSnapshotBlocksPaginator(b.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return SnapshotBlocks{}, fmt.Errorf("list snapshot blocks %s: %w", snapshotID, mapBlockError(err))
		}
		if page.VolumeSize != nil {
			result.VolumeSizeGiB = *page.VolumeSize
		}
		if page.BlockSize != nil {
			result.BlockSizeBytes = int64(*page.BlockSize)
		}
		for _, block := range page.Blocks {
			if block.BlockIndex == nil {
				continue
			}
			result.BlockCount++
			if *block.BlockIndex > result.MaxBlockIndex {
				result.MaxBlockIndex = *block.BlockIndex
			}
		}
	}

	return result, nil
}

// ChangedBlocks returns the block indexes that differ between two
// snapshots of the same volume. Directional: older must precede newer in
// the chain. An "is empty" validation error from the service means one
// side has no allocated blocks and maps to an empty diff, not a failure.
func (b *Blocks) ChangedBlocks(ctx context.Context, olderID, newerID string) ([]int32, error) {
	var indexes []int32

	input := &ebs.ListChangedBlocksInput{
		FirstSnapshotId:  &olderID,
		SecondSnapshotId: &newerID,
	}
	paginator := ebs.NewListChangedBlocksPaginator(b.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isEmptySnapshotValidation(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("changed blocks %s..%s: %w", olderID, newerID, mapBlockError(err))
		}
		for _, cb := range page.ChangedBlocks {
			if cb.BlockIndex != nil {
				indexes = append(indexes, *cb.BlockIndex)
			}
		}
	}

	return indexes, nil
}

// mapBlockError classifies EBS direct API failures: not-found is
// terminal, throttling and timeouts are transient, everything else is
// transient as well since the EBS API surfaces intermittent 5xx under
// load.
func mapBlockError(err error) error {
	var nf *ebstypes.ResourceNotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, nf.ErrorMessage())
	}

	classified := classify(err)
	if IsTransient(classified) {
		return classified
	}

	var ve *ebstypes.ValidationException
	if errors.As(err, &ve) {
		return err
	}

	return &TransientError{Err: err}
}

func isEmptySnapshotValidation(err error) bool {
	var ve *ebstypes.ValidationException
	return errors.As(err, &ve) && strings.Contains(ve.ErrorMessage(), "is empty")
}
