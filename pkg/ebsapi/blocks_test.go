package ebsapi

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ebs"
	ebstypes "github.com/aws/aws-sdk-go-v2/service/ebs/types"
)

type fakeBlockAPI struct {
	// pages of allocated blocks, one slice per ListSnapshotBlocks page
	blockPages [][]int32
	volumeSize int64
	blockSize  int32

	// pages of changed blocks
	changedPages [][]int32
	changedErr   error

	listCalls    int
	changedCalls int
}

func (f *fakeBlockAPI) ListSnapshotBlocks(_ context.Context, params *ebs.ListSnapshotBlocksInput, _ ...func(*ebs.Options)) (*ebs.ListSnapshotBlocksOutput, error) {
	page := f.listCalls
	f.listCalls++

	out := &ebs.ListSnapshotBlocksOutput{
		VolumeSize: aws.Int64(f.volumeSize),
		BlockSize:  aws.Int32(f.blockSize),
	}
	for _, idx := range f.blockPages[page] {
		out.Blocks = append(out.Blocks, ebstypes.Block{BlockIndex: aws.Int32(idx)})
	}
	if page < len(f.blockPages)-1 {
		out.NextToken = aws.String("more")
	}
	return out, nil
}

func (f *fakeBlockAPI) ListChangedBlocks(_ context.Context, params *ebs.ListChangedBlocksInput, _ ...func(*ebs.Options)) (*ebs.ListChangedBlocksOutput, error) {
	if f.changedErr != nil {
		return nil, f.changedErr
	}
	page := f.changedCalls
	f.changedCalls++

	out := &ebs.ListChangedBlocksOutput{}
	for _, idx := range f.changedPages[page] {
		out.ChangedBlocks = append(out.ChangedBlocks, ebstypes.ChangedBlock{BlockIndex: aws.Int32(idx)})
	}
	if page < len(f.changedPages)-1 {
		out.NextToken = aws.String("more")
	}
	return out, nil
}

func TestSnapshotBlocks_Pagination(t *testing.T) {
	api := &fakeBlockAPI{
		blockPages: [][]int32{{0, 1, 5}, {7, 100}},
		volumeSize: 8,
		blockSize:  524288,
	}

	got, err := NewBlocks(api).SnapshotBlocks(context.Background(), "snap-1")
	if err != nil {
		t.Fatalf("snapshot blocks: %v", err)
	}

	if got.SnapshotID != "snap-1" || got.VolumeSizeGiB != 8 || got.BlockSizeBytes != 524288 {
		t.Errorf("summary: %+v", got)
	}
	if got.BlockCount != 5 {
		t.Errorf("block count: got %d, want 5", got.BlockCount)
	}
	if got.MaxBlockIndex != 100 {
		t.Errorf("max index: got %d, want 100", got.MaxBlockIndex)
	}
	if api.listCalls != 2 {
		t.Errorf("pages fetched: got %d, want 2", api.listCalls)
	}
}

func TestChangedBlocks_Pagination(t *testing.T) {
	api := &fakeBlockAPI{changedPages: [][]int32{{1, 2}, {9}}}

	got, err := NewBlocks(api).ChangedBlocks(context.Background(), "snap-a", "snap-b")
	if err != nil {
		t.Fatalf("changed blocks: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 9 {
		t.Errorf("indexes: %v", got)
	}
}

func TestChangedBlocks_EmptySnapshotIsEmptyDiff(t *testing.T) {
	msg := "The first snapshot specified (snap-a) is empty"
	api := &fakeBlockAPI{changedErr: &ebstypes.ValidationException{Message: &msg}}

	got, err := NewBlocks(api).ChangedBlocks(context.Background(), "snap-a", "snap-b")
	if err != nil {
		t.Fatalf("expected empty diff, got error %v", err)
	}
	if len(got) != 0 {
		t.Errorf("indexes: %v", got)
	}
}

func TestChangedBlocks_NotFound(t *testing.T) {
	msg := "snap-b does not exist"
	api := &fakeBlockAPI{changedErr: &ebstypes.ResourceNotFoundException{Message: &msg}}

	_, err := NewBlocks(api).ChangedBlocks(context.Background(), "snap-a", "snap-b")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("got %v, want ErrSnapshotNotFound", err)
	}
}
