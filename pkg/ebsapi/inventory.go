// Package ebsapi wraps the EC2 and EBS direct APIs behind the snapshot
// inventory and block-diff collaborator boundaries. All listing calls
// paginate to completion and all failures are classified into the task
// error taxonomy (transient vs terminal).
package ebsapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/eunmann/snapcost/pkg/snapshot"
)

// Inventory lists snapshot metadata via EC2 DescribeSnapshots.
type Inventory struct {
	api ec2.DescribeSnapshotsAPIClient
}

// NewInventory creates an inventory client.
func NewInventory(api ec2.DescribeSnapshotsAPIClient) *Inventory {
	return &Inventory{api: api}
}

// ListSnapshots returns all snapshots owned by the calling account that
// match the filter. Unrecognized filter names are passed through; the
// service ignores unknown keys.
func (inv *Inventory) ListSnapshots(ctx context.Context, filter snapshot.Filter) ([]snapshot.Ref, error) {
	input := &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  toEC2Filters(filter),
	}
	refs, err := inv.describeAll(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", classify(err))
	}
	return refs, nil
}

// VolumeSnapshots returns every snapshot of one source volume, in the
// order the service returns them; callers sort into chain order.
func (inv *Inventory) VolumeSnapshots(ctx context.Context, volumeID string) ([]snapshot.Ref, error) {
	input := &ec2.DescribeSnapshotsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("volume-id"), Values: []string{volumeID}},
		},
	}
	refs, err := inv.describeAll(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("volume snapshots %s: %w", volumeID, classify(err))
	}
	return refs, nil
}

// DescribeSnapshot fetches a single snapshot by id.
func (inv *Inventory) DescribeSnapshot(ctx context.Context, snapshotID string) (snapshot.Ref, error) {
	out, err := inv.api.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		SnapshotIds: []string{snapshotID},
	})
	if err != nil {
		return snapshot.Ref{}, fmt.Errorf("describe snapshot %s: %w", snapshotID, classify(err))
	}
	if len(out.Snapshots) == 0 {
		return snapshot.Ref{}, fmt.Errorf("describe snapshot %s: %w", snapshotID, ErrSnapshotNotFound)
	}
	return toRef(out.Snapshots[0]), nil
}

func (inv *Inventory) describeAll(ctx context.Context, input *ec2.DescribeSnapshotsInput) ([]snapshot.Ref, error) {
	var refs []snapshot.Ref

	paginator := ec2.NewDescribeSnapshotsPaginator(inv.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.Snapshots {
			refs = append(refs, toRef(s))
		}
	}

	return refs, nil
}

func toEC2Filters(filter snapshot.Filter) []ec2types.Filter {
	// Iterate names in sorted order so request shapes are deterministic.
	filters := make([]ec2types.Filter, 0, len(filter))
	for _, name := range filter.Names() {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String(name),
			Values: filter[name],
		})
	}
	return filters
}

func toRef(s ec2types.Snapshot) snapshot.Ref {
	ref := snapshot.Ref{
		Tier:  snapshot.Tier(s.StorageTier),
		State: snapshot.State(s.State),
	}
	if s.SnapshotId != nil {
		ref.ID = *s.SnapshotId
	}
	if s.VolumeId != nil {
		ref.VolumeID = *s.VolumeId
	}
	if s.StartTime != nil {
		ref.StartTime = *s.StartTime
	}
	if s.VolumeSize != nil {
		ref.VolumeSizeGiB = int64(*s.VolumeSize)
	}
	if s.Description != nil {
		ref.Description = *s.Description
	}
	return ref
}
