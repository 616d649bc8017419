// Package chain locates a snapshot's position in its source volume's
// snapshot chain and returns its immediate neighbors.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/snapshot"
)

// ErrSourceVolumeNotFound indicates the target snapshot's source volume
// could not be resolved (e.g. the volume was deleted). Terminal: the
// task fails without retry since the lookup will not succeed later.
var ErrSourceVolumeNotFound = errors.New("source volume not found")

// ErrTargetNotInChain indicates the target snapshot was absent from its
// own volume's snapshot listing, which points at an inventory
// inconsistency rather than a transient fault.
var ErrTargetNotInChain = errors.New("target snapshot not in volume chain")

// Inventory is the slice of the snapshot inventory the resolver needs.
type Inventory interface {
	DescribeSnapshot(ctx context.Context, snapshotID string) (snapshot.Ref, error)
	VolumeSnapshots(ctx context.Context, volumeID string) ([]snapshot.Ref, error)
}

// Resolver builds ChainContexts from the inventory collaborator.
type Resolver struct {
	inv Inventory
}

// NewResolver creates a chain resolver.
func NewResolver(inv Inventory) *Resolver {
	return &Resolver{inv: inv}
}

// ResolveID fetches the target snapshot by id and resolves its chain
// context. Used by the ad-hoc single-snapshot path where no Ref has been
// listed yet.
func (r *Resolver) ResolveID(ctx context.Context, snapshotID string) (snapshot.ChainContext, error) {
	target, err := r.inv.DescribeSnapshot(ctx, snapshotID)
	if err != nil {
		return snapshot.ChainContext{}, err
	}
	return r.Resolve(ctx, target)
}

// Resolve finds the snapshots of the target's source volume, sorts them
// into chain order ((StartTime, ID) strict total order, so colliding
// timestamps still resolve deterministically), and returns the target
// with its adjacent entries. A missing neighbor is a chain boundary, not
// an error.
func (r *Resolver) Resolve(ctx context.Context, target snapshot.Ref) (snapshot.ChainContext, error) {
	if target.VolumeID == "" {
		return snapshot.ChainContext{}, fmt.Errorf("snapshot %s: %w", target.ID, ErrSourceVolumeNotFound)
	}

	refs, err := r.inv.VolumeSnapshots(ctx, target.VolumeID)
	if err != nil {
		return snapshot.ChainContext{}, fmt.Errorf("resolve chain for %s: %w", target.ID, err)
	}
	if len(refs) == 0 {
		return snapshot.ChainContext{}, fmt.Errorf("snapshot %s: volume %s: %w", target.ID, target.VolumeID, ErrSourceVolumeNotFound)
	}

	snapshot.SortChain(refs)

	pos := -1
	for i, ref := range refs {
		if ref.ID == target.ID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return snapshot.ChainContext{}, fmt.Errorf("snapshot %s: volume %s: %w", target.ID, target.VolumeID, ErrTargetNotInChain)
	}

	cc := snapshot.ChainContext{Target: refs[pos]}
	if pos > 0 {
		before := refs[pos-1]
		cc.Before = &before
	}
	if pos < len(refs)-1 {
		after := refs[pos+1]
		cc.After = &after
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("volume_id", target.VolumeID).
		Int("chain_len", len(refs)).
		Str("scenario", cc.Scenario().String()).
		Msg("resolved snapshot chain")

	return cc, nil
}
