// Package diffcache memoizes pairwise changed-block query results.
//
// Every ListChangedBlocks call is rate limited and billed, and adjacent
// snapshots in a chain are diffed by up to two different tasks, so diff
// results are shared across all workers of all jobs. A result depends
// only on the snapshot pair, never on the job, and snapshots are
// immutable, so last-writer-wins storage is safe: concurrent writers for
// the same key always write the same value.
package diffcache

import (
	"context"
	"time"

	"github.com/eunmann/snapcost/internal/logctx"
)

// DefaultTTL is the retention window for cached diffs. Entries expire
// unconditionally after this window regardless of read frequency.
const DefaultTTL = 7 * 24 * time.Hour

// Key identifies one directional changed-block query. (A,B) and (B,A)
// are distinct keys; the query direction is authoritative and symmetry
// is not assumed.
type Key struct {
	OlderID string
	NewerID string
}

// String renders the key in its canonical "older..newer" form, which is
// also the partition key used by the DynamoDB implementation.
func (k Key) String() string {
	return k.OlderID + ".." + k.NewerID
}

// Diff is a cached changed-block result. An empty BlockIndexes slice is
// a real result ("no changes"); absence from the cache is the only
// signal that a pair has not been computed.
type Diff struct {
	BlockIndexes []int32
	ComputedAt   time.Time
}

// Cache stores diffs with TTL-bounded retention. Implementations treat
// entries older than the TTL as absent on read; physical removal may
// happen at any time after expiry. Concurrent misses for the same key
// are not deduplicated; duplicate remote calls under races are
// tolerated.
type Cache interface {
	Get(ctx context.Context, key Key) (Diff, bool, error)
	Put(ctx context.Context, key Key, diff Diff) error
}

// Source produces a diff when the cache has none, normally the EBS
// ListChangedBlocks client.
type Source interface {
	ChangedBlocks(ctx context.Context, olderID, newerID string) ([]int32, error)
}

// ReadThrough wraps a Source with a Cache. Cache failures degrade to a
// direct remote call: the cache is an optimization, never a correctness
// dependency.
type ReadThrough struct {
	cache  Cache
	source Source
}

// NewReadThrough creates a read-through diff source.
func NewReadThrough(cache Cache, source Source) *ReadThrough {
	return &ReadThrough{cache: cache, source: source}
}

// ChangedBlocks returns the cached diff for (olderID, newerID) or
// computes and caches it.
func (rt *ReadThrough) ChangedBlocks(ctx context.Context, olderID, newerID string) ([]int32, error) {
	key := Key{OlderID: olderID, NewerID: newerID}
	log := logctx.FromContext(ctx)

	diff, ok, err := rt.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("pair", key.String()).Msg("diff cache read failed, treating as miss")
	} else if ok {
		log.Debug().Str("pair", key.String()).Int("blocks", len(diff.BlockIndexes)).Msg("diff cache hit")
		return diff.BlockIndexes, nil
	}

	indexes, err := rt.source.ChangedBlocks(ctx, olderID, newerID)
	if err != nil {
		return nil, err
	}

	put := Diff{BlockIndexes: indexes, ComputedAt: time.Now().UTC()}
	if err := rt.cache.Put(ctx, key, put); err != nil {
		log.Warn().Err(err).Str("pair", key.String()).Msg("diff cache write failed")
	}

	return indexes, nil
}
