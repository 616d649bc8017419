// Package snapshot defines EBS snapshot domain types shared across the
// evaluation pipeline.
package snapshot

import (
	"sort"
	"time"
)

// Tier identifies an EBS snapshot storage tier.
type Tier string

const (
	// TierStandard is the default incremental snapshot storage tier.
	TierStandard Tier = "standard"
	// TierArchive is the low-frequency-access tier. Archived snapshots are
	// materialized as full snapshots and carry a 90-day minimum retention.
	TierArchive Tier = "archive"
)

// State is the lifecycle state of a snapshot as reported by the inventory.
type State string

const (
	StateCompleted State = "completed"
	StatePending   State = "pending"
	StateError     State = "error"
)

// Ref is an immutable description of one snapshot, sourced from the
// inventory collaborator (EC2 DescribeSnapshots).
type Ref struct {
	ID            string
	VolumeID      string
	StartTime     time.Time
	VolumeSizeGiB int64
	Tier          Tier
	State         State
	Description   string
}

// ChainContext is a target snapshot together with its immediate chain
// neighbors on the same source volume. Before or After are nil at chain
// boundaries; a nil neighbor is a valid gap, not an error.
type ChainContext struct {
	Target Ref
	Before *Ref
	After  *Ref
}

// Scenario classifies a chain context by which neighbors exist.
type Scenario int

const (
	// ScenarioNeither means the target is the only snapshot of its volume.
	ScenarioNeither Scenario = iota
	// ScenarioBefore means only an earlier neighbor exists.
	ScenarioBefore
	// ScenarioAfter means only a later neighbor exists.
	ScenarioAfter
	// ScenarioBoth means the target sits between two neighbors.
	ScenarioBoth
)

func (s Scenario) String() string {
	switch s {
	case ScenarioNeither:
		return "neither"
	case ScenarioBefore:
		return "before"
	case ScenarioAfter:
		return "after"
	case ScenarioBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Scenario returns the evaluation scenario for this context.
func (c ChainContext) Scenario() Scenario {
	switch {
	case c.Before != nil && c.After != nil:
		return ScenarioBoth
	case c.Before != nil:
		return ScenarioBefore
	case c.After != nil:
		return ScenarioAfter
	default:
		return ScenarioNeither
	}
}

// Less orders snapshots by (StartTime, ID). The ID tiebreak makes the
// chain order a strict total order even when start times collide.
func Less(a, b Ref) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.ID < b.ID
}

// SortChain sorts refs into chain order, ascending by creation time.
func SortChain(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		return Less(refs[i], refs[j])
	})
}

// Filter is a set of inventory filter predicates, expressed as
// name -> accepted values. It mirrors the DescribeSnapshots filter shape;
// unrecognized names pass through to the inventory service, which ignores
// unknown keys.
type Filter map[string][]string

// DefaultFilter scopes a job to completed, standard-tier snapshots.
// Ownership (owner=self) is applied by the inventory client, not here.
func DefaultFilter() Filter {
	return Filter{
		"storage-tier": {string(TierStandard)},
		"status":       {string(StateCompleted)},
	}
}

// Names returns the filter names in sorted order, for deterministic
// serialization and logging.
func (f Filter) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
