// Package workqueue delivers evaluation tasks to workers with
// at-least-once semantics. One message carries exactly one task.
package workqueue

import (
	"context"

	"github.com/eunmann/snapcost/pkg/pricing"
)

// TaskMessage is the wire payload for one evaluation task. Prices ride
// along so workers never call the pricing service; the pair was resolved
// once at job start and is immutable for the job.
type TaskMessage struct {
	JobID      string             `json:"jobid"`
	SnapshotID string             `json:"snapshot_id"`
	Prices     pricing.TierPrices `json:"pricing_data"`
}

// Delivery is one received message plus the receipt needed to settle it.
// A delivery that is never deleted becomes visible again and is
// redelivered; task processing must tolerate that.
type Delivery struct {
	Message TaskMessage
	Receipt string
}

// Queue decouples task submission rate from processing rate.
type Queue interface {
	// Send enqueues one task message.
	Send(ctx context.Context, msg TaskMessage) error
	// Receive returns up to max deliveries, blocking briefly (long poll)
	// when the queue is empty. An empty slice is not an error.
	Receive(ctx context.Context, max int) ([]Delivery, error)
	// Delete settles a delivery so it is not redelivered.
	Delete(ctx context.Context, delivery Delivery) error
}
