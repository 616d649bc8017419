// Package orchestrate drives one evaluation job through its lifecycle:
// price resolution, task dispatch, status polling, and consolidation.
//
// The state machine is explicit so the poll interval and the termination
// predicate are testable independently: Step performs exactly one
// transition with no sleeping, and Run owns the timer between Waiting
// and CheckingStatus. Polling is a timed sleep rather than a wait on an
// event because the worker pool is independently scheduled and has no
// push channel back to the orchestrator; a fixed interval bounds
// orchestration overhead regardless of job size.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/jobstore"
	"github.com/eunmann/snapcost/pkg/logging"
	"github.com/eunmann/snapcost/pkg/pricing"
	"github.com/eunmann/snapcost/pkg/snapshot"
	"github.com/eunmann/snapcost/pkg/workqueue"
)

// State is one node of the orchestration state machine.
type State int

const (
	StateInit State = iota
	StateDispatching
	StateWaiting
	StateCheckingStatus
	StateConsolidating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDispatching:
		return "dispatching"
	case StateWaiting:
		return "waiting"
	case StateCheckingStatus:
		return "checking_status"
	case StateConsolidating:
		return "consolidating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PriceResolver resolves the job's immutable tier price pair.
type PriceResolver interface {
	Resolve(ctx context.Context) (pricing.TierPrices, error)
}

// Inventory lists the snapshots in scope for a job.
type Inventory interface {
	ListSnapshots(ctx context.Context, filter snapshot.Filter) ([]snapshot.Ref, error)
}

// Consolidator emits the job's report once every task is terminal.
type Consolidator interface {
	Consolidate(ctx context.Context, jobID string) error
}

// Config tunes one orchestration run.
type Config struct {
	// PollInterval is the Waiting suspension (default 60s), the only
	// scheduled suspension point in the system.
	PollInterval time.Duration
	// Filter scopes the job's snapshots; nil means the default filter
	// (completed, standard tier, owned by this account).
	Filter snapshot.Filter
	// JobID overrides the generated job id, mainly for tests.
	JobID string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.Filter == nil {
		c.Filter = snapshot.DefaultFilter()
	}
	if c.JobID == "" {
		c.JobID = uuid.NewString()
	}
	return c
}

// Orchestrator runs one job. It is single-threaded: all state mutation
// happens inside Step.
type Orchestrator struct {
	prices       PriceResolver
	inventory    Inventory
	store        jobstore.Store
	queue        workqueue.Queue
	consolidator Consolidator
	cfg          Config
	now          func() time.Time

	state     State
	err       error
	pricePair pricing.TierPrices
	snapshots []snapshot.Ref
	tracker   *logging.TaskTracker
}

// New creates an orchestrator in StateInit.
func New(prices PriceResolver, inventory Inventory, store jobstore.Store, queue workqueue.Queue, consolidator Consolidator, cfg Config) *Orchestrator {
	return &Orchestrator{
		prices:       prices,
		inventory:    inventory,
		store:        store,
		queue:        queue,
		consolidator: consolidator,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
		state:        StateInit,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// JobID returns the job id for this run.
func (o *Orchestrator) JobID() string { return o.cfg.JobID }

// Err returns the error that moved the machine to StateFailed, if any.
func (o *Orchestrator) Err() error { return o.err }

// Step performs exactly one state transition and returns the new state.
// Step never sleeps; Run owns the Waiting interval.
func (o *Orchestrator) Step(ctx context.Context) State {
	switch o.state {
	case StateInit:
		o.state = o.stepInit(ctx)
	case StateDispatching:
		o.state = o.stepDispatch(ctx)
	case StateWaiting:
		o.state = StateCheckingStatus
	case StateCheckingStatus:
		o.state = o.stepCheckStatus(ctx)
	case StateConsolidating:
		o.state = o.stepConsolidate(ctx)
	}
	return o.state
}

// Run drives the machine to StateDone or StateFailed, sleeping
// PollInterval before each status check.
func (o *Orchestrator) Run(ctx context.Context) error {
	log := logctx.FromContext(ctx)

	for o.state != StateDone && o.state != StateFailed {
		if o.state == StateWaiting {
			timer := time.NewTimer(o.cfg.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		prev := o.state
		next := o.Step(ctx)
		if next != prev {
			log.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("orchestrator transition")
		}
	}

	if o.state == StateFailed {
		return o.err
	}
	return nil
}

// stepInit resolves pricing and the snapshot scope and creates the job
// record. Pricing failure is fatal here: no snapshots are evaluated
// without a price pair, and the job must be re-submitted.
func (o *Orchestrator) stepInit(ctx context.Context) State {
	log := logctx.FromContext(ctx)

	pricePair, err := o.prices.Resolve(ctx)
	if err != nil {
		o.err = err
		return StateFailed
	}
	o.pricePair = pricePair
	log.Info().
		Float64("standard_per_gb_month", pricePair.StandardPerGBMonth).
		Float64("archive_per_gb_month", pricePair.ArchivePerGBMonth).
		Msg("resolved snapshot tier pricing")

	refs, err := o.inventory.ListSnapshots(ctx, o.cfg.Filter)
	if err != nil {
		o.err = fmt.Errorf("list snapshots: %w", err)
		return StateFailed
	}
	o.snapshots = refs

	job := jobstore.Job{
		ID:         o.cfg.JobID,
		CreatedAt:  o.now(),
		Filter:     o.cfg.Filter,
		TotalTasks: len(refs),
		Status:     jobstore.JobRunning,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		o.err = fmt.Errorf("create job: %w", err)
		return StateFailed
	}

	log.Info().Int("snapshots", len(refs)).Msg("job created")
	return StateDispatching
}

// stepDispatch seeds one Pending task and one queue message per
// in-scope snapshot.
func (o *Orchestrator) stepDispatch(ctx context.Context) State {
	for _, ref := range o.snapshots {
		task := jobstore.Task{
			JobID:      o.cfg.JobID,
			SnapshotID: ref.ID,
			Status:     jobstore.TaskPending,
			UpdatedAt:  o.now(),
		}
		if err := o.store.PutTask(ctx, task); err != nil {
			o.err = fmt.Errorf("seed task %s: %w", ref.ID, err)
			return StateFailed
		}

		msg := workqueue.TaskMessage{
			JobID:      o.cfg.JobID,
			SnapshotID: ref.ID,
			Prices:     o.pricePair,
		}
		if err := o.queue.Send(ctx, msg); err != nil {
			o.err = fmt.Errorf("enqueue task %s: %w", ref.ID, err)
			return StateFailed
		}
	}

	o.tracker = logging.NewTaskTracker(o.cfg.JobID, int64(len(o.snapshots)), logctx.FromContext(ctx))
	return StateWaiting
}

// stepCheckStatus queries aggregate task counts. An irregularity here
// logs and returns to Waiting so the next interval retries; nothing at
// this state is allowed to terminate the job.
func (o *Orchestrator) stepCheckStatus(ctx context.Context) State {
	log := logctx.FromContext(ctx)

	counts, err := o.store.Counts(ctx, o.cfg.JobID)
	if err != nil {
		log.Warn().Err(err).Msg("status check failed, will retry next interval")
		return StateWaiting
	}

	o.tracker.SetTerminal(int64(counts.Succeeded), int64(counts.Failed))
	o.tracker.LogPoll()

	if !counts.AllTerminal() {
		return StateWaiting
	}
	return StateConsolidating
}

// stepConsolidate emits the report and settles the job's overall
// status: Completed, or CompletedWithErrors when any task failed.
func (o *Orchestrator) stepConsolidate(ctx context.Context) State {
	log := logctx.FromContext(ctx)

	if err := o.consolidator.Consolidate(ctx, o.cfg.JobID); err != nil {
		o.err = fmt.Errorf("consolidate job %s: %w", o.cfg.JobID, err)
		return StateFailed
	}

	counts, err := o.store.Counts(ctx, o.cfg.JobID)
	if err != nil {
		log.Warn().Err(err).Msg("final count query failed, will retry next interval")
		return StateWaiting
	}

	status := jobstore.JobCompleted
	if counts.Failed > 0 {
		status = jobstore.JobCompletedWithErrors
	}
	if err := o.store.UpdateJobStatus(ctx, o.cfg.JobID, status); err != nil {
		o.err = fmt.Errorf("update job status: %w", err)
		return StateFailed
	}

	log.Info().
		Str("status", string(status)).
		Int("succeeded", counts.Succeeded).
		Int("failed", counts.Failed).
		Msg("job complete")
	return StateDone
}
