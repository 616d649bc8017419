// Package worker runs the bounded pool that pulls evaluation tasks from
// the work queue, invokes the evaluation engine, and persists results.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/chain"
	"github.com/eunmann/snapcost/pkg/ebsapi"
	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/jobstore"
	"github.com/eunmann/snapcost/pkg/pricing"
	"github.com/eunmann/snapcost/pkg/snapshot"
	"github.com/eunmann/snapcost/pkg/workqueue"
)

// Config tunes the pool. The concurrency bound is the system's primary
// backpressure mechanism: it is what keeps the pool inside the EBS
// direct API rate limit.
type Config struct {
	// Concurrency is the number of simultaneous evaluations (default 12).
	Concurrency int
	// MaxAttempts bounds in-process retries of transient failures
	// (default 4).
	MaxAttempts int
	// BaseBackoff is the first retry delay (default 2s); delays double
	// per attempt with jitter, capped at MaxBackoff (default 30s).
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 12
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Resolver builds the chain context for a task's snapshot.
type Resolver interface {
	ResolveID(ctx context.Context, snapshotID string) (snapshot.ChainContext, error)
}

// Evaluator computes one snapshot's evaluation result.
type Evaluator interface {
	Evaluate(ctx context.Context, cc snapshot.ChainContext, prices pricing.TierPrices) (evaluate.Result, error)
}

// Pool consumes the work queue with bounded concurrency.
type Pool struct {
	queue    workqueue.Queue
	store    jobstore.Store
	resolver Resolver
	eval     Evaluator
	cfg      Config
	now      func() time.Time
}

// New creates a worker pool.
func New(queue workqueue.Queue, store jobstore.Store, resolver Resolver, eval Evaluator, cfg Config) *Pool {
	return &Pool{
		queue:    queue,
		store:    store,
		resolver: resolver,
		eval:     eval,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Run consumes tasks until ctx is cancelled. Task failures never stop
// the pool; only cancellation does.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			p.consume(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) consume(ctx context.Context) {
	log := logctx.FromContext(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		deliveries, err := p.queue.Receive(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("receive failed, backing off")
			sleep(ctx, p.cfg.BaseBackoff)
			continue
		}
		if len(deliveries) == 0 {
			// Empty long poll. The in-memory queue returns immediately,
			// so pace the loop instead of spinning.
			sleep(ctx, 50*time.Millisecond)
			continue
		}

		for _, delivery := range deliveries {
			p.handle(ctx, delivery)
		}
	}
}

// handle processes one delivery end to end. The delivery is settled
// only after a terminal task status is durably written; if the write
// fails the message stays on the queue and redelivery retries the whole
// task, which is safe because PutTask is an upsert.
func (p *Pool) handle(ctx context.Context, delivery workqueue.Delivery) {
	msg := delivery.Message
	ctx = logctx.WithSnapshot(logctx.WithJob(ctx, msg.JobID), msg.SnapshotID)
	log := logctx.FromContext(ctx)

	task := jobstore.Task{
		JobID:      msg.JobID,
		SnapshotID: msg.SnapshotID,
		Status:     jobstore.TaskInProgress,
		UpdatedAt:  p.now(),
	}
	if err := p.store.PutTask(ctx, task); err != nil {
		log.Error().Err(err).Msg("mark task in progress failed, leaving for redelivery")
		return
	}

	result, attempts, err := p.evaluateWithRetry(ctx, msg)
	task.Attempts = attempts
	task.UpdatedAt = p.now()
	if err != nil {
		task.Status = jobstore.TaskFailed
		task.LastError = failureReason(err)
		log.Warn().Err(err).Int("attempts", attempts).Msg("task failed")
	} else {
		task.Status = jobstore.TaskSucceeded
		task.Result = &result
		log.Info().Int("attempts", attempts).Int64("unique_bytes", result.UniqueSizeBytes).Msg("task succeeded")
	}

	if err := p.store.PutTask(ctx, task); err != nil {
		log.Error().Err(err).Msg("persist task result failed, leaving for redelivery")
		return
	}

	if err := p.queue.Delete(ctx, delivery); err != nil {
		// Result is durable; a redelivery will rewrite the same terminal
		// state, so this is log-only.
		log.Warn().Err(err).Msg("settle delivery failed")
	}
}

// evaluateWithRetry runs the chain-resolve + evaluate sequence, retrying
// transient failures with exponential backoff up to the attempt budget.
// Terminal failures return immediately.
func (p *Pool) evaluateWithRetry(ctx context.Context, msg workqueue.TaskMessage) (evaluate.Result, int, error) {
	log := logctx.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt - 1)
			log.Debug().Int("attempt", attempt).Dur("backoff", delay).Msg("retrying after transient failure")
			if !sleep(ctx, delay) {
				return evaluate.Result{}, attempt - 1, ctx.Err()
			}
		}

		cc, err := p.resolver.ResolveID(ctx, msg.SnapshotID)
		if err != nil {
			if ebsapi.IsTransient(err) {
				lastErr = err
				continue
			}
			return evaluate.Result{}, attempt, err
		}

		result, err := p.eval.Evaluate(ctx, cc, msg.Prices)
		if err != nil {
			if ebsapi.IsTransient(err) {
				lastErr = err
				continue
			}
			return evaluate.Result{}, attempt, err
		}

		return result, attempt, nil
	}

	return evaluate.Result{}, p.cfg.MaxAttempts, lastErr
}

func (p *Pool) backoff(retries int) time.Duration {
	delay := p.cfg.BaseBackoff << (retries - 1)
	if delay > p.cfg.MaxBackoff {
		delay = p.cfg.MaxBackoff
	}
	// Full jitter keeps a burst of throttled workers from retrying in
	// lockstep.
	return time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
}

// failureReason renders the stored task failure in taxonomy terms.
func failureReason(err error) string {
	switch {
	case ebsapi.IsTransient(err):
		return "TransientRemoteFailure: " + err.Error()
	case errors.Is(err, chain.ErrSourceVolumeNotFound):
		return "SourceVolumeNotFound: " + err.Error()
	case errors.Is(err, chain.ErrTargetNotInChain), errors.Is(err, ebsapi.ErrSnapshotNotFound):
		return "ChainResolutionFailure: " + err.Error()
	default:
		return err.Error()
	}
}

// sleep waits for d or until ctx is done; reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
