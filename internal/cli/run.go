package cli

import (
	"context"
	"flag"
	"time"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/chain"
	"github.com/eunmann/snapcost/pkg/diffcache"
	"github.com/eunmann/snapcost/pkg/ebsapi"
	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/orchestrate"
	"github.com/eunmann/snapcost/pkg/report"
	"github.com/eunmann/snapcost/pkg/worker"
)

// runJob starts an evaluation job and drives the orchestrator to
// completion. With no queue URL configured it runs in single-process
// mode: an in-memory queue and an embedded worker pool alongside the
// orchestrator.
func runJob(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	var filter filterFlag
	fs.Var(&filter, "filter", "snapshot filter name=value[,value...] (repeatable; default: status=completed, storage-tier=standard)")
	region := fs.String("region", "", "AWS region (default: ambient config)")
	defaultPrices := fs.Bool("default-prices", false, "use built-in us-east-1 prices instead of the pricing service")
	poll := fs.Duration("poll", 0, "status poll interval (default 60s; 2s in single-process mode)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cfg, err := common.setup(ctx)
	if err != nil {
		return err
	}
	if *region != "" {
		cfg.Region = *region
	}
	if *poll > 0 {
		cfg.PollInterval = *poll
	}
	if filter.filter != nil {
		cfg.SnapshotFilter = filter.filter
	}

	singleProcess := cfg.QueueURL == ""
	if cfg.PollInterval <= 0 && singleProcess {
		// In-process workers finish fast; the 60s production default
		// would just stretch small runs.
		cfg.PollInterval = 2 * time.Second
	}

	awsCfg, err := loadAWS(ctx, cfg.Region)
	if err != nil {
		return err
	}

	clients := newAWSClients(awsCfg)
	inventory := ebsapi.NewInventory(clients.ec2)
	store := newStore(awsCfg, cfg)
	queue := newQueue(awsCfg, cfg)

	priceResolver, err := newPriceResolver(awsCfg, cfg, *defaultPrices)
	if err != nil {
		return err
	}

	consolidator := report.NewConsolidator(store, newSink(awsCfg, cfg))
	orch := orchestrate.New(priceResolver, inventory, store, queue, consolidator, orchestrate.Config{
		PollInterval: cfg.PollInterval,
		Filter:       cfg.SnapshotFilter,
	})

	log := logctx.FromContext(ctx)
	log.Info().Str("job_id", orch.JobID()).Bool("single_process", singleProcess).Msg("starting evaluation job")
	ctx = logctx.WithJob(ctx, orch.JobID())

	if singleProcess {
		workerCtx, stopWorkers := context.WithCancel(ctx)

		blocks := ebsapi.NewBlocks(clients.ebs)
		diffs := diffcache.NewReadThrough(newDiffCache(awsCfg, cfg), blocks)
		pool := worker.New(queue, store, chain.NewResolver(inventory), evaluate.New(blocks, diffs), worker.Config{
			Concurrency: cfg.Concurrency,
			MaxAttempts: cfg.MaxAttempts,
		})

		poolDone := make(chan struct{})
		go func() {
			defer close(poolDone)
			_ = pool.Run(workerCtx)
		}()
		defer func() {
			stopWorkers()
			<-poolDone
		}()
	}

	return orch.Run(ctx)
}
