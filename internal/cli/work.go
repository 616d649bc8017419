package cli

import (
	"context"
	"errors"
	"flag"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/chain"
	"github.com/eunmann/snapcost/pkg/diffcache"
	"github.com/eunmann/snapcost/pkg/ebsapi"
	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/worker"
)

// runWorkers runs a standalone worker pool against the configured SQS
// queue and DynamoDB tables until interrupted. This is the process shape
// for distributed runs: one `snapcost run` orchestrator, any number of
// `snapcost work` processes.
func runWorkers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("work", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	region := fs.String("region", "", "AWS region (default: ambient config)")
	concurrency := fs.Int("concurrency", 0, "simultaneous evaluations (default 12)")

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
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}

	if cfg.QueueURL == "" {
		return errors.New("work requires a queue URL (config queue_url or SQS_QUEUE_URL)")
	}
	if cfg.JobTable == "" || cfg.TaskTable == "" {
		return errors.New("work requires job tracking tables (config job_table/task_table or DDB_JOB_TRACKING/DDB_EVAL_RESULTS)")
	}

	awsCfg, err := loadAWS(ctx, cfg.Region)
	if err != nil {
		return err
	}

	clients := newAWSClients(awsCfg)
	inventory := ebsapi.NewInventory(clients.ec2)
	blocks := ebsapi.NewBlocks(clients.ebs)
	diffs := diffcache.NewReadThrough(newDiffCache(awsCfg, cfg), blocks)

	pool := worker.New(
		newQueue(awsCfg, cfg),
		newStore(awsCfg, cfg),
		chain.NewResolver(inventory),
		evaluate.New(blocks, diffs),
		worker.Config{
			Concurrency: cfg.Concurrency,
			MaxAttempts: cfg.MaxAttempts,
		},
	)

	log := logctx.FromContext(ctx)
	log.Info().Int("concurrency", cfg.Concurrency).Msg("worker pool starting")
	return pool.Run(ctx)
}
