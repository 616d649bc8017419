package cli

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/chain"
	"github.com/eunmann/snapcost/pkg/diffcache"
	"github.com/eunmann/snapcost/pkg/ebsapi"
	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/report"
)

// runEval evaluates one snapshot ad hoc and prints a summary report,
// without any job bookkeeping.
func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	snapshotID := fs.String("snapshot", "", "target snapshot id (required)")
	region := fs.String("region", "", "AWS region (default: ambient config)")
	defaultPrices := fs.Bool("default-prices", false, "use built-in us-east-1 prices instead of the pricing service")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *snapshotID == "" {
		return errors.New("-snapshot is required")
	}

	ctx, cfg, err := common.setup(ctx)
	if err != nil {
		return err
	}
	if *region != "" {
		cfg.Region = *region
	}

	awsCfg, err := loadAWS(ctx, cfg.Region)
	if err != nil {
		return err
	}

	priceResolver, err := newPriceResolver(awsCfg, cfg, *defaultPrices)
	if err != nil {
		return err
	}
	prices, err := priceResolver.Resolve(ctx)
	if err != nil {
		return err
	}

	clients := newAWSClients(awsCfg)
	inventory := ebsapi.NewInventory(clients.ec2)
	blocks := ebsapi.NewBlocks(clients.ebs)
	diffs := diffcache.NewReadThrough(newDiffCache(awsCfg, cfg), blocks)

	ctx = logctx.WithSnapshot(ctx, *snapshotID)
	cc, err := chain.NewResolver(inventory).ResolveID(ctx, *snapshotID)
	if err != nil {
		return err
	}

	result, err := evaluate.New(blocks, diffs).Evaluate(ctx, cc, prices)
	if err != nil {
		return err
	}

	report.WriteSummary(os.Stdout, result)
	return nil
}
