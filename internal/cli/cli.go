// Package cli implements the command-line interface for snapcost.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ebs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	pricingsvc "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/eunmann/snapcost/internal/config"
	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/pkg/diffcache"
	"github.com/eunmann/snapcost/pkg/jobstore"
	"github.com/eunmann/snapcost/pkg/logging"
	"github.com/eunmann/snapcost/pkg/orchestrate"
	"github.com/eunmann/snapcost/pkg/pricing"
	"github.com/eunmann/snapcost/pkg/report"
	"github.com/eunmann/snapcost/pkg/snapshot"
	"github.com/eunmann/snapcost/pkg/workqueue"
)

const usage = `usage: snapcost <command> [options]
commands:
  run     start an evaluation job and drive it to completion
  work    run a worker pool against the work queue
  eval    evaluate a single snapshot ad hoc
  status  show job and task counts for a job id
  serve   expose the read-only status API over HTTP`

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "run":
		return runJob(ctx, args[1:])
	case "work":
		return runWorkers(ctx, args[1:])
	case "eval":
		return runEval(ctx, args[1:])
	case "status":
		return runStatus(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath string
	debug      bool
	human      bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to YAML config file")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&c.human, "human", false, "human-friendly console log output")
}

// setup parses config and initializes logging; returned context carries
// the base logger.
func (c *commonFlags) setup(ctx context.Context) (context.Context, config.Config, error) {
	logging.Init(c.debug, c.human)
	logctx.SetDefaultLogger(*logging.L())

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return ctx, config.Config{}, err
	}
	return logctx.WithLogger(ctx, *logging.L()), cfg, nil
}

// filterFlag accumulates repeated -filter name=value[,value...] options
// into a snapshot filter.
type filterFlag struct {
	filter snapshot.Filter
}

func (f *filterFlag) String() string {
	if f.filter == nil {
		return ""
	}
	parts := make([]string, 0, len(f.filter))
	for _, name := range f.filter.Names() {
		parts = append(parts, name+"="+strings.Join(f.filter[name], ","))
	}
	return strings.Join(parts, " ")
}

func (f *filterFlag) Set(value string) error {
	name, values, ok := strings.Cut(value, "=")
	if !ok || name == "" || values == "" {
		return fmt.Errorf("filter %q: want name=value[,value...]", value)
	}
	if f.filter == nil {
		f.filter = snapshot.Filter{}
	}
	f.filter[name] = strings.Split(values, ",")
	return nil
}

func loadAWS(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

func newStore(awsCfg aws.Config, cfg config.Config) jobstore.Store {
	if cfg.JobTable != "" && cfg.TaskTable != "" {
		return jobstore.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.JobTable, cfg.TaskTable)
	}
	return jobstore.NewMemory()
}

func newQueue(awsCfg aws.Config, cfg config.Config) workqueue.Queue {
	if cfg.QueueURL != "" {
		return workqueue.NewSQS(sqs.NewFromConfig(awsCfg), cfg.QueueURL)
	}
	return workqueue.NewMemory(0)
}

func newDiffCache(awsCfg aws.Config, cfg config.Config) diffcache.Cache {
	if cfg.DiffCacheTable != "" {
		return diffcache.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.DiffCacheTable, cfg.CacheTTL)
	}
	return diffcache.NewMemory(cfg.CacheTTL)
}

func newSink(awsCfg aws.Config, cfg config.Config) report.Sink {
	if cfg.ReportBucket != "" {
		return report.NewS3Sink(s3.NewFromConfig(awsCfg), cfg.ReportBucket, cfg.ReportPrefix)
	}
	dir := cfg.ReportDir
	if dir == "" {
		dir = "."
	}
	return report.DirSink{Dir: dir}
}

// newPriceResolver picks the price source: a JSON price table when
// configured, the built-in us-east-1 defaults when asked for, otherwise
// the AWS Pricing service (which is only served out of us-east-1,
// whatever region is being priced).
func newPriceResolver(awsCfg aws.Config, cfg config.Config, useDefaults bool) (orchestrate.PriceResolver, error) {
	if cfg.PriceTablePath != "" {
		prices, err := pricing.LoadPrices(cfg.PriceTablePath)
		if err != nil {
			return nil, err
		}
		return pricing.Static{Prices: prices}, nil
	}
	if useDefaults {
		return pricing.Static{Prices: pricing.DefaultUSEast1Prices()}, nil
	}

	api := pricingsvc.NewFromConfig(awsCfg, func(o *pricingsvc.Options) {
		o.Region = "us-east-1"
	})
	return pricing.NewResolver(api, awsCfg.Region), nil
}

// awsClients bundles the collaborator clients a worker needs.
type awsClients struct {
	ec2 *ec2.Client
	ebs *ebs.Client
}

func newAWSClients(awsCfg aws.Config) awsClients {
	return awsClients{
		ec2: ec2.NewFromConfig(awsCfg),
		ebs: ebs.NewFromConfig(awsCfg),
	}
}
