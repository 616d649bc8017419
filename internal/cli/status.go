package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"

	"github.com/eunmann/snapcost/internal/logctx"
	"github.com/eunmann/snapcost/internal/statusapi"
	"github.com/eunmann/snapcost/pkg/jobstore"
)

// runStatus prints the job record and aggregate task counts for a job
// id as JSON.
func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	region := fs.String("region", "", "AWS region (default: ambient config)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: snapcost status [options] <job-id>")
	}
	jobID := fs.Arg(0)

	ctx, cfg, err := common.setup(ctx)
	if err != nil {
		return err
	}
	if *region != "" {
		cfg.Region = *region
	}
	if cfg.JobTable == "" || cfg.TaskTable == "" {
		return errors.New("status requires job tracking tables (config job_table/task_table or DDB_JOB_TRACKING/DDB_EVAL_RESULTS)")
	}

	awsCfg, err := loadAWS(ctx, cfg.Region)
	if err != nil {
		return err
	}
	store := newStore(awsCfg, cfg)

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	counts, err := store.Counts(ctx, jobID)
	if err != nil {
		return err
	}

	out := struct {
		Job    jobstore.Job    `json:"job"`
		Counts jobstore.Counts `json:"counts"`
	}{Job: job, Counts: counts}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// runServe exposes the read-only status API over HTTP.
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	region := fs.String("region", "", "AWS region (default: ambient config)")
	listen := fs.String("listen", "", "bind address (default :8080)")

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
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.JobTable == "" || cfg.TaskTable == "" {
		return errors.New("serve requires job tracking tables (config job_table/task_table or DDB_JOB_TRACKING/DDB_EVAL_RESULTS)")
	}

	awsCfg, err := loadAWS(ctx, cfg.Region)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: statusapi.New(newStore(awsCfg, cfg)).Router(),
	}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log := logctx.FromContext(ctx)
	log.Info().Str("listen", cfg.ListenAddr).Msg("status API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
