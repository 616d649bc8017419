// Package config loads snapcost runtime configuration from an optional
// YAML file with environment-variable fallbacks for the AWS resource
// names.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/snapcost/pkg/snapshot"
)

// Config is the full runtime configuration. Zero values mean "use the
// component default" (worker concurrency, poll interval, cache TTL) or
// "feature off" (empty queue URL selects single-process mode; empty
// bucket selects the local report directory).
type Config struct {
	// Region overrides the ambient AWS region.
	Region string `yaml:"region"`

	// QueueURL is the SQS work queue. Empty selects the in-process
	// queue, which also runs the worker pool inside the run command.
	QueueURL string `yaml:"queue_url"`

	// JobTable and TaskTable are the DynamoDB job tracking tables.
	// Empty selects the in-memory store (single-process mode only).
	JobTable  string `yaml:"job_table"`
	TaskTable string `yaml:"task_table"`

	// DiffCacheTable is the DynamoDB block-diff cache table. Empty
	// selects the in-memory cache.
	DiffCacheTable string `yaml:"diff_cache_table"`

	// ReportBucket/ReportPrefix select the S3 report sink; when the
	// bucket is empty reports land in ReportDir (default ".").
	ReportBucket string `yaml:"report_bucket"`
	ReportPrefix string `yaml:"report_prefix"`
	ReportDir    string `yaml:"report_dir"`

	// PriceTablePath, when set, loads tier prices from a JSON file
	// instead of the AWS Pricing service.
	PriceTablePath string `yaml:"price_table"`

	// SnapshotFilter overrides the default job scope (completed,
	// standard-tier, owned by this account).
	SnapshotFilter snapshot.Filter `yaml:"snapshot_filter"`

	Concurrency  int           `yaml:"concurrency"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	// ListenAddr is the status API bind address (default ":8080").
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads the YAML file at path (skipped when path is empty) and
// applies environment fallbacks.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills empty fields from the environment. The variable names
// match the ones the deployed evaluation stack injects.
func (c *Config) applyEnv() {
	fromEnv(&c.QueueURL, "SQS_QUEUE_URL")
	fromEnv(&c.JobTable, "DDB_JOB_TRACKING")
	fromEnv(&c.TaskTable, "DDB_EVAL_RESULTS")
	fromEnv(&c.DiffCacheTable, "DDB_DIFF_CACHE")
	fromEnv(&c.ReportBucket, "S3_BUCKET_NAME")
	fromEnv(&c.Region, "AWS_REGION")
}

func fromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}
