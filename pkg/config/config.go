// Package config loads warrendb's engine configuration from YAML
// (§6 option table), following the teacher's flat Config struct plus
// Init/Load convention.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/scheduler"
	"github.com/cuemby/warrendb/pkg/types"
)

// StorageSection configures the KV backbone (spec §4.1/§6 "storage.*").
type StorageSection struct {
	DBPath                string   `yaml:"db_path"`
	MemtableSizeMB         int      `yaml:"memtable_size_mb"`
	BlockCacheSizeMB       int      `yaml:"block_cache_size_mb"`
	WALDir                 string   `yaml:"wal_dir"`
	DBPaths                []string `yaml:"db_paths"`
	CompressionDefault     string   `yaml:"compression_default"`
	CompressionBottommost  string   `yaml:"compression_bottommost"`
	BloomBitsPerKey        int      `yaml:"bloom_bits_per_key"`
	PartitionFilters       bool     `yaml:"partition_filters"`
}

// VectorIndexSection configures vector collections to initialize at
// startup (spec §4.3/§6 "vector_index.*").
type VectorIndexSection struct {
	Collections []types.VectorConfig `yaml:"collections"`
}

// TimeseriesSection configures the time-series store's retention and
// rollup schedule (spec §4.4/§6 "timeseries.*").
type TimeseriesSection struct {
	RetentionHours   int                       `yaml:"retention_hours"`
	ContinuousAggs   []scheduler.AggregateJob  `yaml:"continuous_aggregates"`
}

// CDCSection configures the change log's retention schedule (spec
// §4.5/§6 "cdc.*").
type CDCSection struct {
	RetentionKeep uint64 `yaml:"retention_keep"`
}

// QuerySection configures the query engine's optimizer defaults (spec
// §5/§6 "query.*").
type QuerySection struct {
	MaxSampleProbe   int   `yaml:"max_sample_probe"`
	AllowFullScan    bool  `yaml:"allow_full_scan"`
	CTEBudgetBytes   int64 `yaml:"cte_budget_bytes"`
}

// SchedulerSection configures the background maintenance loop's
// cadence.
type SchedulerSection struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Config is the top-level document loaded from a warrendb.yaml file.
type Config struct {
	Storage     StorageSection     `yaml:"storage"`
	VectorIndex VectorIndexSection `yaml:"vector_index"`
	Timeseries  TimeseriesSection  `yaml:"timeseries"`
	CDC         CDCSection         `yaml:"cdc"`
	Query       QuerySection       `yaml:"query"`
	Scheduler   SchedulerSection   `yaml:"scheduler"`
}

// Default returns the spec's documented defaults for a store rooted at
// path.
func Default(path string) Config {
	kvDefault := kv.DefaultConfig(path)
	return Config{
		Storage: StorageSection{
			DBPath:                path,
			MemtableSizeMB:        kvDefault.MemtableSizeMB,
			BlockCacheSizeMB:      kvDefault.BlockCacheSizeMB,
			CompressionDefault:    string(kvDefault.CompressionDefault),
			CompressionBottommost: string(kvDefault.CompressionBottommost),
			BloomBitsPerKey:       kvDefault.BloomBitsPerKey,
			PartitionFilters:      kvDefault.PartitionFilters,
		},
		Query: QuerySection{
			MaxSampleProbe: 1000,
			AllowFullScan:  false,
		},
		Scheduler: SchedulerSection{IntervalSeconds: 5},
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// EngineConfig projects the storage and query sections into the
// engine.Config New expects.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		StorePath:        c.Storage.DBPath,
		MaxSampleProbe:   c.Query.MaxSampleProbe,
		AllowFullScanDef: c.Query.AllowFullScan,
		CTEBudgetBytes:   c.Query.CTEBudgetBytes,
	}
}

// SchedulerConfig projects the timeseries/cdc/scheduler sections into
// the scheduler.Config NewScheduler expects.
func (c Config) SchedulerConfig() scheduler.Config {
	var tsRetention int64
	if c.Timeseries.RetentionHours > 0 {
		tsRetention = int64(c.Timeseries.RetentionHours)
	}
	interval := time.Duration(c.Scheduler.IntervalSeconds) * time.Second
	return scheduler.Config{
		Interval:          interval,
		TSRetention:       time.Duration(tsRetention) * time.Hour,
		CDCRetentionKeep:  c.CDC.RetentionKeep,
		ContinuousAggJobs: c.Timeseries.ContinuousAggs,
	}
}
