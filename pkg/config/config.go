// Package config gathers the host-tunable knobs every corestate
// component accepts at construction into one struct, registered as
// pflag flags and overridable by an optional YAML file. Grounded on
// the teacher's cmd/warren/main.go flag wiring (pflag-backed cobra
// commands register one flag per tunable with an inline default) and
// its pkg/deploy YAML manifest loading for the file-override path.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/corestate/pkg/log"
	"github.com/cuemby/corestate/pkg/memory"
	"github.com/cuemby/corestate/pkg/metrics"
	"github.com/cuemby/corestate/pkg/pathindex"
	"github.com/cuemby/corestate/pkg/snapshot"
)

// Config bundles every component's tunables, each defaulting to that
// component's own package constant.
type Config struct {
	PathCacheCeiling  int     `yaml:"path_cache_ceiling"`
	MaxSnapshots      int     `yaml:"max_snapshots"`
	SnapshotDBPath    string  `yaml:"snapshot_db_path"`
	GlobalMemoryLimit int     `yaml:"global_memory_limit"`
	GCThresholdPct    float64 `yaml:"gc_threshold_pct"`

	AlertExecutionTimeMs  float64 `yaml:"alert_execution_time_ms"`
	AlertMemoryPressure   float64 `yaml:"alert_memory_pressure_pct"`
	AlertErrorRate        float64 `yaml:"alert_error_rate_pct"`
	AlertCPUUtilization   float64 `yaml:"alert_cpu_utilization_pct"`

	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a Config with every field set to its owning
// component's package default.
func Default() Config {
	th := metrics.DefaultThresholds()
	return Config{
		PathCacheCeiling:  pathindex.DefaultCeiling,
		MaxSnapshots:      snapshot.DefaultMaxSnapshots,
		GlobalMemoryLimit: memory.DefaultGlobalLimit,
		GCThresholdPct:    memory.DefaultGCThreshold,

		AlertExecutionTimeMs: th.ExecutionTimeMs,
		AlertMemoryPressure:  th.MemoryPressurePct,
		AlertErrorRate:       th.ErrorRatePct,
		AlertCPUUtilization:  th.CPUUtilizationPct,

		LogLevel: string(log.InfoLevel),
		LogJSON:  false,

		MetricsAddr: "127.0.0.1:9090",
	}
}

// RegisterFlags binds cfg's fields to fs, pre-seeded with cfg's current
// values as defaults. Call after LoadFile (if used) so CLI flags take
// precedence over a config file's values, matching cobra's usual
// file-then-flags precedence order.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.PathCacheCeiling, "path-cache-ceiling", c.PathCacheCeiling, "maximum cached path tokenizations, shared by every store")
	fs.IntVar(&c.MaxSnapshots, "max-snapshots", c.MaxSnapshots, "retained snapshot count, all stores counted together, before oldest-first eviction")
	fs.StringVar(&c.SnapshotDBPath, "snapshot-db", c.SnapshotDBPath, "bbolt file for durable snapshot storage (empty disables durability)")
	fs.IntVar(&c.GlobalMemoryLimit, "global-memory-limit", c.GlobalMemoryLimit, "total bytes allocatable across all container memory pools")
	fs.Float64Var(&c.GCThresholdPct, "gc-threshold", c.GCThresholdPct, "global allocation percentage that triggers an automatic GC sweep")

	fs.Float64Var(&c.AlertExecutionTimeMs, "alert-execution-time-ms", c.AlertExecutionTimeMs, "execution time alert threshold in milliseconds")
	fs.Float64Var(&c.AlertMemoryPressure, "alert-memory-pressure", c.AlertMemoryPressure, "memory pressure alert threshold percentage")
	fs.Float64Var(&c.AlertErrorRate, "alert-error-rate", c.AlertErrorRate, "error rate alert threshold percentage")
	fs.Float64Var(&c.AlertCPUUtilization, "alert-cpu-utilization", c.AlertCPUUtilization, "CPU utilization alert threshold percentage")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "output logs in JSON format")

	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address for the Prometheus /metrics and health endpoints")
}

// LoadFile overlays YAML fields from path onto a base Config (typically
// Default()), returning the merged result. A missing path is not an
// error — hosts that never pass --config run entirely on defaults and
// flags.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("reading config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Thresholds extracts the metrics alert thresholds in the shape
// pkg/metrics.Collector expects.
func (c Config) Thresholds() metrics.Thresholds {
	return metrics.Thresholds{
		ExecutionTimeMs:   c.AlertExecutionTimeMs,
		MemoryPressurePct: c.AlertMemoryPressure,
		ErrorRatePct:      c.AlertErrorRate,
		CPUUtilizationPct: c.AlertCPUUtilization,
	}
}
