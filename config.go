package sculpt

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a Manager. The zero value is valid:
// every getter falls back from the configured value to an environment
// variable and then to a built-in default.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Relight   RelightConfig   `yaml:"relight"`
	History   HistoryConfig   `yaml:"history"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// PipelineConfig tunes the edit pipeline.
type PipelineConfig struct {
	// DeferPostCommit moves post-commit processors off the applying
	// goroutine onto a background worker.
	DeferPostCommit bool `yaml:"defer_post_commit"`

	// WatchdogBlocks is how many block writes pass between watchdog
	// ticks during a commit.
	WatchdogBlocks int `yaml:"watchdog_blocks"`
}

// RelightConfig tunes the relight engine.
type RelightConfig struct {
	// Workers is the size of the relight worker pool.
	Workers int `yaml:"workers"`
}

// HistoryConfig tunes the history journal.
type HistoryConfig struct {
	// Enabled turns on disk persistence of change sets.
	Enabled bool `yaml:"enabled"`

	// Path is the journal store directory.
	Path string `yaml:"path"`
}

// SchedulerConfig tunes the built-in tick scheduler used by platforms that
// embed BasePlatform.
type SchedulerConfig struct {
	// TickIntervalMS is the tick length in milliseconds.
	TickIntervalMS int `yaml:"tick_interval_ms"`
}

// GetWatchdogBlocks returns the watchdog tick stride with fallback
// precedence config, env SCULPT_WATCHDOG_BLOCKS, default 4096.
func (p PipelineConfig) GetWatchdogBlocks() int {
	return getIntWithEnvFallback(p.WatchdogBlocks, "SCULPT_WATCHDOG_BLOCKS", 4096)
}

// GetWorkers returns the relight pool size with fallback precedence config,
// env SCULPT_RELIGHT_WORKERS, default 2.
func (r RelightConfig) GetWorkers() int {
	return getIntWithEnvFallback(r.Workers, "SCULPT_RELIGHT_WORKERS", 2)
}

// GetPath returns the journal directory with fallback precedence config,
// env SCULPT_HISTORY_PATH, default "sculpt-history".
func (h HistoryConfig) GetPath() string {
	if h.Path != "" {
		return h.Path
	}
	if v := os.Getenv("SCULPT_HISTORY_PATH"); v != "" {
		return v
	}
	return "sculpt-history"
}

// GetTickInterval returns the tick length with fallback precedence config,
// env SCULPT_TICK_INTERVAL_MS, default 50ms. Hosts without a game loop pass
// it to TickScheduler.Start.
func (s SchedulerConfig) GetTickInterval() time.Duration {
	ms := getIntWithEnvFallback(s.TickIntervalMS, "SCULPT_TICK_INTERVAL_MS", 50)
	return time.Duration(ms) * time.Millisecond
}

// getIntWithEnvFallback resolves an integer setting with priority
// config, env, default. Non-positive configured values count as unset.
func getIntWithEnvFallback(configured int, envVar string, def int) int {
	if configured > 0 {
		return configured
	}
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// LoadConfig reads a YAML config file. An empty path falls back to the
// SCULPT_CONFIG environment variable; when that is unset too, it returns
// (nil, nil) and the caller proceeds with defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SCULPT_CONFIG")
		if path == "" {
			return nil, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sculpt: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sculpt: parse config %s: %w", path, err)
	}
	return &cfg, nil
}
