// Package config handles loading and managing configuration for lazytask.
// It supports loading from YAML files, environment variables, and hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for lazytask.
type Config struct {
	Taskwarrior TaskwarriorConfig `yaml:"taskwarrior"`
	Cache       CacheConfig       `yaml:"cache"`
	Sync        SyncConfig        `yaml:"sync"`
	Reports     ReportsConfig     `yaml:"reports"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	UI          UIConfig          `yaml:"ui"`
}

// TaskwarriorConfig describes how to reach the task store.
type TaskwarriorConfig struct {
	// Binary is the task executable name or path
	Binary string `yaml:"binary"`

	// TaskRC overrides the taskrc file (TASKRC)
	TaskRC string `yaml:"taskrc"`

	// DataLocation overrides the data directory (TASKDATA)
	DataLocation string `yaml:"data_location"`

	// DirectRead enables reading the TaskChampion database directly
	DirectRead bool `yaml:"direct_read"`

	// CommandTimeout bounds a single task invocation
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// MutationTimeout bounds a mutation including the re-read that follows it
	MutationTimeout time.Duration `yaml:"mutation_timeout"`

	// Retries is the number of extra attempts for failing reads
	Retries int `yaml:"retries"`

	// RetryBackoff is the delay before the first retry; it doubles each time
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// StalenessThreshold is how far direct reads may lag behind a mutation
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

// CacheConfig controls the report cache.
type CacheConfig struct {
	// TTL expires cached reports even without a data change (0 = never)
	TTL time.Duration `yaml:"ttl"`

	// ActivityTTL expires reports that depend on the clock
	ActivityTTL time.Duration `yaml:"activity_ttl"`
}

// SyncConfig controls the background sync loop.
type SyncConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`

	// FailureNotifyThreshold is the number of consecutive failures that
	// triggers a desktop notification (0 disables)
	FailureNotifyThreshold int `yaml:"failure_notify_threshold"`
}

// ReportsConfig parameterises the aggregate reports.
type ReportsConfig struct {
	BurndownDays   int           `yaml:"burndown_days"`
	ActivityWindow time.Duration `yaml:"activity_window"`
	ActivityLimit  int           `yaml:"activity_limit"`
}

// RedisConfig controls the status mirror.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	Console    bool   `yaml:"console"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// UIConfig holds TUI settings.
type UIConfig struct {
	// RefreshInterval is how often the TUI re-reads the store for outside changes
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// DefaultFilter is the filter expression the task list opens with
	DefaultFilter string `yaml:"default_filter"`

	// DefaultReport is the report shown in the side panel
	DefaultReport string `yaml:"default_report"`
}

// Default configuration values
const (
	DefaultBinary                 = "task"
	DefaultCommandTimeout         = 10 * time.Second
	DefaultMutationTimeout        = 30 * time.Second
	DefaultRetries                = 2
	DefaultRetryBackoff           = 250 * time.Millisecond
	DefaultStalenessThreshold     = 2 * time.Second
	DefaultCacheTTL               = 0
	DefaultActivityTTL            = time.Minute
	DefaultSyncEnabled            = false
	DefaultSyncInterval           = 5 * time.Minute
	DefaultSyncTimeout            = 2 * time.Minute
	DefaultFailureNotifyThreshold = 3
	DefaultBurndownDays           = 30
	DefaultActivityWindow         = 7 * 24 * time.Hour
	DefaultActivityLimit          = 50
	DefaultRedisURL               = "redis://localhost:6379"
	DefaultLogLevel               = "info"
	DefaultRefreshInterval        = 30 * time.Second
	DefaultFilter                 = "status:pending"
	DefaultReport                 = "summary"
)

var (
	globalConfig *Config
	configOnce   sync.Once
	configErr    error
)

// Get returns the global configuration, loading it if necessary.
// This function is safe for concurrent use.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, configErr = Load()
	})
	return globalConfig, configErr
}

// MustGet returns the global configuration, panicking if loading fails.
func MustGet() *Config {
	cfg, err := Get()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	return cfg
}

// Defaults returns a Config populated with the hardcoded defaults.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Taskwarrior: TaskwarriorConfig{
			Binary:             DefaultBinary,
			DirectRead:         true,
			CommandTimeout:     DefaultCommandTimeout,
			MutationTimeout:    DefaultMutationTimeout,
			Retries:            DefaultRetries,
			RetryBackoff:       DefaultRetryBackoff,
			StalenessThreshold: DefaultStalenessThreshold,
		},
		Cache: CacheConfig{
			TTL:         DefaultCacheTTL,
			ActivityTTL: DefaultActivityTTL,
		},
		Sync: SyncConfig{
			Enabled:                DefaultSyncEnabled,
			Interval:               DefaultSyncInterval,
			Timeout:                DefaultSyncTimeout,
			FailureNotifyThreshold: DefaultFailureNotifyThreshold,
		},
		Reports: ReportsConfig{
			BurndownDays:   DefaultBurndownDays,
			ActivityWindow: DefaultActivityWindow,
			ActivityLimit:  DefaultActivityLimit,
		},
		Redis: RedisConfig{
			URL: DefaultRedisURL,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			File:       filepath.Join(home, ".cache", "lazytask", "lazytask.log"),
			JSON:       true,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		UI: UIConfig{
			RefreshInterval: DefaultRefreshInterval,
			DefaultFilter:   DefaultFilter,
			DefaultReport:   DefaultReport,
		},
	}
}

// Load reads configuration from files and environment variables.
// Priority (highest to lowest):
// 1. Environment variables
// 2. ~/.config/lazytask/config.yml
// 3. ~/.config/lazytask/config.yaml
// 4. ~/.lazytask.yaml
// 5. Hardcoded defaults
func Load() (*Config, error) {
	cfg := Defaults()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		paths := []string{
			filepath.Join(homeDir, ".lazytask.yaml"),
			filepath.Join(homeDir, ".config", "lazytask", "config.yaml"),
			filepath.Join(homeDir, ".config", "lazytask", "config.yml"),
		}
		for _, p := range paths {
			if err := cfg.mergeFile(p); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()
	return cfg, cfg.Validate()
}

// LoadFile reads a single config file on top of the defaults and applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.expandPaths()
	return cfg, cfg.Validate()
}

func (c *Config) expandPaths() {
	c.Taskwarrior.TaskRC = ExpandHome(c.Taskwarrior.TaskRC)
	c.Taskwarrior.DataLocation = ExpandHome(c.Taskwarrior.DataLocation)
	c.Logging.File = ExpandHome(c.Logging.File)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.Taskwarrior.Binary == "":
		return fmt.Errorf("taskwarrior.binary must not be empty")
	case c.Taskwarrior.CommandTimeout <= 0:
		return fmt.Errorf("taskwarrior.command_timeout must be positive")
	case c.Taskwarrior.Retries < 0:
		return fmt.Errorf("taskwarrior.retries must not be negative")
	case c.Sync.Enabled && c.Sync.Interval < 0:
		return fmt.Errorf("sync.interval must not be negative")
	case c.Reports.BurndownDays < 0 || c.Reports.BurndownDays > 366:
		return fmt.Errorf("reports.burndown_days must be between 0 and 366")
	case c.Cache.TTL < 0 || c.Cache.ActivityTTL < 0:
		return fmt.Errorf("cache TTLs must not be negative")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	// Taskwarrior
	if val := os.Getenv("LAZYTASK_TASK_BIN"); val != "" {
		c.Taskwarrior.Binary = val
	}
	if val := os.Getenv("TASKRC"); val != "" {
		c.Taskwarrior.TaskRC = val
	}
	if val := os.Getenv("TASKDATA"); val != "" {
		c.Taskwarrior.DataLocation = val
	}
	if val := os.Getenv("LAZYTASK_DIRECT_READ"); val != "" {
		c.Taskwarrior.DirectRead = parseBool(val)
	}
	if d, ok := envDuration("LAZYTASK_COMMAND_TIMEOUT"); ok {
		c.Taskwarrior.CommandTimeout = d
	}
	if val := os.Getenv("LAZYTASK_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Taskwarrior.Retries = n
		}
	}

	// Cache
	if d, ok := envDuration("LAZYTASK_CACHE_TTL"); ok {
		c.Cache.TTL = d
	}

	// Sync
	if val := os.Getenv("LAZYTASK_SYNC_ENABLED"); val != "" {
		c.Sync.Enabled = parseBool(val)
	}
	if d, ok := envDuration("LAZYTASK_SYNC_INTERVAL"); ok {
		c.Sync.Interval = d
	}

	// Reports
	if val := os.Getenv("LAZYTASK_BURNDOWN_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Reports.BurndownDays = n
		}
	}

	// Redis URL (support both REDIS_URL and LAZYTASK_REDIS_URL)
	if val := os.Getenv("LAZYTASK_REDIS_URL"); val != "" {
		c.Redis.URL = val
		c.Redis.Enabled = true
	} else if val := os.Getenv("REDIS_URL"); val != "" {
		c.Redis.URL = val
	}
	if val := os.Getenv("LAZYTASK_REDIS_ENABLED"); val != "" {
		c.Redis.Enabled = parseBool(val)
	}

	// Logging
	if val := os.Getenv("LAZYTASK_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("LAZYTASK_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
}

// envDuration reads a Go duration or, for convenience, plain seconds.
func envDuration(key string) (time.Duration, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func parseBool(val string) bool {
	return val == "true" || val == "1" || val == "yes"
}

// Reload forces a reload of the configuration.
// This resets the global singleton and returns the newly loaded config.
func Reload() (*Config, error) {
	configOnce = sync.Once{}
	return Get()
}

// ConfigPaths returns the paths where config files are searched.
func ConfigPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".config", "lazytask", "config.yml"),
		filepath.Join(homeDir, ".config", "lazytask", "config.yaml"),
		filepath.Join(homeDir, ".lazytask.yaml"),
	}
}

// EnvVars lists the supported environment overrides.
var EnvVars = []string{
	"LAZYTASK_TASK_BIN",
	"TASKRC",
	"TASKDATA",
	"LAZYTASK_DIRECT_READ",
	"LAZYTASK_COMMAND_TIMEOUT",
	"LAZYTASK_RETRIES",
	"LAZYTASK_CACHE_TTL",
	"LAZYTASK_SYNC_ENABLED",
	"LAZYTASK_SYNC_INTERVAL",
	"LAZYTASK_BURNDOWN_DAYS",
	"LAZYTASK_REDIS_URL (or REDIS_URL)",
	"LAZYTASK_REDIS_ENABLED",
	"LAZYTASK_LOG_LEVEL",
	"LAZYTASK_LOG_FILE",
}

// WriteExample writes an example configuration file to the specified path.
func WriteExample(path string) error {
	example := `# lazytask configuration file
# Place this file at ~/.config/lazytask/config.yaml or ~/.lazytask.yaml

taskwarrior:
  # task executable (name on PATH or absolute path)
  binary: task
  # taskrc and data directory overrides (empty = Taskwarrior defaults)
  taskrc: ""
  data_location: ""
  # read the TaskChampion database directly when possible
  direct_read: true
  command_timeout: 10s
  mutation_timeout: 30s
  retries: 2
  retry_backoff: 250ms
  staleness_threshold: 2s

cache:
  # expire cached reports after this long even without changes (0 = never)
  ttl: 0s
  # expiry for reports that depend on the current time
  activity_ttl: 1m

sync:
  enabled: false
  interval: 5m
  timeout: 2m
  # desktop notification after this many consecutive failures (0 = off)
  failure_notify_threshold: 3

reports:
  burndown_days: 30
  activity_window: 168h
  activity_limit: 50

redis:
  # mirror status to Redis so 'lazytask status' works across processes
  enabled: false
  url: redis://localhost:6379

logging:
  level: info
  file: ~/.cache/lazytask/lazytask.log
  json: true
  console: false
  max_size: 10
  max_backups: 3
  max_age: 28
  compress: false

ui:
  refresh_interval: 30s
  default_filter: "status:pending"
  default_report: summary
`
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(example), 0644)
}
