// Package config loads contentvc settings from defaults, an optional YAML
// file and CONTENTVC_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nainya/contentvc/pkg/vcs"
)

// FileEnv names the variable pointing at an optional YAML config file
const FileEnv = "CONTENTVC_CONFIG_FILE"

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the full runtime configuration
type Config struct {
	LogLevel  string `yaml:"log_level" env:"CONTENTVC_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `yaml:"log_pretty" env:"CONTENTVC_LOG_PRETTY" envDefault:"false"`

	StoreDriver string `yaml:"store_driver" env:"CONTENTVC_STORE_DRIVER" envDefault:"memory"`
	StorePath   string `yaml:"store_path" env:"CONTENTVC_STORE_PATH"`
	CacheSize   int    `yaml:"cache_size" env:"CONTENTVC_CACHE_SIZE" envDefault:"4096"` // 0 disables the version cache

	DefaultBranch string `yaml:"default_branch" env:"CONTENTVC_DEFAULT_BRANCH" envDefault:"main"`

	AuditJournalPath  string        `yaml:"audit_journal_path" env:"CONTENTVC_AUDIT_JOURNAL_PATH"`
	AuditSyncInterval time.Duration `yaml:"audit_sync_interval" env:"CONTENTVC_AUDIT_SYNC_INTERVAL" envDefault:"1s"`

	MetricsEnabled bool   `yaml:"metrics_enabled" env:"CONTENTVC_METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `yaml:"metrics_addr" env:"CONTENTVC_METRICS_ADDR"` // empty serves no endpoints
}

// Default returns the configuration with every default applied and nothing read
func Default() Config {
	var cfg Config
	// An empty environment leaves only the envDefault values.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads the process environment
func Load() (Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom builds a Config from environ, a map of variable names to values
func LoadFrom(environ map[string]string) (Config, error) {
	cfg := Default()
	if path := environ[FileEnv]; path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	// Only variables that are actually set override; defaults were applied above.
	opts := env.Options{Environment: environ, DefaultValueTagName: "envNoDefault"}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile overlays the keys present in a YAML file
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q: want debug, info, warn or error", c.LogLevel))
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.StorePath == "" {
			errs = append(errs, errors.New("store path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store driver %q: want %s or %s", c.StoreDriver, DriverMemory, DriverSQLite))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache size %d is negative", c.CacheSize))
	}
	if err := vcs.ValidateBranchName(c.DefaultBranch); err != nil {
		errs = append(errs, fmt.Errorf("default branch: %w", err))
	}
	if c.AuditJournalPath != "" && c.AuditSyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("audit sync interval %s must be positive", c.AuditSyncInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
