package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info log level, got %q", cfg.LogLevel)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.StoreDriver)
	}
	if cfg.CacheSize != 4096 {
		t.Fatalf("expected cache size 4096, got %d", cfg.CacheSize)
	}
	if cfg.DefaultBranch != "main" {
		t.Fatalf("expected main, got %q", cfg.DefaultBranch)
	}
	if cfg.AuditSyncInterval != time.Second {
		t.Fatalf("expected 1s sync interval, got %s", cfg.AuditSyncInterval)
	}
	if !cfg.MetricsEnabled {
		t.Fatal("expected metrics enabled by default")
	}
	if cfg != Default() {
		t.Fatalf("LoadFrom(empty) = %+v, Default() = %+v", cfg, Default())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CONTENTVC_LOG_LEVEL":           "debug",
		"CONTENTVC_STORE_DRIVER":        "sqlite",
		"CONTENTVC_STORE_PATH":          "/tmp/vcs.db",
		"CONTENTVC_CACHE_SIZE":          "0",
		"CONTENTVC_AUDIT_SYNC_INTERVAL": "250ms",
		"CONTENTVC_METRICS_ENABLED":     "false",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.StoreDriver != DriverSQLite || cfg.StorePath != "/tmp/vcs.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CacheSize != 0 {
		t.Fatalf("expected cache disabled, got %d", cfg.CacheSize)
	}
	if cfg.AuditSyncInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.AuditSyncInterval)
	}
	if cfg.MetricsEnabled {
		t.Fatal("expected metrics disabled")
	}
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contentvc.yaml")
	body := "store_driver: sqlite\nstore_path: /data/file.db\ndefault_branch: trunk\naudit_sync_interval: 5s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(map[string]string{
		FileEnv:                path,
		"CONTENTVC_STORE_PATH": "/data/env.db",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Fatalf("expected driver from file, got %q", cfg.StoreDriver)
	}
	if cfg.StorePath != "/data/env.db" {
		t.Fatalf("expected env to win over file, got %q", cfg.StorePath)
	}
	if cfg.DefaultBranch != "trunk" {
		t.Fatalf("expected trunk from file, got %q", cfg.DefaultBranch)
	}
	if cfg.AuditSyncInterval != 5*time.Second {
		t.Fatalf("expected 5s from file, got %s", cfg.AuditSyncInterval)
	}
	if cfg.CacheSize != 4096 {
		t.Fatalf("expected default cache size to survive, got %d", cfg.CacheSize)
	}
}

func TestMissingFile(t *testing.T) {
	_, err := LoadFrom(map[string]string{FileEnv: filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestMalformedEnvironment(t *testing.T) {
	_, err := LoadFrom(map[string]string{"CONTENTVC_CACHE_SIZE": "lots"})
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"driver", func(c *Config) { c.StoreDriver = "postgres" }, "store driver"},
		{"sqlite path", func(c *Config) { c.StoreDriver = DriverSQLite }, "store path"},
		{"cache size", func(c *Config) { c.CacheSize = -1 }, "cache size"},
		{"branch", func(c *Config) { c.DefaultBranch = "bad name" }, "default branch"},
		{"sync interval", func(c *Config) { c.AuditJournalPath = "/tmp/audit"; c.AuditSyncInterval = 0 }, "sync interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
