// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config holds the process-wide immutable configuration for
// reachmap: catalog DSN, graph-store location, eviction thresholds,
// admission deadlines, and worker-pool sizes. It is built once at startup
// and passed explicitly into every component constructor; no package in
// this module keeps an ambient mutable singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable runtime configuration shared by every component.
type Config struct {
	// CatalogDSN is the database/sql data source for pkg/catalog. Defaults
	// to a SQLite file under DataDir.
	CatalogDSN string `yaml:"catalog_dsn"`

	// GraphDataDir is the root directory for pkg/graphstore's embedded
	// CozoDB instance.
	GraphDataDir string `yaml:"graph_data_dir"`

	// GraphEngine selects the CozoDB storage engine: "mem", "sqlite", or
	// "rocksdb".
	GraphEngine string `yaml:"graph_engine"`

	// LogDir is the root directory for pkg/logsink's per-snapshot,
	// per-phase log streams.
	LogDir string `yaml:"log_dir"`

	// WorkDir is the root directory under which per-build scratch
	// workspaces (compiler wrapper output, extracted bitcode) are created.
	// Each build gets its own unique subdirectory; workspaces are never
	// shared across concurrent builds.
	WorkDir string `yaml:"work_dir"`

	// StaleBuilderDeadline is how long a `building` catalog row may exist
	// before the admission coordinator treats it as abandoned and
	// transitions it to failed (spec default: 30 minutes).
	StaleBuilderDeadline time.Duration `yaml:"stale_builder_deadline"`

	// WaitPollInterval is wait_until_ready's polling cadence (spec
	// default: 5 seconds).
	WaitPollInterval time.Duration `yaml:"wait_poll_interval"`

	// WaitOverallDeadline bounds wait_until_ready's total blocking time
	// (spec default: 30 minutes).
	WaitOverallDeadline time.Duration `yaml:"wait_overall_deadline"`

	// ReachesHopCap bounds ReachesComputer's BFS depth (spec default: 50).
	ReachesHopCap int `yaml:"reaches_hop_cap"`

	// EvictionInterval is how often the scheduled eviction sweep runs
	// (spec default: hourly).
	EvictionInterval time.Duration `yaml:"eviction_interval"`

	// DiskHighWaterPct triggers disk-pressure eviction when storage usage
	// exceeds this percentage (spec default: 80).
	DiskHighWaterPct float64 `yaml:"disk_high_water_pct"`

	// DiskLowWaterPct is the target usage disk-pressure eviction evicts
	// down to (spec default: 70).
	DiskLowWaterPct float64 `yaml:"disk_low_water_pct"`

	// RetentionPerRepo is the maximum number of completed snapshots kept
	// per repo_url before the LRU excess is evicted (spec default: 5).
	RetentionPerRepo int `yaml:"retention_per_repo"`

	// TTLDays is the age, in days, after which a completed snapshot's
	// last_accessed_at makes it eviction-eligible (spec default: 90).
	TTLDays int `yaml:"ttl_days"`

	// MaxConcurrentBuilds is loaded and defaulted with the rest of the
	// configuration, but no component reads it: concurrent builds in one
	// process are not bounded by it.
	MaxConcurrentBuilds int `yaml:"max_concurrent_builds"`
}

// Default returns a Config populated with the spec's documented defaults,
// rooted at the given data directory.
func Default(dataDir string) Config {
	return Config{
		CatalogDSN:           filepath.Join(dataDir, "catalog.db"),
		GraphDataDir:         filepath.Join(dataDir, "graph"),
		GraphEngine:          "rocksdb",
		LogDir:               filepath.Join(dataDir, "logs"),
		WorkDir:              filepath.Join(dataDir, "work"),
		StaleBuilderDeadline: 30 * time.Minute,
		WaitPollInterval:     5 * time.Second,
		WaitOverallDeadline:  30 * time.Minute,
		ReachesHopCap:        50,
		EvictionInterval:     time.Hour,
		DiskHighWaterPct:     80,
		DiskLowWaterPct:      70,
		RetentionPerRepo:     5,
		TTLDays:              90,
		MaxConcurrentBuilds:  4,
	}
}

// Load reads a YAML config file layered on top of Default(dataDir), then
// applies any non-empty ReachMap_* environment overrides. A missing file is
// not an error; Default(dataDir) is returned unchanged.
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REACHMAP_CATALOG_DSN"); v != "" {
		cfg.CatalogDSN = v
	}
	if v := os.Getenv("REACHMAP_GRAPH_DATA_DIR"); v != "" {
		cfg.GraphDataDir = v
	}
	if v := os.Getenv("REACHMAP_GRAPH_ENGINE"); v != "" {
		cfg.GraphEngine = v
	}
	if v := os.Getenv("REACHMAP_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
}

// EnsureDirs creates every directory this Config references that must
// exist before components open it, mirroring the teacher's idempotent
// bootstrap-on-first-use idiom.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.GraphDataDir, c.LogDir, c.WorkDir, filepath.Dir(c.CatalogDSN)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}
