// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kraklabs/reachmap/pkg/metrics"
)

// GraphDeleter removes every node and edge scoped to a snapshot_id. It is
// satisfied by pkg/graphstore.Backend's DeleteSnapshot method; the
// interface lives here so pkg/catalog does not import pkg/graphstore
// (eviction orchestrates both without either depending on the other).
type GraphDeleter interface {
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// LogDeleter removes the per-snapshot log directory. Satisfied by
// pkg/logsink.Sink.
type LogDeleter interface {
	DeleteSnapshotLogs(snapshotID string) error
}

// DiskUsage reports current storage utilization as a fraction in [0, 1].
// Implementations may inspect the graph data directory, an external
// volume, or a fixed quota; the policy only needs the ratio.
type DiskUsage func() (float64, error)

// Evictor runs the three eviction policies of spec.md §4.2 against a
// Catalog, a GraphDeleter, and a LogDeleter.
type Evictor struct {
	catalog   *Catalog
	graph     GraphDeleter
	logs      LogDeleter
	diskUsage DiskUsage
	logger    *slog.Logger

	highWaterPct     float64
	lowWaterPct      float64
	retentionPerRepo int
	ttlDays          int
}

// NewEvictor constructs an Evictor. diskUsage may be nil, in which case
// disk-pressure eviction is skipped (useful for in-memory test catalogs).
func NewEvictor(catalog *Catalog, graph GraphDeleter, logs LogDeleter, diskUsage DiskUsage, highWaterPct, lowWaterPct float64, retentionPerRepo, ttlDays int, logger *slog.Logger) *Evictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evictor{
		catalog: catalog, graph: graph, logs: logs, diskUsage: diskUsage, logger: logger,
		highWaterPct: highWaterPct, lowWaterPct: lowWaterPct,
		retentionPerRepo: retentionPerRepo, ttlDays: ttlDays,
	}
}

// Run executes the three policies in order: disk pressure, per-repository
// retention cap, then TTL. It is run by `reachmap evict` and by
// `reachmap serve` every Config.EvictionInterval (default hourly);
// admission does not call it.
func (e *Evictor) Run(ctx context.Context) error {
	if err := e.evictDiskPressure(ctx); err != nil {
		return fmt.Errorf("disk pressure eviction: %w", err)
	}
	if err := e.evictRetentionCap(ctx); err != nil {
		return fmt.Errorf("retention cap eviction: %w", err)
	}
	if err := e.evictTTL(ctx); err != nil {
		return fmt.Errorf("ttl eviction: %w", err)
	}
	return nil
}

func (e *Evictor) evictDiskPressure(ctx context.Context) error {
	if e.diskUsage == nil {
		return nil
	}
	usage, err := e.diskUsage()
	if err != nil {
		return err
	}
	if usage*100 <= e.highWaterPct {
		return nil
	}

	candidates, err := e.catalog.ListAllCompletedByAccess(ctx)
	if err != nil {
		return err
	}
	for _, rec := range candidates {
		if err := e.evictOne(ctx, rec.ID, "disk_pressure"); err != nil {
			return err
		}
		usage, err = e.diskUsage()
		if err != nil {
			return err
		}
		if usage*100 <= e.lowWaterPct {
			break
		}
	}
	return nil
}

func (e *Evictor) evictRetentionCap(ctx context.Context) error {
	candidates, err := e.catalog.ListAllCompletedByAccess(ctx)
	if err != nil {
		return err
	}

	byRepo := make(map[string][]SnapshotRecord)
	for _, rec := range candidates {
		byRepo[rec.RepoURL] = append(byRepo[rec.RepoURL], rec)
	}
	for _, recs := range byRepo {
		if len(recs) <= e.retentionPerRepo {
			continue
		}
		// recs is already ordered ascending by last_accessed_at (LRU
		// first); evict the oldest excess.
		excess := len(recs) - e.retentionPerRepo
		for _, rec := range recs[:excess] {
			if err := e.evictOne(ctx, rec.ID, "retention_cap"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Evictor) evictTTL(ctx context.Context) error {
	expired, err := e.catalog.ListExpiredByTTL(ctx, e.ttlDays)
	if err != nil {
		return err
	}
	for _, rec := range expired {
		if err := e.evictOne(ctx, rec.ID, "ttl"); err != nil {
			return err
		}
	}
	return nil
}

// evictOne performs the serialized graph-delete -> log-delete ->
// catalog-delete sequence of spec.md §4.2. An interruption after the
// graph delete leaves a catalog row with zero graph content, which the
// next pass treats as already evicted (graph delete is idempotent).
func (e *Evictor) evictOne(ctx context.Context, id, reason string) error {
	if e.graph != nil {
		if err := e.graph.DeleteSnapshot(ctx, id); err != nil {
			return fmt.Errorf("delete graph subtree %s: %w", id, err)
		}
	}
	if e.logs != nil {
		if err := e.logs.DeleteSnapshotLogs(id); err != nil {
			return fmt.Errorf("delete logs %s: %w", id, err)
		}
	}
	if err := e.catalog.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete catalog row %s: %w", id, err)
	}
	metrics.RecordEviction(reason)
	e.logger.Info("catalog.eviction.snapshot_evicted", "snapshot_id", id, "reason", reason)
	return nil
}
