// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/reachmap/internal/errors"
	"github.com/kraklabs/reachmap/internal/output"
	"github.com/kraklabs/reachmap/internal/ui"
	"github.com/kraklabs/reachmap/pkg/catalog"
)

// runEvict executes the 'evict' CLI command: a single pass of the three
// eviction policies (disk pressure, per-repo retention cap, TTL) against
// the open workspace.
//
// Examples:
//
//	reachmap evict
//	reachmap evict --json
func runEvict(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("evict", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Minute, "Eviction sweep timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: reachmap evict [options]

Runs one pass of disk-pressure, retention-cap, and TTL eviction against
the workspace's catalog and graph store.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ws, err := openWorkspace(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	before, err := ws.Catalog.ListAllCompletedByAccess(ctx)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("cannot list snapshots", err.Error(), "check the catalog database", err), globals.JSON)
	}

	evictor := catalog.NewEvictor(
		ws.Catalog, ws.Graph, nil, diskUsageFunc(ws.Cfg.GraphDataDir),
		ws.Cfg.DiskHighWaterPct, ws.Cfg.DiskLowWaterPct,
		ws.Cfg.RetentionPerRepo, ws.Cfg.TTLDays, nil,
	)

	if err := evictor.Run(ctx); err != nil {
		errors.FatalError(errors.NewInternalError("eviction sweep failed", err.Error(), "check the workspace logs", err), globals.JSON)
	}

	after, err := ws.Catalog.ListAllCompletedByAccess(ctx)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("cannot list snapshots", err.Error(), "check the catalog database", err), globals.JSON)
	}

	evicted := len(before) - len(after)
	if evicted < 0 {
		evicted = 0
	}

	if globals.JSON {
		result := map[string]any{"evicted": evicted, "remaining": len(after)}
		if err := output.JSON(result); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	ui.Success(fmt.Sprintf("eviction sweep complete: %d evicted, %d remaining", evicted, len(after)))
}

// diskUsageFunc returns a catalog.DiskUsage that reports the fraction of
// the filesystem backing dir that is in use, via statfs. On platforms or
// paths where statfs fails (e.g. the directory doesn't exist yet) it
// reports 0, which disables disk-pressure eviction rather than erroring
// the whole sweep.
func diskUsageFunc(dir string) catalog.DiskUsage {
	return func() (float64, error) {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(dir, &stat); err != nil {
			return 0, nil
		}
		total := stat.Blocks * uint64(stat.Bsize)
		free := stat.Bfree * uint64(stat.Bsize)
		if total == 0 {
			return 0, nil
		}
		used := total - free
		return float64(used) / float64(total), nil
	}
}
