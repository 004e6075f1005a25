// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/reachmap/internal/errors"
	"github.com/kraklabs/reachmap/internal/ui"
	"github.com/kraklabs/reachmap/pkg/catalog"
)

// runServe executes the 'serve' CLI command: it exposes /metrics and
// /health over HTTP and runs the eviction sweep on the workspace's
// configured interval, blocking until interrupted.
//
// Flags:
//   - --addr: listen address (default ":9090")
//
// Examples:
//
//	reachmap serve
//	reachmap serve --addr :9191
func runServe(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":9090", "Listen address for /metrics and /health")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: reachmap serve [options]

Serves Prometheus metrics and a liveness endpoint, and runs the eviction
sweep on the workspace's configured interval, until interrupted.

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

	ui.Header("Starting reachmap server")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evictor := catalog.NewEvictor(
		ws.Catalog, ws.Graph, nil, diskUsageFunc(ws.Cfg.GraphDataDir),
		ws.Cfg.DiskHighWaterPct, ws.Cfg.DiskLowWaterPct,
		ws.Cfg.RetentionPerRepo, ws.Cfg.TTLDays, nil,
	)

	interval := ws.Cfg.EvictionInterval
	if interval <= 0 {
		interval = time.Hour
	}

	go runEvictionLoop(ctx, evictor, interval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	ui.Success(fmt.Sprintf("listening on %s (/metrics, /health)", *addr))

	select {
	case <-ctx.Done():
		ui.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errors.FatalError(errors.NewInternalError("server shutdown failed", err.Error(), "check for connections that did not drain", err), globals.JSON)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			errors.FatalError(errors.NewNetworkError("server failed", err.Error(), "check that the listen address is free", err), globals.JSON)
		}
	}
}

// runEvictionLoop runs the eviction sweep on a fixed interval until ctx is
// canceled. A failed sweep is logged and retried on the next tick rather
// than stopping the server.
func runEvictionLoop(ctx context.Context, evictor *catalog.Evictor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			if err := evictor.Run(sweepCtx); err != nil {
				ui.Info(fmt.Sprintf("eviction sweep failed: %v", err))
			}
			cancel()
		}
	}
}
