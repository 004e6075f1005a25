// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/reachmap/internal/errors"
	"github.com/kraklabs/reachmap/internal/output"
	"github.com/kraklabs/reachmap/internal/ui"
	"github.com/kraklabs/reachmap/pkg/bitcode"
	"github.com/kraklabs/reachmap/pkg/buildcmd"
	"github.com/kraklabs/reachmap/pkg/harness"
	"github.com/kraklabs/reachmap/pkg/logsink"
	"github.com/kraklabs/reachmap/pkg/orchestrator"
	"github.com/kraklabs/reachmap/pkg/pointeranalysis"
	"github.com/kraklabs/reachmap/pkg/probe"
	"github.com/kraklabs/reachmap/pkg/reaches"
	"github.com/kraklabs/reachmap/pkg/refiner"
)

// runBuild executes the 'build' CLI command: it admits a work ticket
// through the catalog and, if this process owns the build, runs the full
// analysis pipeline and commits the resulting call graph.
//
// Flags:
//   - --svf-binary: path to the SVF wpa binary (default: "wpa" on PATH)
//
// Examples:
//
//	reachmap build ticket.json
//	reachmap build ticket.json --json
func runBuild(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	svfBinary := fs.String("svf-binary", "wpa", "Path to the SVF whole-program-analysis binary")
	timeout := fs.Duration("timeout", 30*time.Minute, "Overall build timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: reachmap build [options] <ticket.json>

Analyzes a repo@version, admitting through the catalog. The ticket file is
a JSON object with the orchestrator.Ticket fields: RepoURL, Version, Path,
BuildScript, Backend, Language, FuzzerSources, DiffFiles.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: ticket file argument required\n")
		fs.Usage()
		os.Exit(1)
	}

	ticket, err := loadTicket(fs.Arg(0))
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ws, err := openWorkspace(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = ws.Close() }()

	logs, err := logsink.New(ws.Cfg.LogDir, slog.Default())
	if err != nil {
		errors.FatalError(errors.NewConfigError("cannot open log sink", err.Error(), "check LogDir permissions", err), globals.JSON)
	}

	o := orchestrator.New(
		ws.Catalog,
		ws.Graph,
		logs,
		probe.New(),
		buildcmd.New(),
		bitcode.New(bitcode.DefaultWrapperConfig()),
		pointeranalysis.NewSVFBackend(*svfBinary),
		harness.New(),
		reaches.New(ws.Cfg.ReachesHopCap),
		refiner.Noop{},
		ws.Cfg.WorkDir,
	)
	o.WaitPollInterval = ws.Cfg.WaitPollInterval
	o.WaitOverallDeadline = ws.Cfg.WaitOverallDeadline

	ui.Header("Analyzing " + ticket.RepoURL + "@" + ticket.Version)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := o.Run(ctx, *ticket)
	if err != nil {
		errors.FatalError(asUserError(err), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(out); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	if out.Cached {
		ui.Success("cache hit: snapshot already analyzed")
	} else {
		ui.Success("analysis complete")
	}
	fmt.Printf("  Snapshot:  %s\n", out.SnapshotID)
	fmt.Printf("  Functions: %d\n", out.FunctionCount)
	fmt.Printf("  Edges:     %d\n", out.EdgeCount)
	fmt.Printf("  Fuzzers:   %v\n", out.FuzzerNames)
}

func loadTicket(path string) (*orchestrator.Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewInputError("cannot read ticket file", err.Error(), "check the file path")
	}
	var ticket orchestrator.Ticket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, errors.NewInputError("cannot parse ticket file", err.Error(), "check the ticket JSON syntax")
	}
	return &ticket, nil
}

// asUserError passes UserErrors through unchanged and wraps anything else
// (a bare Go error from a phase that has no structured UserError of its
// own) as an internal error so errors.FatalError always has a cause/fix
// pair to print.
func asUserError(err error) error {
	var ue *errors.UserError
	if stderrors.As(err, &ue) {
		return ue
	}
	return errors.NewInternalError("build failed", err.Error(), "check the build logs for the failing phase", err)
}
