// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/reachmap/internal/errors"
	"github.com/kraklabs/reachmap/internal/output"
	"github.com/kraklabs/reachmap/pkg/catalog"
)

// runStatus executes the 'status' CLI command, listing completed
// snapshots with their backend, node and edge counts, and fuzzer names.
// Building and failed catalog rows are not listed.
//
// Flags:
//   - --repo: restrict the listing to completed snapshots of one repo URL
//
// Examples:
//
//	reachmap status
//	reachmap status --repo https://github.com/example/libparse --json
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	repoURL := fs.String("repo", "", "Restrict listing to one repo URL")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: reachmap status [options]

Lists completed snapshots for this workspace.

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

	ctx := context.Background()
	var records []catalog.SnapshotRecord
	if *repoURL != "" {
		records, err = ws.Catalog.ListCompletedByRepo(ctx, *repoURL)
	} else {
		records, err = ws.Catalog.ListAllCompletedByAccess(ctx)
	}
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("cannot list snapshots", err.Error(), "check the catalog database", err), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(records); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	printStatus(records)
}

func printStatus(records []catalog.SnapshotRecord) {
	if len(records) == 0 {
		fmt.Println("No completed snapshots.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{"REPO", "VERSION", "BACKEND", "FUNCTIONS", "EDGES", "FUZZERS"}, "\t"))
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			rec.RepoURL, rec.Version, rec.Backend, rec.NodeCount, rec.EdgeCount, strings.Join(rec.FuzzerNames, ","))
	}
	_ = w.Flush()
	fmt.Printf("\n(%d snapshots)\n", len(records))
}
