// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the reachmap CLI: a static call-graph analysis
// engine for C/C++ fuzzing projects.
//
// Usage:
//
//	reachmap build <ticket.json>   Analyze a repo@version, admitting through the catalog
//	reachmap status [--repo URL]   List catalogued snapshots
//	reachmap query <cozoscript>    Execute a Datalog query against the graph store
//	reachmap evict                 Run the eviction sweep once
//	reachmap serve                 Serve /metrics over HTTP
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/reachmap/internal/ui"
)

// GlobalFlags holds the flags every subcommand accepts.
type GlobalFlags struct {
	JSON       bool
	NoColor    bool
	Workspace  string
	ConfigPath string
}

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var globals GlobalFlags

	root := flag.NewFlagSet("reachmap", flag.ContinueOnError)
	root.BoolVar(&globals.JSON, "json", false, "Output as JSON")
	root.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	root.StringVar(&globals.Workspace, "workspace", "default", "Named workspace under ~/.reachmap/data")
	root.StringVar(&globals.ConfigPath, "config", "", "Path to a YAML config file")
	showVersion := root.Bool("version", false, "Show version and exit")

	root.Usage = func() {
		fmt.Fprintf(os.Stderr, `reachmap - static call-graph analysis for C/C++ fuzzing projects

Usage:
  reachmap <command> [options]

Commands:
  build    Analyze a repo@version and commit the call graph
  status   List catalogued snapshots
  query    Execute a Datalog query against the graph store
  evict    Run the eviction sweep once
  serve    Serve /metrics over HTTP

Global Options:
`)
		root.PrintDefaults()
	}

	// pflag stops at the first non-flag argument, so global flags must
	// come before the subcommand name; this mirrors the teacher's
	// top-level-flags-then-subcommand dispatch.
	if err := root.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	ui.InitColors(globals.NoColor)

	if *showVersion {
		fmt.Printf("reachmap version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		os.Exit(0)
	}

	args := root.Args()
	if len(args) == 0 {
		root.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "build":
		runBuild(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "query":
		runQuery(cmdArgs, globals)
	case "evict":
		runEvict(cmdArgs, globals)
	case "serve":
		runServe(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		root.Usage()
		os.Exit(1)
	}
}
