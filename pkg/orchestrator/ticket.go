// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator drives the six-phase analysis pipeline: it talks
// to Catalog for admission, runs Probe, BuildCommandResolver,
// BitcodeBuilder, PointerAnalysisBackend, HarnessParser, and
// ReachesComputer, writes results via GraphStore, emits progress events
// to LogSink, and enforces idempotent commit / failure marking.
package orchestrator

// Ticket is the work-ticket format accepted from a consumer (spec.md §6.1).
type Ticket struct {
	RepoURL       string
	Version       string
	Path          string // local checkout; cloned from RepoURL@Version if empty
	BuildScript   string
	Backend       string
	Language      string
	FuzzerSources map[string][]string // fuzzer_name -> source file paths
	DiffFiles     []string
}

// AnalysisOutput is returned to the consumer on success (spec.md §6.2).
type AnalysisOutput struct {
	SnapshotID   string
	RepoURL      string
	Version      string
	Backend      string
	FunctionCount int
	EdgeCount    int
	FuzzerNames  []string
	Cached       bool
}
