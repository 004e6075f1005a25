// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pointeranalysis defines the PointerAnalysisBackend interface and
// its v1 default implementation, an SVF-based whole-program inclusion
// pointer analysis driver.
package pointeranalysis

import "context"

// FunctionResult is one analyzed function, prior to joining with debug
// metadata (spec.md §4.6: "joining is by IR symbol name").
type FunctionResult struct {
	IRName               string
	CyclomaticComplexity int
	IsEntryPoint         bool
}

// EdgeResult is one CALLS edge in the backend's reported call graph.
type EdgeResult struct {
	CallerIRName string
	CalleeIRName string
	// CallType is "direct" or "fptr".
	CallType   string
	Confidence float64
}

// AnalysisResult is the output of Backend.Analyze.
type AnalysisResult struct {
	Functions []FunctionResult
	Edges     []EdgeResult
	Language  string
	Backend   string
	Warnings  []string
}

// Backend is the polymorphic pointer-analysis interface. It is declared
// over a capability set {function-extraction, direct-call edges,
// function-pointer targets, complexity metrics}; a backend need not
// implement every capability, but v1 ships exactly one that does.
type Backend interface {
	// Name identifies the backend for provenance (AnalysisResult.Backend,
	// CallEdge.Backend in the committed graph).
	Name() string

	// SupportedLanguages lists the languages this backend can analyze.
	SupportedLanguages() []string

	// CheckPrerequisites probes for required external tools and returns
	// the names of any that are missing, without side effects.
	CheckPrerequisites(ctx context.Context) []string

	// Analyze runs the backend over bcPath and returns its call-graph.
	Analyze(ctx context.Context, bcPath, language string, options map[string]any) (*AnalysisResult, error)
}
