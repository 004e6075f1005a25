// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package refiner defines the reserved LLM-assisted post-processing hook
// for a committed analysis: a narrow interface the orchestrator always
// calls, with a no-op default so the hook carries no cost or dependency
// for a v1 build that never configures an LLM provider.
package refiner

import (
	"context"

	"github.com/kraklabs/reachmap/pkg/graphstore"
	"github.com/kraklabs/reachmap/pkg/pointeranalysis"
)

// AnalysisOutput is the joined, pre-commit analysis content a Refiner may
// adjust: function records (names, complexity, bodies) and the call
// edges between them. It is distinct from orchestrator.AnalysisOutput,
// which is the post-commit summary returned to ticket callers.
type AnalysisOutput struct {
	Functions []graphstore.FunctionRecord
	Edges     []pointeranalysis.EdgeResult
}

// Input is an alias kept for call-site readability; Refine's argument and
// return type are the same shape.
type Input = AnalysisOutput

// Refiner optionally adjusts a joined analysis before it is committed to
// the graph store - e.g. correcting a cyclomatic-complexity outlier or
// re-scoring a low-confidence indirect edge. A Refiner must never block
// indefinitely; the orchestrator treats any returned error as non-fatal
// and commits the unrefined input.
type Refiner interface {
	Refine(ctx context.Context, in *AnalysisOutput) (*AnalysisOutput, error)
}

// Noop returns its input unchanged. It is the default Refiner for every
// build that has not configured an LLM provider.
type Noop struct{}

// Refine implements Refiner.
func (Noop) Refine(_ context.Context, in *AnalysisOutput) (*AnalysisOutput, error) {
	return in, nil
}
