// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reaches computes, for each fuzzer, the bounded-depth BFS
// reachability set over the library call graph assembled earlier in the
// pipeline, materializing (fuzzer, function, min_depth) triples.
package reaches

import "github.com/kraklabs/reachmap/pkg/metrics"

// FunctionKey identifies a function by its (name, file_path) pair, the
// same identity GraphStore uses for Function/External nodes.
type FunctionKey struct {
	Name     string
	FilePath string
}

// Edge is one directed CALLS edge in the in-memory library call graph
// assembled from PointerAnalysisBackend's edges. HarnessParser's targets
// enter the BFS as FuzzerEntry seeds, not as edges.
type Edge struct {
	Caller FunctionKey
	Callee FunctionKey
}

// FuzzerEntry is one fuzzer's entry point plus the library functions
// HarnessParser determined it invokes directly.
type FuzzerEntry struct {
	FuzzerName          string
	EntryFunction        FunctionKey
	LibraryCallTargets  []FunctionKey
}

// Triple is one materialized REACHES record.
type Triple struct {
	FuzzerName       string
	FunctionName     string
	FunctionFilePath string
	Depth            int
}

// DefaultHopCap is the BFS hop cap used when the caller does not override
// it (spec.md §4.8: "configurable hop cap (default 50)").
const DefaultHopCap = 50

// Computer runs bounded BFS reachability over a library call graph.
type Computer struct {
	hopCap int
}

// New returns a Computer with the given hop cap; hopCap <= 0 uses
// DefaultHopCap.
func New(hopCap int) *Computer {
	if hopCap <= 0 {
		hopCap = DefaultHopCap
	}
	return &Computer{hopCap: hopCap}
}

// Compute runs, for every fuzzer, bounded BFS from its entry's declared
// library-call targets (depth 1) outward along edges, returning the
// minimum depth at which every distinct function was first reached. The
// entry function itself never appears in the result (spec.md §4.8 step 4).
func (c *Computer) Compute(edges []Edge, fuzzers []FuzzerEntry) []Triple {
	adjacency := buildAdjacency(edges)

	var triples []Triple
	for _, fz := range fuzzers {
		depths := c.bfs(adjacency, fz.EntryFunction, fz.LibraryCallTargets)
		for fn, depth := range depths {
			triples = append(triples, Triple{
				FuzzerName:       fz.FuzzerName,
				FunctionName:     fn.Name,
				FunctionFilePath: fn.FilePath,
				Depth:            depth,
			})
		}
	}
	return triples
}

func buildAdjacency(edges []Edge) map[FunctionKey][]FunctionKey {
	adj := make(map[FunctionKey][]FunctionKey)
	for _, e := range edges {
		adj[e.Caller] = append(adj[e.Caller], e.Callee)
	}
	return adj
}

// bfs explores outward from entry's direct library-call targets (each at
// depth 1, since the entry function itself is not part of the library
// graph and is excluded from the result by construction), recording the
// minimum hop-count at which each distinct function is first visited, and
// never exploring past hopCap hops.
func (c *Computer) bfs(adjacency map[FunctionKey][]FunctionKey, entry FunctionKey, seeds []FunctionKey) map[FunctionKey]int {
	depth := make(map[FunctionKey]int)
	type item struct {
		fn FunctionKey
		d  int
	}
	var queue []item
	for _, seed := range seeds {
		if seed == entry {
			continue
		}
		if _, seen := depth[seed]; !seen {
			depth[seed] = 1
			queue = append(queue, item{fn: seed, d: 1})
		}
	}

	for len(queue) > 0 {
		metrics.ObserveBFSQueueDepth(len(queue))
		cur := queue[0]
		queue = queue[1:]
		if cur.d >= c.hopCap {
			continue
		}
		for _, next := range adjacency[cur.fn] {
			if next == entry {
				continue
			}
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = cur.d + 1
			queue = append(queue, item{fn: next, d: cur.d + 1})
		}
	}
	return depth
}
