// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"github.com/kraklabs/reachmap/pkg/bitcode"
	"github.com/kraklabs/reachmap/pkg/graphstore"
	"github.com/kraklabs/reachmap/pkg/pointeranalysis"
	"github.com/kraklabs/reachmap/pkg/reaches"
)

// fuzzEntrySymbol is the canonical libFuzzer entry point every harness is
// expected to define (spec.md §4.7). HarnessParser seeds its per-file
// closure walk from this name, and the joined ENTRY Function node for each
// fuzzer is keyed on it plus that fuzzer's primary source file.
const fuzzEntrySymbol = "LLVMFuzzerTestOneInput"

// joinAnalysisWithMeta joins the pointer-analysis backend's IR-symbol-keyed
// results with the bitcode builder's debug-derived metadata (spec.md §4.6:
// "joining is by IR symbol name"), producing the graph-store records for
// fully attributed functions, the External nodes for symbols with no
// matching debug metadata, and the in-memory library call graph and
// per-fuzzer entries ReachesComputer needs.
func joinAnalysisWithMeta(
	analysis *pointeranalysis.AnalysisResult,
	metaByIR map[string]bitcode.FunctionMeta,
	fuzzerSources map[string][]string,
	harnessClosures map[string][]string,
	backend, language string,
) (functions, externals []graphstore.FunctionRecord, reachesEdges []reaches.Edge, fuzzerEntries []reaches.FuzzerEntry) {
	entryPoints := make(map[string]bool, len(analysis.Functions))
	for _, fr := range analysis.Functions {
		if fr.IsEntryPoint {
			entryPoints[fr.IRName] = true
		}
	}

	keyByIR := make(map[string]graphstore.FunctionRecord, len(metaByIR))
	for _, fr := range analysis.Functions {
		meta, ok := metaByIR[fr.IRName]
		if !ok {
			rec := graphstore.FunctionRecord{
				Name:       fr.IRName,
				Language:   language,
				IsExternal: true,
				Confidence: 0.5,
			}
			externals = append(externals, rec)
			keyByIR[fr.IRName] = rec
			continue
		}
		rec := graphstore.FunctionRecord{
			Name:                 meta.OriginalName,
			FilePath:             meta.FilePath,
			Content:              meta.Content,
			Language:             language,
			StartLine:            meta.StartLine,
			EndLine:              meta.EndLine,
			CyclomaticComplexity: fr.CyclomaticComplexity,
			IsEntryPoint:         fr.IsEntryPoint,
			Confidence:           1.0,
			IsExternal:           false,
		}
		functions = append(functions, rec)
		keyByIR[fr.IRName] = rec
	}

	// Symbols the backend reported as call endpoints but never listed as a
	// defined function (declared-only externs, libc, etc.) still need an
	// identity for edges to resolve against.
	for _, e := range analysis.Edges {
		for _, ir := range [2]string{e.CallerIRName, e.CalleeIRName} {
			if _, ok := keyByIR[ir]; ok {
				continue
			}
			rec := graphstore.FunctionRecord{Name: ir, Language: language, IsExternal: true, Confidence: 0.3}
			externals = append(externals, rec)
			keyByIR[ir] = rec
		}
	}

	for _, e := range analysis.Edges {
		caller, ok1 := keyByIR[e.CallerIRName]
		callee, ok2 := keyByIR[e.CalleeIRName]
		if !ok1 || !ok2 {
			continue
		}
		reachesEdges = append(reachesEdges, reaches.Edge{
			Caller: reaches.FunctionKey{Name: caller.Name, FilePath: caller.FilePath},
			Callee: reaches.FunctionKey{Name: callee.Name, FilePath: callee.FilePath},
		})
	}

	// byName resolves a harness-reported library-call target to the
	// committed function's (name, file_path) identity, the same key the
	// pointer-analysis adjacency graph above is built from; seeding BFS with
	// name-only keys would never hit that adjacency and cap every fuzzer's
	// reach at depth 1.
	byName := make(map[string]reaches.FunctionKey, len(functions))
	for _, f := range functions {
		if _, ok := byName[f.Name]; !ok {
			byName[f.Name] = reaches.FunctionKey{Name: f.Name, FilePath: f.FilePath}
		}
	}

	for name := range fuzzerSources {
		targets := harnessClosures[name]
		keys := make([]reaches.FunctionKey, 0, len(targets))
		for _, t := range targets {
			if key, ok := byName[t]; ok {
				keys = append(keys, key)
			} else {
				keys = append(keys, reaches.FunctionKey{Name: t})
			}
		}

		// The entry Function node is distinguished per fuzzer by its
		// harness's primary source file, not just the shared entry symbol
		// name (spec.md invariant 6): two fuzzers both defining
		// LLVMFuzzerTestOneInput in different files must commit as distinct
		// entry nodes.
		var entryFilePath string
		if files := fuzzerSources[name]; len(files) > 0 {
			entryFilePath = files[0]
		}

		fuzzerEntries = append(fuzzerEntries, reaches.FuzzerEntry{
			FuzzerName:         name,
			EntryFunction:      reaches.FunctionKey{Name: fuzzEntrySymbol, FilePath: entryFilePath},
			LibraryCallTargets: keys,
		})
	}

	return functions, externals, reachesEdges, fuzzerEntries
}
