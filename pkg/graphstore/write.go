// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"context"
	"time"
)

// CreateSnapshotNode commits the root Snapshot node. Per spec.md §3.4 this
// node MUST NOT become visible to query consumers until the whole commit
// sequence finishes; callers therefore only invoke this from the commit
// phase, never at admission time.
func (b *EmbeddedBackend) CreateSnapshotNode(ctx context.Context, id, repoURL, version, backend string) error {
	script := `
?[id, repo_url, version, backend, created_at] <- $rows
:put rm_snapshot {id, repo_url, version, backend, created_at}
`
	params := map[string]any{
		"rows": [][]any{{id, repoURL, version, backend, float64(time.Now().UTC().Unix())}},
	}
	return b.Execute(ctx, script, params)
}

// ImportFunctions creates Function and External nodes plus their implicit
// CONTAINS edge (modeled structurally: every row carries snapshot_id, so
// CONTAINS is the snapshot_id column itself rather than a separate
// relation — spec.md §3.2 requires the edge to exist conceptually, not
// that it be a distinct stored row). Returns the number of rows written.
func (b *EmbeddedBackend) ImportFunctions(ctx context.Context, snapshotID string, functions []FunctionRecord) (int, error) {
	if len(functions) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(functions))
	for _, f := range functions {
		id := functionID(snapshotID, f.Name, f.FilePath)
		rows = append(rows, []any{
			id, snapshotID, f.Name, f.FilePath, f.Content, f.Language,
			f.StartLine, f.EndLine, f.CyclomaticComplexity, f.ReturnType, f.Parameters,
			f.IsEntryPoint, f.Confidence, f.IsExternal,
		})
	}

	script := `
?[id, snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external] <- $rows
:put rm_function {id, snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external}
`
	if err := b.Execute(ctx, script, map[string]any{"rows": rows}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ImportEdges creates CALLS edges. Each endpoint id is derived from its
// (name, file_path) pair exactly as given; no lookup by name is made. An
// endpoint with an empty file_path therefore identifies the node of that
// name stored with an empty file_path (an External node), not a defined
// function of the same name.
func (b *EmbeddedBackend) ImportEdges(ctx context.Context, snapshotID string, edges []CallEdge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		callerID := functionID(snapshotID, e.CallerName, e.CallerFilePath)
		calleeID := functionID(snapshotID, e.CalleeName, e.CalleeFilePath)
		id := callEdgeID(snapshotID, callerID, calleeID, e.CallType)
		rows = append(rows, []any{
			id, snapshotID, callerID, calleeID, e.CallerName, e.CallerFilePath,
			e.CalleeName, e.CalleeFilePath, e.CallType, e.Confidence, e.Backend,
		})
	}

	script := `
?[id, snapshot_id, caller_id, callee_id, caller_name, caller_file_path, callee_name, callee_file_path, call_type, confidence, backend] <- $rows
:put rm_calls {id, snapshot_id, caller_id, callee_id, caller_name, caller_file_path, callee_name, callee_file_path, call_type, confidence, backend}
`
	if err := b.Execute(ctx, script, map[string]any{"rows": rows}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ImportFuzzers creates, for each fuzzer: the Fuzzer node, a dedicated
// entry Function node distinguished by the harness's primary file_path,
// the ENTRY edge, and CALLS edges from that entry function to each
// declared library-function target (spec.md §4.9).
func (b *EmbeddedBackend) ImportFuzzers(ctx context.Context, snapshotID string, fuzzers []FuzzerInfo) (int, error) {
	if len(fuzzers) == 0 {
		return 0, nil
	}

	var fuzzerRows, entryRows [][]any
	var entryFnRows [][]any
	var entryCallRows [][]any

	for _, fz := range fuzzers {
		fid := fuzzerID(snapshotID, fz.Name)
		fuzzerRows = append(fuzzerRows, []any{fid, snapshotID, fz.Name, fz.EntryFunction, fz.Focus})

		entryFnID := functionID(snapshotID, fz.EntryFunction, fz.EntryFilePath)
		entryFnRows = append(entryFnRows, []any{
			entryFnID, snapshotID, fz.EntryFunction, fz.EntryFilePath, "", "c", 0, 0, 0, "", "", true, 1.0, false,
		})
		entryRows = append(entryRows, []any{fid, snapshotID, entryFnID})

		for _, target := range fz.LibraryCallTargets {
			// A target resolves to the first committed function of that
			// name; a name with no committed function keeps an empty path.
			targetPath := ""
			matches, err := b.lookupFunctions(ctx, snapshotID, target, "")
			if err != nil {
				return 0, err
			}
			if len(matches) > 0 {
				targetPath = matches[0].FilePath
			}
			targetID := functionID(snapshotID, target, targetPath)
			edgeID := callEdgeID(snapshotID, entryFnID, targetID, "direct")
			entryCallRows = append(entryCallRows, []any{
				edgeID, snapshotID, entryFnID, targetID, fz.EntryFunction, fz.EntryFilePath, target, targetPath, "direct", 1.0, "harness",
			})
		}
	}

	if err := b.Execute(ctx, `
?[id, snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external] <- $rows
:put rm_function {id, snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external}
`, map[string]any{"rows": entryFnRows}); err != nil {
		return 0, err
	}

	if err := b.Execute(ctx, `
?[id, snapshot_id, name, entry_function, focus] <- $rows
:put rm_fuzzer {id, snapshot_id, name, entry_function, focus}
`, map[string]any{"rows": fuzzerRows}); err != nil {
		return 0, err
	}

	if err := b.Execute(ctx, `
?[fuzzer_id, snapshot_id, function_id] <- $rows
:put rm_entry {fuzzer_id, snapshot_id, function_id}
`, map[string]any{"rows": entryRows}); err != nil {
		return 0, err
	}

	if len(entryCallRows) > 0 {
		if err := b.Execute(ctx, `
?[id, snapshot_id, caller_id, callee_id, caller_name, caller_file_path, callee_name, callee_file_path, call_type, confidence, backend] <- $rows
:put rm_calls {id, snapshot_id, caller_id, callee_id, caller_name, caller_file_path, callee_name, callee_file_path, call_type, confidence, backend}
`, map[string]any{"rows": entryCallRows}); err != nil {
			return 0, err
		}
	}

	return len(fuzzers), nil
}

// ImportReaches creates REACHES edges from precomputed (fuzzer, function,
// depth) triples.
func (b *EmbeddedBackend) ImportReaches(ctx context.Context, snapshotID string, triples []ReachesTriple) (int, error) {
	if len(triples) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(triples))
	for _, t := range triples {
		fid := fuzzerID(snapshotID, t.FuzzerName)
		fnID := functionID(snapshotID, t.FunctionName, t.FunctionFilePath)
		id := reachesID(snapshotID, fid, fnID)
		rows = append(rows, []any{id, snapshotID, fid, fnID, t.FunctionName, t.FunctionFilePath, t.Depth})
	}

	script := `
?[id, snapshot_id, fuzzer_id, function_id, function_name, function_file_path, depth] <- $rows
:put rm_reaches {id, snapshot_id, fuzzer_id, function_id, function_name, function_file_path, depth}
`
	if err := b.Execute(ctx, script, map[string]any{"rows": rows}); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// DeleteSnapshot removes every node and edge scoped to snapshotID: the
// full subtree delete required by eviction (spec.md §4.2) and by
// catalog.GraphDeleter.
func (b *EmbeddedBackend) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	deletes := []string{
		`?[id] := *rm_reaches{id, snapshot_id: $snapshot_id} :rm rm_reaches {id}`,
		`?[fuzzer_id] := *rm_entry{fuzzer_id, snapshot_id: $snapshot_id} :rm rm_entry {fuzzer_id}`,
		`?[id] := *rm_fuzzer{id, snapshot_id: $snapshot_id} :rm rm_fuzzer {id}`,
		`?[id] := *rm_calls{id, snapshot_id: $snapshot_id} :rm rm_calls {id}`,
		`?[id] := *rm_function{id, snapshot_id: $snapshot_id} :rm rm_function {id}`,
		`?[id] := *rm_snapshot{id}, id == $snapshot_id :rm rm_snapshot {id}`,
	}
	params := map[string]any{"snapshot_id": snapshotID}
	for _, script := range deletes {
		if err := b.Execute(ctx, script, params); err != nil {
			return err
		}
	}
	return nil
}
