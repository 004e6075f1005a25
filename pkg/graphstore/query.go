// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	rmerrors "github.com/kraklabs/reachmap/internal/errors"
)

// BFS safety limits, grounded on pkg/tools/trace.go's TracePath: without a
// cap a pathological or malformed graph could make path-finding queries
// run unbounded. These are the same order of magnitude as the teacher's
// own maxNodesExplored/maxQueriesPerSource.
const (
	maxNodesExplored    = 5000
	maxQueriesPerSource = 1000
)

// GetFunctionMetadata is the exact fetch of spec.md §4.9's
// get_function_metadata. Ambiguous name without file_path raises
// AmbiguousFunctionError (spec.md §6.3, §7).
func (b *EmbeddedBackend) GetFunctionMetadata(ctx context.Context, snapshotID, name, filePath string) (*FunctionMetadata, error) {
	matches, err := b.lookupFunctions(ctx, snapshotID, name, filePath)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 && filePath == "" {
		return nil, rmerrors.NewAmbiguousFunctionError(
			fmt.Sprintf("function %q is ambiguous in this snapshot", name),
			fmt.Sprintf("%d functions share the name %q", len(matches), name),
			"supply file_path to disambiguate",
		)
	}
	return &matches[0], nil
}

func (b *EmbeddedBackend) lookupFunctions(ctx context.Context, snapshotID, name, filePath string) ([]FunctionMetadata, error) {
	script := `
?[name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external] :=
	*rm_function{snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external},
	snapshot_id == $snapshot_id, name == $name
`
	params := map[string]any{"snapshot_id": snapshotID, "name": name}
	if filePath != "" {
		script = `
?[name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external] :=
	*rm_function{snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external},
	snapshot_id == $snapshot_id, name == $name, file_path == $file_path
`
		params["file_path"] = filePath
	}

	res, err := b.Query(ctx, script, params)
	if err != nil {
		return nil, err
	}
	return rowsToMetadata(res), nil
}

func rowsToMetadata(res *QueryResult) []FunctionMetadata {
	out := make([]FunctionMetadata, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, FunctionMetadata{
			Name:                 asString(row[0]),
			FilePath:             asString(row[1]),
			Content:              asString(row[2]),
			Language:             asString(row[3]),
			StartLine:            asInt(row[4]),
			EndLine:              asInt(row[5]),
			CyclomaticComplexity: asInt(row[6]),
			ReturnType:           asString(row[7]),
			Parameters:           asString(row[8]),
			IsEntryPoint:         asBool(row[9]),
			Confidence:           asFloat(row[10]),
			IsExternal:           asBool(row[11]),
		})
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// ListFunctionInfoByFile returns every function defined in filePath.
func (b *EmbeddedBackend) ListFunctionInfoByFile(ctx context.Context, snapshotID, filePath string) ([]FunctionMetadata, error) {
	script := `
?[name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external] :=
	*rm_function{snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external},
	snapshot_id == $snapshot_id, file_path == $file_path
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID, "file_path": filePath})
	if err != nil {
		return nil, err
	}
	return rowsToMetadata(res), nil
}

// SearchFunctions matches name against a glob/wildcard pattern.
func (b *EmbeddedBackend) SearchFunctions(ctx context.Context, snapshotID, pattern string) ([]FunctionMetadata, error) {
	all, err := b.allFunctions(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	var out []FunctionMetadata
	for _, f := range all {
		if ok, _ := filepath.Match(pattern, f.Name); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (b *EmbeddedBackend) allFunctions(ctx context.Context, snapshotID string) ([]FunctionMetadata, error) {
	script := `
?[name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external] :=
	*rm_function{snapshot_id, name, file_path, content, language, start_line, end_line, cyclomatic_complexity, return_type, parameters, is_entry_point, confidence, is_external},
	snapshot_id == $snapshot_id
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	return rowsToMetadata(res), nil
}

// GetCallers returns every function that calls (name, filePath).
func (b *EmbeddedBackend) GetCallers(ctx context.Context, snapshotID, name, filePath string) ([]CallRef, error) {
	targetID, err := b.resolveID(ctx, snapshotID, name, filePath)
	if err != nil || targetID == "" {
		return nil, err
	}
	script := `
?[caller_name, caller_file_path, call_type, confidence] :=
	*rm_calls{snapshot_id, callee_id, caller_name, caller_file_path, call_type, confidence},
	snapshot_id == $snapshot_id, callee_id == $callee_id
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID, "callee_id": targetID})
	if err != nil {
		return nil, err
	}
	return rowsToCallRefs(res), nil
}

// GetCallees returns every function (name, filePath) calls.
func (b *EmbeddedBackend) GetCallees(ctx context.Context, snapshotID, name, filePath string) ([]CallRef, error) {
	callerID, err := b.resolveID(ctx, snapshotID, name, filePath)
	if err != nil || callerID == "" {
		return nil, err
	}
	script := `
?[callee_name, callee_file_path, call_type, confidence] :=
	*rm_calls{snapshot_id, caller_id, callee_name, callee_file_path, call_type, confidence},
	snapshot_id == $snapshot_id, caller_id == $caller_id
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID, "caller_id": callerID})
	if err != nil {
		return nil, err
	}
	return rowsToCallRefs(res), nil
}

func rowsToCallRefs(res *QueryResult) []CallRef {
	out := make([]CallRef, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, CallRef{
			Name: asString(row[0]), FilePath: asString(row[1]),
			CallType: asString(row[2]), Confidence: asFloat(row[3]),
		})
	}
	return out
}

func (b *EmbeddedBackend) resolveID(ctx context.Context, snapshotID, name, filePath string) (string, error) {
	matches, err := b.lookupFunctions(ctx, snapshotID, name, filePath)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	if len(matches) > 1 && filePath == "" {
		return "", rmerrors.NewAmbiguousFunctionError(
			fmt.Sprintf("function %q is ambiguous in this snapshot", name),
			fmt.Sprintf("%d functions share the name %q", len(matches), name),
			"supply file_path to disambiguate",
		)
	}
	m := matches[0]
	return functionID(snapshotID, m.Name, m.FilePath), nil
}

// calleeEdge is one outgoing CALLS edge as discovered during BFS.
type calleeEdge struct {
	id, name, filePath, callType string
	confidence                   float64
}

// calleesOf fetches and caches the outgoing edges of a function id,
// mirroring pkg/tools/trace.go's calleesCache (one query per distinct
// node visited, not per edge traversal).
func (b *EmbeddedBackend) calleesOf(ctx context.Context, snapshotID, fnID string, cache map[string][]calleeEdge) ([]calleeEdge, error) {
	if cached, ok := cache[fnID]; ok {
		return cached, nil
	}
	script := `
?[callee_id, callee_name, callee_file_path, call_type, confidence] :=
	*rm_calls{snapshot_id, caller_id, callee_id, callee_name, callee_file_path, call_type, confidence},
	snapshot_id == $snapshot_id, caller_id == $caller_id
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID, "caller_id": fnID})
	if err != nil {
		return nil, err
	}
	edges := make([]calleeEdge, 0, len(res.Rows))
	for _, row := range res.Rows {
		edges = append(edges, calleeEdge{
			id: asString(row[0]), name: asString(row[1]), filePath: asString(row[2]),
			callType: asString(row[3]), confidence: asFloat(row[4]),
		})
	}
	cache[fnID] = edges
	return edges, nil
}

// pathState tracks one in-progress BFS path.
type pathState struct {
	fnID string
	path []PathHop
}

// ShortestPath returns all minimum-length paths from -> to, bounded by
// maxDepth (-1 unbounded) and maxResults (-1 unbounded); nil when
// unreachable (spec.md §4.9, §8 boundary behaviors: "returns None, not an
// error").
func (b *EmbeddedBackend) ShortestPath(ctx context.Context, snapshotID, fromName, fromFile, toName, toFile string, maxDepth, maxResults int) ([][]PathHop, error) {
	fromID, err := b.resolveID(ctx, snapshotID, fromName, fromFile)
	if err != nil || fromID == "" {
		return nil, err
	}
	toID, err := b.resolveID(ctx, snapshotID, toName, toFile)
	if err != nil || toID == "" {
		return nil, err
	}

	paths, _, err := b.bfsPaths(ctx, snapshotID, fromID, fromName, fromFile, toID, maxDepth, maxResults, true)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// GetAllPaths returns every path from -> to ordered by length ascending,
// bounded by maxDepth/maxResults.
func (b *EmbeddedBackend) GetAllPaths(ctx context.Context, snapshotID, fromName, fromFile, toName, toFile string, maxDepth, maxResults int) ([][]PathHop, error) {
	fromID, err := b.resolveID(ctx, snapshotID, fromName, fromFile)
	if err != nil || fromID == "" {
		return nil, err
	}
	toID, err := b.resolveID(ctx, snapshotID, toName, toFile)
	if err != nil || toID == "" {
		return nil, err
	}

	paths, _, err := b.bfsPaths(ctx, snapshotID, fromID, fromName, fromFile, toID, maxDepth, maxResults, false)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// bfsPaths performs a breadth-first search collecting every path from
// fromID to toID. When shortestOnly is set, search stops expanding once
// the first depth at which toID is found has been fully processed (all
// minimum-length paths collected, no longer ones). Grounded on
// pkg/tools/trace.go's TracePath.
func (b *EmbeddedBackend) bfsPaths(ctx context.Context, snapshotID, fromID, fromName, fromFile, toID string, maxDepth, maxResults int, shortestOnly bool) ([][]PathHop, int, error) {
	if maxDepth < 0 {
		maxDepth = maxNodesExplored
	}
	cache := make(map[string][]calleeEdge)
	queue := []pathState{{fnID: fromID, path: []PathHop{{Name: fromName, FilePath: fromFile}}}}

	var results [][]PathHop
	explored := 0
	queries := 0
	foundDepth := -1

	for len(queue) > 0 {
		if explored%100 == 0 {
			select {
			case <-ctx.Done():
				return results, explored, ctx.Err()
			default:
			}
		}
		cur := queue[0]
		queue = queue[1:]
		explored++
		if explored > maxNodesExplored {
			break
		}
		depth := len(cur.path) - 1
		if shortestOnly && foundDepth >= 0 && depth >= foundDepth {
			break
		}
		if depth >= maxDepth {
			continue
		}
		if queries >= maxQueriesPerSource {
			break
		}
		queries++

		edges, err := b.calleesOf(ctx, snapshotID, cur.fnID, cache)
		if err != nil {
			return nil, explored, err
		}
		for _, e := range edges {
			nextPath := append(append([]PathHop{}, cur.path...), PathHop{Name: e.name, FilePath: e.filePath})
			if e.id == toID {
				if foundDepth < 0 {
					foundDepth = depth + 1
				}
				results = append(results, nextPath)
				if maxResults > 0 && len(results) >= maxResults {
					return results, explored, nil
				}
				continue
			}
			queue = append(queue, pathState{fnID: e.id, path: nextPath})
		}
	}

	sort.Slice(results, func(i, j int) bool { return len(results[i]) < len(results[j]) })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, explored, nil
}

// GetSubtree returns the local N-hop subgraph rooted at (name, filePath)
// for visualization.
func (b *EmbeddedBackend) GetSubtree(ctx context.Context, snapshotID, name, filePath string, depth int) ([]PathHop, error) {
	rootID, err := b.resolveID(ctx, snapshotID, name, filePath)
	if err != nil || rootID == "" {
		return nil, err
	}

	visited := map[string]bool{rootID: true}
	order := []PathHop{{Name: name, FilePath: filePath}}
	frontier := []string{rootID}
	cache := make(map[string][]calleeEdge)

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			edges, err := b.calleesOf(ctx, snapshotID, id, cache)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if visited[e.id] {
					continue
				}
				visited[e.id] = true
				order = append(order, PathHop{Name: e.name, FilePath: e.filePath})
				next = append(next, e.id)
			}
		}
		frontier = next
	}
	return order, nil
}

// ReachableFunctionsByOneFuzzer returns functions reachable by fuzzerName,
// optionally filtered to an exact depth or bounded by maxDepth.
func (b *EmbeddedBackend) ReachableFunctionsByOneFuzzer(ctx context.Context, snapshotID, fuzzerName string, depthEq, maxDepth *int) ([]ReachesTriple, error) {
	script := `
?[function_name, function_file_path, depth] :=
	*rm_fuzzer{id: fuzzer_id, snapshot_id, name},
	*rm_reaches{snapshot_id, fuzzer_id, function_name, function_file_path, depth},
	snapshot_id == $snapshot_id, name == $name
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID, "name": fuzzerName})
	if err != nil {
		return nil, err
	}
	var out []ReachesTriple
	for _, row := range res.Rows {
		d := asInt(row[2])
		if depthEq != nil && d != *depthEq {
			continue
		}
		if maxDepth != nil && d > *maxDepth {
			continue
		}
		out = append(out, ReachesTriple{
			FuzzerName: fuzzerName, FunctionName: asString(row[0]), FunctionFilePath: asString(row[1]), Depth: d,
		})
	}
	return out, nil
}

// UnreachedFunctionsByAllFuzzers returns functions with no REACHES edge
// from any fuzzer in the snapshot. External nodes and entry-point
// functions (never REACHES targets) are not listed.
func (b *EmbeddedBackend) UnreachedFunctionsByAllFuzzers(ctx context.Context, snapshotID string) ([]FunctionMetadata, error) {
	all, err := b.allFunctions(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	script := `
?[function_name, function_file_path] := *rm_reaches{snapshot_id, function_name, function_file_path}, snapshot_id == $snapshot_id
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	reached := make(map[string]bool, len(res.Rows))
	for _, row := range res.Rows {
		reached[asString(row[0])+"|"+asString(row[1])] = true
	}

	var out []FunctionMetadata
	for _, f := range all {
		if f.IsExternal || f.IsEntryPoint {
			continue
		}
		if !reached[f.Name+"|"+f.FilePath] {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListFuzzerInfoNoCode returns every Fuzzer node's name and entry
// function. Fuzzer source files are not stored in the graph, so FilePaths
// is left empty.
func (b *EmbeddedBackend) ListFuzzerInfoNoCode(ctx context.Context, snapshotID string) ([]FuzzerMetadata, error) {
	script := `
?[name, entry_function] := *rm_fuzzer{snapshot_id, name, entry_function}, snapshot_id == $snapshot_id
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	out := make([]FuzzerMetadata, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, FuzzerMetadata{Name: asString(row[0]), EntryFunction: asString(row[1])})
	}
	return out, nil
}

// GetFuzzerMetadata returns the full metadata record for one fuzzer,
// including its entry function's file_path.
func (b *EmbeddedBackend) GetFuzzerMetadata(ctx context.Context, snapshotID, fuzzerName string) (*FuzzerMetadata, error) {
	script := `
?[name, entry_function, focus] := *rm_fuzzer{snapshot_id, name, entry_function, focus}, snapshot_id == $snapshot_id, name == $name
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID, "name": fuzzerName})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	row := res.Rows[0]
	meta := &FuzzerMetadata{Name: asString(row[0]), EntryFunction: asString(row[1]), Focus: asString(row[2])}

	entryScript := `
?[file_path] :=
	*rm_fuzzer{id: fuzzer_id, snapshot_id, name},
	*rm_entry{fuzzer_id, snapshot_id, function_id},
	*rm_function{id: function_id, file_path},
	snapshot_id == $snapshot_id, name == $name
`
	entryRes, err := b.Query(ctx, entryScript, map[string]any{"snapshot_id": snapshotID, "name": fuzzerName})
	if err != nil {
		return nil, err
	}
	if len(entryRes.Rows) > 0 {
		meta.EntryFilePath = asString(entryRes.Rows[0][0])
	}
	return meta, nil
}

// ListExternalFunctionNames returns the names of every External node.
func (b *EmbeddedBackend) ListExternalFunctionNames(ctx context.Context, snapshotID string) ([]string, error) {
	script := `
?[name] := *rm_function{snapshot_id, name, is_external}, snapshot_id == $snapshot_id, is_external == true
`
	res, err := b.Query(ctx, script, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		names = append(names, asString(row[0]))
	}
	return names, nil
}

// GetSnapshotStatistics answers counts, depth distribution, and fuzzer
// cardinality for the snapshot.
func (b *EmbeddedBackend) GetSnapshotStatistics(ctx context.Context, snapshotID string) (*SnapshotStatistics, error) {
	stats := &SnapshotStatistics{DepthHistogram: map[int]int{}}

	all, err := b.allFunctions(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	for _, f := range all {
		if f.IsExternal {
			stats.ExternalCount++
		} else {
			stats.FunctionCount++
		}
	}

	callsScript := `?[id] := *rm_calls{id, snapshot_id}, snapshot_id == $snapshot_id`
	callsRes, err := b.Query(ctx, callsScript, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	stats.CallEdgeCount = len(callsRes.Rows)

	fuzzersScript := `?[id] := *rm_fuzzer{id, snapshot_id}, snapshot_id == $snapshot_id`
	fuzzersRes, err := b.Query(ctx, fuzzersScript, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	stats.FuzzerCount = len(fuzzersRes.Rows)

	reachesScript := `?[depth] := *rm_reaches{snapshot_id, depth}, snapshot_id == $snapshot_id`
	reachesRes, err := b.Query(ctx, reachesScript, map[string]any{"snapshot_id": snapshotID})
	if err != nil {
		return nil, err
	}
	stats.ReachesEdgeCount = len(reachesRes.Rows)
	for _, row := range reachesRes.Rows {
		stats.DepthHistogram[asInt(row[0])]++
	}

	return stats, nil
}

// RawQuery is the escape hatch of spec.md §4.9: an arbitrary Datalog
// script executed read-only against this backend.
func (b *EmbeddedBackend) RawQuery(ctx context.Context, script string, params map[string]any) (*QueryResult, error) {
	return b.Query(ctx, script, params)
}
