// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"context"
	"testing"

	"github.com/kraklabs/reachmap/pkg/catalog"
	"github.com/kraklabs/reachmap/pkg/graphstore"
)

// SetupTestGraph creates an in-memory graph-store backend for testing,
// cleaned up automatically when the test finishes.
func SetupTestGraph(t *testing.T) *graphstore.EmbeddedBackend {
	t.Helper()

	backend, err := graphstore.NewEmbeddedBackend(graphstore.EmbeddedConfig{
		Engine:  "mem",
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create test graph backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// SetupTestCatalog creates an in-memory catalog for testing, cleaned up
// automatically when the test finishes.
func SetupTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test catalog: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

// SeedSnapshot creates the root Snapshot node for id, so queries scoped to
// it find a valid parent.
func SeedSnapshot(t *testing.T, backend *graphstore.EmbeddedBackend, id, repoURL, version, backendName string) {
	t.Helper()
	if err := backend.CreateSnapshotNode(context.Background(), id, repoURL, version, backendName); err != nil {
		t.Fatalf("failed to seed snapshot node: %v", err)
	}
}

// SeedFunction inserts a single attributed Function node.
func SeedFunction(t *testing.T, backend *graphstore.EmbeddedBackend, snapshotID, name, filePath string, startLine, endLine int) {
	t.Helper()
	_, err := backend.ImportFunctions(context.Background(), snapshotID, []graphstore.FunctionRecord{
		{Name: name, FilePath: filePath, Language: "c", StartLine: startLine, EndLine: endLine, Confidence: 1.0},
	})
	if err != nil {
		t.Fatalf("failed to seed function %q: %v", name, err)
	}
}

// SeedExternal inserts a single External node (no source body).
func SeedExternal(t *testing.T, backend *graphstore.EmbeddedBackend, snapshotID, name string) {
	t.Helper()
	_, err := backend.ImportFunctions(context.Background(), snapshotID, []graphstore.FunctionRecord{
		{Name: name, IsExternal: true, Confidence: 0.5},
	})
	if err != nil {
		t.Fatalf("failed to seed external %q: %v", name, err)
	}
}

// SeedCall inserts a direct CALLS edge between two already-seeded functions
// identified by name alone (file_path omitted; callers needing
// disambiguation should use graphstore.ImportEdges directly).
func SeedCall(t *testing.T, backend *graphstore.EmbeddedBackend, snapshotID, callerName, calleeName string) {
	t.Helper()
	_, err := backend.ImportEdges(context.Background(), snapshotID, []graphstore.CallEdge{
		{CallerName: callerName, CalleeName: calleeName, CallType: "direct", Confidence: 1.0, Backend: "test"},
	})
	if err != nil {
		t.Fatalf("failed to seed call edge %s->%s: %v", callerName, calleeName, err)
	}
}

// SeedFuzzer inserts a Fuzzer node, its ENTRY edge, and direct CALLS edges
// to the given library-call targets.
func SeedFuzzer(t *testing.T, backend *graphstore.EmbeddedBackend, snapshotID, name, entryFunction string, targets []string) {
	t.Helper()
	_, err := backend.ImportFuzzers(context.Background(), snapshotID, []graphstore.FuzzerInfo{
		{Name: name, EntryFunction: entryFunction, LibraryCallTargets: targets},
	})
	if err != nil {
		t.Fatalf("failed to seed fuzzer %q: %v", name, err)
	}
}

// SeedReaches inserts a REACHES edge at the given depth.
func SeedReaches(t *testing.T, backend *graphstore.EmbeddedBackend, snapshotID, fuzzerName, functionName string, depth int) {
	t.Helper()
	_, err := backend.ImportReaches(context.Background(), snapshotID, []graphstore.ReachesTriple{
		{FuzzerName: fuzzerName, FunctionName: functionName, Depth: depth},
	})
	if err != nil {
		t.Fatalf("failed to seed reaches edge %s->%s: %v", fuzzerName, functionName, err)
	}
}
