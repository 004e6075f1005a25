// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *EmbeddedBackend {
	t.Helper()
	b, err := NewEmbeddedBackend(EmbeddedConfig{Engine: "mem"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func seedChain(t *testing.T, b *EmbeddedBackend, snapshotID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.CreateSnapshotNode(ctx, snapshotID, "https://example.com/repo.git", "v1", "svf"))

	_, err := b.ImportFunctions(ctx, snapshotID, []FunctionRecord{
		{Name: "a", FilePath: "a.c", Content: "void a(){}", Language: "c", Confidence: 1},
		{Name: "b", FilePath: "b.c", Content: "void b(){}", Language: "c", Confidence: 1},
		{Name: "c", FilePath: "c.c", Content: "void c(){}", Language: "c", Confidence: 1},
		{Name: "unreached", FilePath: "u.c", Content: "void unreached(){}", Language: "c", Confidence: 1},
		{Name: "malloc", FilePath: "", Language: "c", Confidence: 1, IsExternal: true},
	})
	require.NoError(t, err)

	_, err = b.ImportEdges(ctx, snapshotID, []CallEdge{
		{CallerName: "a", CallerFilePath: "a.c", CalleeName: "b", CalleeFilePath: "b.c", CallType: "direct", Confidence: 1, Backend: "svf"},
		{CallerName: "b", CallerFilePath: "b.c", CalleeName: "c", CalleeFilePath: "c.c", CallType: "direct", Confidence: 1, Backend: "svf"},
		{CallerName: "b", CallerFilePath: "b.c", CalleeName: "malloc", CalleeFilePath: "", CallType: "direct", Confidence: 1, Backend: "svf"},
	})
	require.NoError(t, err)

	_, err = b.ImportFuzzers(ctx, snapshotID, []FuzzerInfo{
		{Name: "fuzz_a", EntryFunction: "LLVMFuzzerTestOneInput", EntryFilePath: "fuzz_a.c", Focus: "a", LibraryCallTargets: []string{"a"}},
	})
	require.NoError(t, err)

	_, err = b.ImportReaches(ctx, snapshotID, []ReachesTriple{
		{FuzzerName: "fuzz_a", FunctionName: "a", FunctionFilePath: "a.c", Depth: 1},
		{FuzzerName: "fuzz_a", FunctionName: "b", FunctionFilePath: "b.c", Depth: 2},
		{FuzzerName: "fuzz_a", FunctionName: "c", FunctionFilePath: "c.c", Depth: 3},
	})
	require.NoError(t, err)
}

func TestGetFunctionMetadata_Found(t *testing.T) {
	b := newTestBackend(t)
	seedChain(t, b, "snap1")

	meta, err := b.GetFunctionMetadata(context.Background(), "snap1", "a", "")
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "a.c", meta.FilePath)
}

func TestGetFunctionMetadata_Ambiguous(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.CreateSnapshotNode(ctx, "snap2", "r", "v1", "svf"))
	_, err := b.ImportFunctions(ctx, "snap2", []FunctionRecord{
		{Name: "dup", FilePath: "x.c", Confidence: 1},
		{Name: "dup", FilePath: "y.c", Confidence: 1},
	})
	require.NoError(t, err)

	_, err = b.GetFunctionMetadata(ctx, "snap2", "dup", "")
	require.Error(t, err)
}

func TestShortestPath_FindsMinimalPath(t *testing.T) {
	b := newTestBackend(t)
	seedChain(t, b, "snap3")

	paths, err := b.ShortestPath(context.Background(), "snap3", "a", "a.c", "c", "c.c", -1, -1)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Len(t, paths[0], 3)
}

func TestShortestPath_UnreachableReturnsNilNotError(t *testing.T) {
	b := newTestBackend(t)
	seedChain(t, b, "snap4")

	paths, err := b.ShortestPath(context.Background(), "snap4", "c", "c.c", "a", "a.c", -1, -1)
	require.NoError(t, err)
	require.Nil(t, paths)
}

func TestUnreachedFunctionsByAllFuzzers(t *testing.T) {
	b := newTestBackend(t)
	seedChain(t, b, "snap5")

	unreached, err := b.UnreachedFunctionsByAllFuzzers(context.Background(), "snap5")
	require.NoError(t, err)
	require.Len(t, unreached, 1)
	require.Equal(t, "unreached", unreached[0].Name)
}

func TestGetSnapshotStatistics(t *testing.T) {
	b := newTestBackend(t)
	seedChain(t, b, "snap6")

	stats, err := b.GetSnapshotStatistics(context.Background(), "snap6")
	require.NoError(t, err)
	// Four seeded functions plus the entry Function node ImportFuzzers adds.
	require.Equal(t, 5, stats.FunctionCount)
	require.Equal(t, 1, stats.ExternalCount)
	require.Equal(t, 1, stats.FuzzerCount)
	require.Equal(t, 3, stats.ReachesEdgeCount)
}

func TestDeleteSnapshot_RemovesEverything(t *testing.T) {
	b := newTestBackend(t)
	seedChain(t, b, "snap7")

	require.NoError(t, b.DeleteSnapshot(context.Background(), "snap7"))

	stats, err := b.GetSnapshotStatistics(context.Background(), "snap7")
	require.NoError(t, err)
	require.Equal(t, 0, stats.FunctionCount)
	require.Equal(t, 0, stats.ReachesEdgeCount)
}
