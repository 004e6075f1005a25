// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/reachmap/pkg/bitcode"
	"github.com/kraklabs/reachmap/pkg/buildcmd"
	"github.com/kraklabs/reachmap/pkg/catalog"
	"github.com/kraklabs/reachmap/pkg/graphstore"
	"github.com/kraklabs/reachmap/pkg/harness"
	"github.com/kraklabs/reachmap/pkg/pointeranalysis"
	"github.com/kraklabs/reachmap/pkg/probe"
	"github.com/kraklabs/reachmap/pkg/reaches"
	"github.com/kraklabs/reachmap/pkg/refiner"
)

// fakeGraph records every write so tests can assert on commit ordering and
// content without a real CozoDB instance.
type fakeGraph struct {
	snapshotCreated bool
	functions       []graphstore.FunctionRecord
	edges           []graphstore.CallEdge
	fuzzers         []graphstore.FuzzerInfo
	reachesTriples  []graphstore.ReachesTriple
	failImportEdges bool
}

func (f *fakeGraph) CreateSnapshotNode(ctx context.Context, id, repoURL, version, backend string) error {
	f.snapshotCreated = true
	return nil
}
func (f *fakeGraph) ImportFunctions(ctx context.Context, snapshotID string, functions []graphstore.FunctionRecord) (int, error) {
	f.functions = functions
	return len(functions), nil
}
func (f *fakeGraph) ImportEdges(ctx context.Context, snapshotID string, edges []graphstore.CallEdge) (int, error) {
	if f.failImportEdges {
		return 0, assertErrImportEdges
	}
	f.edges = edges
	return len(edges), nil
}
func (f *fakeGraph) ImportFuzzers(ctx context.Context, snapshotID string, fuzzers []graphstore.FuzzerInfo) (int, error) {
	f.fuzzers = fuzzers
	return len(fuzzers), nil
}
func (f *fakeGraph) ImportReaches(ctx context.Context, snapshotID string, triples []graphstore.ReachesTriple) (int, error) {
	f.reachesTriples = triples
	return len(triples), nil
}
func (f *fakeGraph) DeleteSnapshot(ctx context.Context, snapshotID string) error { return nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

const assertErrImportEdges assertErr = "import edges failed"

// fakeAnalysisBackend is a stub pointeranalysis.Backend returning a fixed
// two-function, one-edge call graph.
type fakeAnalysisBackend struct {
	failAnalyze bool
}

func (f *fakeAnalysisBackend) Name() string                  { return "fake" }
func (f *fakeAnalysisBackend) SupportedLanguages() []string  { return []string{"c"} }
func (f *fakeAnalysisBackend) CheckPrerequisites(ctx context.Context) []string { return nil }
func (f *fakeAnalysisBackend) Analyze(ctx context.Context, bcPath, language string, options map[string]any) (*pointeranalysis.AnalysisResult, error) {
	if f.failAnalyze {
		return nil, assertErr("analysis backend unavailable")
	}
	return &pointeranalysis.AnalysisResult{
		Functions: []pointeranalysis.FunctionResult{
			{IRName: "parse_input", CyclomaticComplexity: 3},
			{IRName: "free_buffer", CyclomaticComplexity: 1},
		},
		Edges: []pointeranalysis.EdgeResult{
			{CallerIRName: "parse_input", CalleeIRName: "free_buffer", CallType: "direct", Confidence: 1.0},
		},
		Language: language,
		Backend:  "fake",
	}, nil
}

func newTestOrchestrator(t *testing.T, graph GraphWriter, analysis pointeranalysis.Backend) *Orchestrator {
	t.Helper()
	cat, err := catalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	o := New(
		cat,
		graph,
		nil,
		probe.New(),
		buildcmd.New(),
		nil, // Bitcode.Build is stubbed per-test via an override below
		analysis,
		harness.New(),
		reaches.New(0),
		refiner.Noop{},
		t.TempDir(),
	)
	return o
}

// TestJoinAndCommit_WritesInSpecOrder drives joinAnalysisWithMeta and
// commit directly (bypassing build() and its bitcode/probe/build-command
// phases, which need real toolchains) to
// verify the join and commit logic: functions import before edges, edges
// resolve only for endpoints with a known identity, and reaches triples
// derive from the joined call graph.
func TestJoinAndCommit_WritesInSpecOrder(t *testing.T) {
	graph := &fakeGraph{}
	analysis := &fakeAnalysisBackend{}
	o := newTestOrchestrator(t, graph, analysis)

	ticket := Ticket{
		RepoURL: "https://example.com/libparse.git",
		Version: "v1.2.3",
		FuzzerSources: map[string][]string{
			"fuzz_parse": {"fuzz/fuzz_parse.c"},
		},
	}

	res, err := analysis.Analyze(context.Background(), "", "c", nil)
	require.NoError(t, err)

	functions, externals, reachesEdges, fuzzerEntries := joinAnalysisWithMeta(
		res, nil, ticket.FuzzerSources, map[string][]string{"fuzz_parse": {"parse_input"}}, "fake", "c",
	)
	assert.Empty(t, functions) // no metaByIR entries -> every symbol becomes External
	assert.Len(t, externals, 2)

	triples := o.Reaches.Compute(reachesEdges, fuzzerEntries)

	nodeCount, edgeCount, err := o.commit(context.Background(), "snap-1", ticket, "fake", functions, externals, res.Edges, fuzzerEntries, triples)
	require.NoError(t, err)

	assert.True(t, graph.snapshotCreated)
	assert.Len(t, graph.functions, 2)
	assert.Len(t, graph.edges, 1)
	assert.Len(t, graph.fuzzers, 1)
	assert.Equal(t, "fuzz_parse", graph.fuzzers[0].Name)

	// 2 externals + 1 entry Function node + 1 Fuzzer node per fuzzer;
	// 1 CALLS edge + 1 ENTRY edge + 1 harness CALLS edge + 2 REACHES triples
	// (parse_input at depth 1, free_buffer at depth 2 via the resolved
	// library call graph).
	assert.EqualValues(t, 4, nodeCount)
	assert.EqualValues(t, 5, edgeCount)
}

func TestCommit_PropagatesGraphStoreErrorAsUserError(t *testing.T) {
	graph := &fakeGraph{failImportEdges: true}
	analysis := &fakeAnalysisBackend{}
	o := newTestOrchestrator(t, graph, analysis)

	ticket := Ticket{RepoURL: "https://example.com/libparse.git", Version: "v1.0.0"}
	_, _, err := o.commit(context.Background(), "snap-2", ticket, "fake", nil, nil, []pointeranalysis.EdgeResult{
		{CallerIRName: "a", CalleeIRName: "b", CallType: "direct"},
	}, nil, nil)
	require.Error(t, err)
}

// TestRealHarnessWiring_DistinctEntriesAndTransitiveDepths drives
// harness.Parser.Resolve against two real on-disk harness files that both
// define the canonical libFuzzer entry symbol, then joins the result with a
// three-hop library call chain. It asserts the two fuzzers commit distinct
// entry file_paths (same entry symbol, different harness source) and that
// the library functions reachable only transitively get their correct
// minimal BFS depth.
func TestRealHarnessWiring_DistinctEntriesAndTransitiveDepths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fuzz"), 0o755))

	const source = `
int LLVMFuzzerTestOneInput(const unsigned char *data, unsigned long size) {
	parse_input(data, size);
	return 0;
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "fuzz", "a.c"), []byte(source), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fuzz", "b.c"), []byte(source), 0o644))

	harnesses := []harness.Harness{
		{FuzzerName: "fuzz_a", EntryFunction: fuzzEntrySymbol, Files: []string{"fuzz/a.c"}},
		{FuzzerName: "fuzz_b", EntryFunction: fuzzEntrySymbol, Files: []string{"fuzz/b.c"}},
	}
	closures, err := harness.New().Resolve(context.Background(), root, harnesses, map[string]bool{"parse_input": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"parse_input"}, closures["fuzz_a"])
	assert.Equal(t, []string{"parse_input"}, closures["fuzz_b"])

	fuzzerSources := map[string][]string{
		"fuzz_a": {"fuzz/a.c"},
		"fuzz_b": {"fuzz/b.c"},
	}

	// parse_input -> helper_step -> deep_step: deep_step is reachable only
	// transitively, never listed as a direct harness call target.
	analysis := &pointeranalysis.AnalysisResult{
		Functions: []pointeranalysis.FunctionResult{
			{IRName: "parse_input_ir"},
			{IRName: "helper_step_ir"},
			{IRName: "deep_step_ir"},
		},
		Edges: []pointeranalysis.EdgeResult{
			{CallerIRName: "parse_input_ir", CalleeIRName: "helper_step_ir", CallType: "direct"},
			{CallerIRName: "helper_step_ir", CalleeIRName: "deep_step_ir", CallType: "direct"},
		},
	}
	metaByIR := map[string]bitcode.FunctionMeta{
		"parse_input_ir": {IRName: "parse_input_ir", OriginalName: "parse_input", FilePath: "lib/parse.c"},
		"helper_step_ir": {IRName: "helper_step_ir", OriginalName: "helper_step", FilePath: "lib/parse.c"},
		"deep_step_ir":   {IRName: "deep_step_ir", OriginalName: "deep_step", FilePath: "lib/parse.c"},
	}

	functions, _, reachesEdges, fuzzerEntries := joinAnalysisWithMeta(
		analysis, metaByIR, fuzzerSources, closures, "fake", "c",
	)
	assert.Len(t, functions, 3)
	require.Len(t, fuzzerEntries, 2)

	byName := make(map[string]reaches.FunctionKey, len(fuzzerEntries))
	for _, fz := range fuzzerEntries {
		byName[fz.FuzzerName] = fz.EntryFunction
	}
	assert.Equal(t, "fuzz/a.c", byName["fuzz_a"].FilePath)
	assert.Equal(t, "fuzz/b.c", byName["fuzz_b"].FilePath)
	assert.NotEqual(t, byName["fuzz_a"].FilePath, byName["fuzz_b"].FilePath)
	assert.Equal(t, fuzzEntrySymbol, byName["fuzz_a"].Name)
	assert.Equal(t, fuzzEntrySymbol, byName["fuzz_b"].Name)

	triples := reaches.New(0).Compute(reachesEdges, fuzzerEntries)
	depthFor := func(fuzzer, fn string) int {
		for _, tr := range triples {
			if tr.FuzzerName == fuzzer && tr.FunctionName == fn {
				return tr.Depth
			}
		}
		t.Fatalf("no triple for fuzzer=%s fn=%s", fuzzer, fn)
		return -1
	}
	for _, fz := range []string{"fuzz_a", "fuzz_b"} {
		assert.Equal(t, 1, depthFor(fz, "parse_input"))
		assert.Equal(t, 2, depthFor(fz, "helper_step"))
		assert.Equal(t, 3, depthFor(fz, "deep_step"))
	}
}

func TestRun_RejectsInvalidTicket(t *testing.T) {
	graph := &fakeGraph{}
	o := newTestOrchestrator(t, graph, &fakeAnalysisBackend{})

	_, err := o.Run(context.Background(), Ticket{RepoURL: "https://example.com/x.git", Version: "main"})
	require.Error(t, err)
	assert.False(t, graph.snapshotCreated)
}

func TestRun_CacheHitReturnsWithoutRebuilding(t *testing.T) {
	graph := &fakeGraph{}
	o := newTestOrchestrator(t, graph, &fakeAnalysisBackend{})

	ctx := context.Background()
	snapshotID := mustFind(t, o, "https://example.com/x.git", "v1.0.0", "fake")
	require.NoError(t, o.Catalog.MarkCompleted(ctx, snapshotID, 10, 5, []string{"fz"}, 1.0, 100))

	out, err := o.Run(ctx, Ticket{
		RepoURL:       "https://example.com/x.git",
		Version:       "v1.0.0",
		Backend:       "fake",
		FuzzerSources: map[string][]string{"fz": {"a.c"}},
	})
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, 10, out.FunctionCount)
}

func mustFind(t *testing.T, o *Orchestrator, repoURL, version, backend string) string {
	t.Helper()
	acq, err := o.Catalog.AcquireOrWait(context.Background(), repoURL, version, backend)
	require.NoError(t, err)
	return acq.Record.ID
}

func TestValidateGitURL_RejectsInjectionAttempt(t *testing.T) {
	require.Error(t, validateGitURL("https://example.com/repo.git; rm -rf /"))
	require.NoError(t, validateGitURL("https://example.com/repo.git"))
}

func TestCloneAtVersion_RejectsUnreadableWorkDir(t *testing.T) {
	_, err := cloneAtVersion(filepath.Join(t.TempDir(), "missing", "nested"), "https://example.com/repo.git", "v1.0.0")
	require.Error(t, err)
}
