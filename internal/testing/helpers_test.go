// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestGraph_StartsEmpty(t *testing.T) {
	backend := SetupTestGraph(t)
	require.NotNil(t, backend)

	result, err := backend.Query(context.Background(), "?[id] := *rm_function{id}", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestSeedFunction_Inserted(t *testing.T) {
	backend := SetupTestGraph(t)
	SeedSnapshot(t, backend, "snap1", "https://example.com/lib.git", "v1.0.0", "svf")
	SeedFunction(t, backend, "snap1", "parse_input", "parse.c", 10, 25)

	result, err := backend.Query(context.Background(), "?[name] := *rm_function{snapshot_id: \"snap1\", name}", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "parse_input", result.Rows[0][0])
}

func TestSeedCallAndFuzzer_BuildsReachableGraph(t *testing.T) {
	backend := SetupTestGraph(t)
	SeedSnapshot(t, backend, "snap1", "https://example.com/lib.git", "v1.0.0", "svf")
	SeedFunction(t, backend, "snap1", "parse_input", "parse.c", 10, 25)
	SeedFunction(t, backend, "snap1", "free_buffer", "alloc.c", 5, 9)
	SeedCall(t, backend, "snap1", "parse_input", "free_buffer")
	SeedFuzzer(t, backend, "snap1", "fuzz_parse", "LLVMFuzzerTestOneInput", []string{"parse_input"})
	SeedReaches(t, backend, "snap1", "fuzz_parse", "parse_input", 1)
	SeedReaches(t, backend, "snap1", "fuzz_parse", "free_buffer", 2)

	result, err := backend.Query(context.Background(), "?[depth] := *rm_reaches{snapshot_id: \"snap1\", function_name: \"free_buffer\", depth}", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 2, result.Rows[0][0])
}

func TestSetupTestGraph_IsolatesBetweenInstances(t *testing.T) {
	b1 := SetupTestGraph(t)
	SeedSnapshot(t, b1, "snap1", "https://example.com/a.git", "v1", "svf")
	SeedFunction(t, b1, "snap1", "only_in_b1", "a.c", 1, 2)

	b2 := SetupTestGraph(t)
	result, err := b2.Query(context.Background(), "?[id] := *rm_function{id}", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestSetupTestCatalog_AdmitsFreshKey(t *testing.T) {
	cat := SetupTestCatalog(t)
	acq, err := cat.AcquireOrWait(context.Background(), "https://example.com/lib.git", "v1.0.0", "svf")
	require.NoError(t, err)
	assert.NotEmpty(t, acq.Record.ID)
}
