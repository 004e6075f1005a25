// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reaches

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fk(name string) FunctionKey { return FunctionKey{Name: name, FilePath: name + ".c"} }

func TestCompute_RecordsMinimumDepth(t *testing.T) {
	edges := []Edge{
		{Caller: fk("a"), Callee: fk("b")},
		{Caller: fk("b"), Callee: fk("c")},
		{Caller: fk("x"), Callee: fk("c")}, // alternate, longer route to c
	}
	fuzzers := []FuzzerEntry{
		{FuzzerName: "fuzz1", EntryFunction: fk("entry"), LibraryCallTargets: []FunctionKey{fk("a")}},
	}

	triples := New(DefaultHopCap).Compute(edges, fuzzers)
	depths := map[string]int{}
	for _, tr := range triples {
		depths[tr.FunctionName] = tr.Depth
	}
	require.Equal(t, 1, depths["a"])
	require.Equal(t, 2, depths["b"])
	require.Equal(t, 3, depths["c"])
}

func TestCompute_ExcludesEntryFunction(t *testing.T) {
	entry := fk("entry")
	edges := []Edge{{Caller: fk("a"), Callee: entry}}
	fuzzers := []FuzzerEntry{
		{FuzzerName: "fuzz1", EntryFunction: entry, LibraryCallTargets: []FunctionKey{fk("a")}},
	}

	triples := New(DefaultHopCap).Compute(edges, fuzzers)
	for _, tr := range triples {
		require.NotEqual(t, entry.Name, tr.FunctionName)
	}
}

func TestCompute_RespectsHopCap(t *testing.T) {
	edges := []Edge{
		{Caller: fk("a"), Callee: fk("b")},
		{Caller: fk("b"), Callee: fk("c")},
	}
	fuzzers := []FuzzerEntry{
		{FuzzerName: "fuzz1", EntryFunction: fk("entry"), LibraryCallTargets: []FunctionKey{fk("a")}},
	}

	triples := New(1).Compute(edges, fuzzers)
	names := map[string]bool{}
	for _, tr := range triples {
		names[tr.FunctionName] = true
	}
	require.True(t, names["a"])
	require.False(t, names["b"], "hop cap of 1 should not explore past the seed depth")
}
