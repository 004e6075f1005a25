// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosureFrom_FindsLibraryLeafCalls(t *testing.T) {
	ff := &fileFunctions{defined: map[string][]string{
		"LLVMFuzzerTestOneInput": {"setup_helper", "parse_input"},
		"setup_helper":           {"malloc"},
	}}

	closure := closureFrom(ff, "LLVMFuzzerTestOneInput")
	require.True(t, closure["parse_input"])
	require.True(t, closure["malloc"])
	require.False(t, closure["setup_helper"])
}

func TestClosureFrom_HandlesCycles(t *testing.T) {
	ff := &fileFunctions{defined: map[string][]string{
		"entry": {"helper"},
		"helper": {"entry", "target"},
	}}

	closure := closureFrom(ff, "entry")
	require.True(t, closure["target"])
}

func TestResolve_UnionsSharedTemplateFile(t *testing.T) {
	p := New()
	libFns := map[string]bool{"target_a": true, "target_b": true}

	parsedFiles := map[string]*fileFunctions{
		"shared.c": {defined: map[string][]string{
			"fuzz_entry": {"target_a", "target_b"},
		}},
	}
	// Exercise the same union-by-file logic Resolve uses internally,
	// without touching the filesystem or tree-sitter.
	h1 := Harness{FuzzerName: "fuzz_a", EntryFunction: "fuzz_entry", Files: []string{"shared.c"}}
	h2 := Harness{FuzzerName: "fuzz_b", EntryFunction: "fuzz_entry", Files: []string{"shared.c"}}

	for _, h := range []Harness{h1, h2} {
		closure := closureFrom(parsedFiles[h.Files[0]], h.EntryFunction)
		var found []string
		for name := range closure {
			if libFns[name] {
				found = append(found, name)
			}
		}
		require.Len(t, found, 2)
	}
	_ = p
}
