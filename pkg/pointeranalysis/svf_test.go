// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pointeranalysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCallGraphDump_DirectAndIndirect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callgraph.txt")
	content := "# callgraph\nmain -> parse_input [direct]\nparse_input -> handler_cb [indirect] (0.65)\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	edges, functions, warnings, err := parseCallGraphDump(path)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, edges, 2)
	require.Len(t, functions, 3)

	require.Equal(t, "direct", edges[0].CallType)
	require.Equal(t, 1.0, edges[0].Confidence)
	require.Equal(t, "fptr", edges[1].CallType)
	require.Equal(t, 0.65, edges[1].Confidence)
}

func TestParseCallGraphDump_WarnsOnUnparsedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callgraph.txt")
	require.NoError(t, os.WriteFile(path, []byte("garbage line\n"), 0o644))

	_, _, warnings, err := parseCallGraphDump(path)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}
