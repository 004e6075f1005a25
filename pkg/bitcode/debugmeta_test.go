// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bitcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFunctionMetas_ResolvesSourceBody(t *testing.T) {
	root := t.TempDir()
	srcPath := filepath.Join(root, "lib.c")
	require.NoError(t, os.WriteFile(srcPath, []byte("int unused_header(void);\n\nint parse_input(const char *s) {\n    if (!s) {\n        return -1;\n    }\n    return 0;\n}\n"), 0o644))

	ir := `!11 = !DIFile(filename: "lib.c", directory: "` + root + `")
!12 = distinct !DISubprogram(name: "parse_input", linkageName: "parse_input", scope: !11, file: !11, line: 3, type: !13, spFlags: DISPFlagDefinition, unit: !0)
`
	irPath := filepath.Join(root, "library.ll")
	require.NoError(t, os.WriteFile(irPath, []byte(ir), 0o644))

	metas, err := ExtractFunctionMetas(irPath, root)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "parse_input", metas[0].OriginalName)
	require.Equal(t, 3, metas[0].StartLine)
	require.Contains(t, metas[0].Content, "return -1;")
	require.Contains(t, metas[0].Content, "return 0;")
}

func TestExtractBody_StopsAtMatchingBrace(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.c")
	content := "int f() {\n    int x = 1;\n}\nint g() {\n    return 2;\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	body, end := extractBody(path, 1)
	require.Equal(t, "int f() {\n    int x = 1;\n}", body)
	require.Equal(t, 3, end)
}
