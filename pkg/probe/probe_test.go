// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestRun_DetectsCMakeAndLanguage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "CMakeLists.txt", "project(x)")
	writeFile(t, root, "src/main.cpp", "int main(){return 0;}")
	writeFile(t, root, "src/util.c", "void util(){}")
	writeFile(t, root, "vendor/dep.cpp", "void dep(){}")
	writeFile(t, root, "compile_commands.json", "[]")

	info, err := New().Run(root, nil)
	require.NoError(t, err)
	require.Equal(t, "cmake", info.BuildSystem)
	require.Equal(t, "cpp", info.PrimaryLanguage)
	require.True(t, info.HasCompileCommands)
	require.Len(t, info.SourceFiles, 2)
}

func TestRun_UnknownBuildSystemIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.c", "int main(){return 0;}")

	info, err := New().Run(root, nil)
	require.NoError(t, err)
	require.Equal(t, "unknown", info.BuildSystem)
}

func TestRun_RejectsUnreadableRoot(t *testing.T) {
	_, err := New().Run(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	require.Error(t, err)
}
