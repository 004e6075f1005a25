// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package buildcmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_UserScriptWins(t *testing.T) {
	bc, err := New().Resolve("cmake", "scripts/build.sh")
	require.NoError(t, err)
	require.Equal(t, SourceUser, bc.Source)
	require.Equal(t, 1.0, bc.Confidence)
	require.Equal(t, []string{"scripts/build.sh"}, bc.Commands)
}

func TestResolve_AutoDetect(t *testing.T) {
	bc, err := New().Resolve("make", "")
	require.NoError(t, err)
	require.Equal(t, SourceAutoDetect, bc.Source)
	require.Equal(t, 0.8, bc.Confidence)
	require.NotEmpty(t, bc.Commands)
}

func TestResolve_UnknownBuildSystemErrors(t *testing.T) {
	_, err := New().Resolve("unknown", "")
	require.Error(t, err)
}
