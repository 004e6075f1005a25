// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package logsink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func TestEmitAndRead_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), noopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Info("snap1", PhaseProbe, "detected language", map[string]any{"language": "c"}))
	require.NoError(t, s.Warn("snap1", PhaseProbe, "missing compiler wrapper hook", nil))
	require.NoError(t, s.Info("snap1", PhaseBitcode, "build started", nil))

	probeEvents, err := s.Read("snap1", PhaseProbe)
	require.NoError(t, err)
	require.Len(t, probeEvents, 2)
	require.Equal(t, "warn", probeEvents[1].Level)

	bitcodeEvents, err := s.Read("snap1", PhaseBitcode)
	require.NoError(t, err)
	require.Len(t, bitcodeEvents, 1)
}

func TestDeleteSnapshotLogs_RemovesAllPhaseFiles(t *testing.T) {
	s, err := New(t.TempDir(), noopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Info("snap2", PhaseProbe, "start", nil))
	require.NoError(t, s.Info("snap2", PhaseImport, "committed", nil))
	require.NoError(t, s.DeleteSnapshotLogs("snap2"))

	events, err := s.Read("snap2", PhaseProbe)
	require.NoError(t, err)
	require.Nil(t, events)
}
