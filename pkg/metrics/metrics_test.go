// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAdmission_IncrementsLabeledCounter(t *testing.T) {
	RecordAdmission("hit")
	RecordAdmission("hit")
	RecordAdmission("own")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.admissionOutcomes.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.admissionOutcomes.WithLabelValues("own")))
}

func TestRecordEviction_IncrementsLabeledCounter(t *testing.T) {
	RecordEviction("ttl")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.evictions.WithLabelValues("ttl")))
}

func TestSetGraphSize_SetsGauges(t *testing.T) {
	SetGraphSize(10, 4, 2)
	assert.Equal(t, float64(10), testutil.ToFloat64(m.graphFunctions))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.graphEdges))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.graphFuzzers))
}

func TestObservePhaseDuration_DoesNotPanicBeforeInit(t *testing.T) {
	require.NotPanics(t, func() {
		ObservePhaseDuration("probe", 1.5)
		RecordPhaseFailure("probe")
		ObserveBFSQueueDepth(3)
	})
}
