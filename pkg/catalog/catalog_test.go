// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAcquireOrWait_SingleOwner(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	assert.Equal(t, Own, res.Outcome)
	assert.Equal(t, StatusBuilding, res.Record.Status)
}

// TestAcquireOrWait_AdmissionRace reproduces scenario S1: two concurrent
// callers for the same key; exactly one observes Own.
func TestAcquireOrWait_AdmissionRace(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
			require.NoError(t, err)
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	ownCount := 0
	for _, o := range outcomes {
		if o == Own {
			ownCount++
		}
		assert.Contains(t, []Outcome{Own, Wait}, o)
	}
	assert.Equal(t, 1, ownCount)
}

func TestAcquireOrWait_HitAfterCompletion(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	require.Equal(t, Own, res.Outcome)

	err = c.MarkCompleted(ctx, res.Record.ID, 10, 20, []string{"fz"}, 1.5, 4096)
	require.NoError(t, err)

	hit, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	assert.Equal(t, Hit, hit.Outcome)
	assert.Equal(t, res.Record.ID, hit.Record.ID)
	assert.Equal(t, int64(10), hit.Record.NodeCount)
	assert.Equal(t, int64(20), hit.Record.EdgeCount)
	assert.Equal(t, []string{"fz"}, hit.Record.FuzzerNames)
}

func TestMarkCompleted_RejectsNonBuilding(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	require.NoError(t, c.MarkFailed(ctx, res.Record.ID, "boom"))

	// mark_completed(mark_failed(id, ...)) must be rejected: the row is no
	// longer in building, so this is a no-op rather than an error.
	require.NoError(t, c.MarkCompleted(ctx, res.Record.ID, 1, 1, nil, 0.1, 1))

	rec, err := c.Get(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
}

func TestAcquireOrWait_FailedRowIsReplacedWithFreshSnapshotID(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	first, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	require.NoError(t, c.MarkFailed(ctx, first.Record.ID, "boom"))

	second, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	assert.Equal(t, Own, second.Outcome)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)
}

func TestAcquireOrWait_StaleBuilderReaped(t *testing.T) {
	c, err := Open(":memory:", WithStaleDeadline(10*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	first, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	require.Equal(t, Own, first.Outcome)

	time.Sleep(20 * time.Millisecond)

	second, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)
	assert.Equal(t, Own, second.Outcome)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)
}

func TestWaitUntilReady_ReturnsOnCompletion(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = c.MarkCompleted(ctx, res.Record.ID, 1, 1, []string{"fz"}, 0.1, 1)
	}()

	rec, err := c.WaitUntilReady(ctx, res.Record.ID, 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestWaitUntilReady_Timeout(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.AcquireOrWait(ctx, "https://example/repo", "v1.0", "default")
	require.NoError(t, err)

	_, err = c.WaitUntilReady(ctx, res.Record.ID, 5*time.Millisecond, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestEvictor_RetentionCap(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		res, err := c.AcquireOrWait(ctx, "https://example/repo", versionFor(i), "default")
		require.NoError(t, err)
		require.NoError(t, c.MarkCompleted(ctx, res.Record.ID, 1, 1, nil, 0.1, 1))
		ids = append(ids, res.Record.ID)
		time.Sleep(2 * time.Millisecond)
	}

	ev := NewEvictor(c, nil, nil, nil, 80, 70, 5, 90, nil)
	require.NoError(t, ev.Run(ctx))

	rec, err := c.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, rec, "oldest snapshot should have been evicted by the retention cap")

	rec, err = c.Get(ctx, ids[len(ids)-1])
	require.NoError(t, err)
	assert.NotNil(t, rec, "newest snapshot should survive")
}

func versionFor(i int) string {
	return "v1." + string(rune('0'+i))
}
