package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReaper(t *testing.T, store *Store, timeout time.Duration) *Reaper {
	t.Helper()
	r := NewReaper(store, ReaperConfig{
		Interval: time.Hour, // cycles are driven manually via Sweep
		Timeout:  timeout,
	}, nil, nil)
	require.NoError(t, r.Initialize())
	return r
}

func TestReaper_EvictsIdleSessions(t *testing.T) {
	store := testStore(t)
	reaper := testReaper(t, store, 30*time.Second)

	idle, err := store.Create("idle", nil)
	require.NoError(t, err)
	_, err = store.Create("fresh", nil)
	require.NoError(t, err)

	idle.lastActivity.Store(time.Now().Add(-time.Minute).UnixNano())

	reaper.Sweep(time.Now())

	_, ok := store.Get("idle")
	assert.False(t, ok, "idle session must be gone after one cycle")
	_, ok = store.Get("fresh")
	assert.True(t, ok, "active session must survive")
}

func TestReaper_ActiveSessionSurvivesManyCycles(t *testing.T) {
	store := testStore(t)
	reaper := testReaper(t, store, time.Hour)

	_, err := store.Create("busy-client", nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		reaper.Sweep(time.Now())
	}
	_, ok := store.Get("busy-client")
	assert.True(t, ok)
}

func TestReaper_SkipsBusySession(t *testing.T) {
	store := testStore(t)
	reaper := testReaper(t, store, 30*time.Second)

	sess, err := store.Create("inflight", nil)
	require.NoError(t, err)
	sess.lastActivity.Store(time.Now().Add(-time.Minute).UnixNano())

	// Hold the session as an in-flight request would
	sess.Lock()
	reaper.Sweep(time.Now())
	_, ok := store.Get("inflight")
	assert.True(t, ok, "busy session is skipped, not evicted")
	sess.Unlock()

	// Next cycle catches it once idle again
	reaper.Sweep(time.Now())
	_, ok = store.Get("inflight")
	assert.False(t, ok)
}

func TestReaper_RechecksUnderLock(t *testing.T) {
	store := testStore(t)
	reaper := testReaper(t, store, 30*time.Second)

	sess, err := store.Create("raced", nil)
	require.NoError(t, err)
	sess.lastActivity.Store(time.Now().Add(-time.Minute).UnixNano())

	// Activity refreshed between snapshot and sweep must save the session
	sweepTime := time.Now()
	sess.Touch()
	reaper.Sweep(sweepTime)

	_, ok := store.Get("raced")
	assert.True(t, ok)
}

func TestReaper_Lifecycle(t *testing.T) {
	store := testStore(t)
	r := NewReaper(store, ReaperConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  20 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, r.Initialize())

	_, err := store.Create("doomed", nil)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool {
		_, ok := store.Get("doomed")
		return !ok
	}, time.Second, 5*time.Millisecond, "reaper loop must evict on its own")

	require.NoError(t, r.Stop(time.Second))
}

func TestReaper_InitializeValidation(t *testing.T) {
	store := testStore(t)

	assert.Error(t, NewReaper(nil, ReaperConfig{Interval: time.Second, Timeout: time.Second}, nil, nil).Initialize())
	assert.Error(t, NewReaper(store, ReaperConfig{Timeout: time.Second}, nil, nil).Initialize())
	assert.Error(t, NewReaper(store, ReaperConfig{Interval: time.Second}, nil, nil).Initialize())
}
