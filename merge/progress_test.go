package merge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTrackerLifecycle(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	defer tracker.Stop()

	tracker.Start("run-1", 10)
	tracker.Advance("run-1", 3, "loading")

	p, ok := tracker.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, 3, p.Current)
	assert.Equal(t, 10, p.Total)
	assert.InDelta(t, 30.0, p.Percentage, 0.001)
	assert.Equal(t, "loading", p.CurrentOperation)
	assert.False(t, p.Completed)

	// advancing past the total clamps
	tracker.Advance("run-1", 100, "overshoot")
	p, _ = tracker.Get("run-1")
	assert.Equal(t, 10, p.Current)
	assert.InDelta(t, 100.0, p.Percentage, 0.001)

	tracker.Complete("run-1", &Result{Success: true, DatasetID: 7})
	p, _ = tracker.Get("run-1")
	assert.True(t, p.Completed)
	assert.True(t, p.Success)
	require.NotNil(t, p.Result)
	assert.Equal(t, uint(7), p.Result.DatasetID)
}

func TestProgressTrackerSetTotal(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	defer tracker.Stop()

	// a run opens with a provisional total and gets the real one later
	tracker.Start("run-grow", 1)
	tracker.SetTotal("run-grow", 20)
	tracker.Advance("run-grow", 5, "working")

	p, ok := tracker.Get("run-grow")
	require.True(t, ok)
	assert.Equal(t, 20, p.Total)
	assert.Equal(t, 5, p.Current)
	assert.InDelta(t, 25.0, p.Percentage, 0.001)

	// shrinking below the current position re-clamps
	tracker.SetTotal("run-grow", 3)
	p, _ = tracker.Get("run-grow")
	assert.Equal(t, 3, p.Current)
	assert.InDelta(t, 100.0, p.Percentage, 0.001)

	tracker.SetTotal("missing", 10)
	_, ok = tracker.Get("missing")
	assert.False(t, ok)
}

func TestProgressTrackerFail(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	defer tracker.Stop()

	tracker.Start("run-2", 5)
	tracker.Fail("run-2", errors.New("boom"))

	p, ok := tracker.Get("run-2")
	require.True(t, ok)
	assert.True(t, p.Completed)
	assert.False(t, p.Success)
	assert.Equal(t, "boom", p.Error)
	assert.Equal(t, "failed", p.CurrentOperation)
}

func TestProgressTrackerUnknownRun(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	defer tracker.Stop()

	_, ok := tracker.Get("missing")
	assert.False(t, ok)

	// updates to unknown runs are silently dropped
	tracker.Advance("missing", 1, "noop")
	tracker.Complete("missing", nil)
	tracker.Fail("missing", errors.New("ignored"))
}

func TestProgressTrackerNotify(t *testing.T) {
	tracker := NewProgressTracker(time.Minute)
	defer tracker.Stop()

	var events []RunProgress
	tracker.Notify = func(p RunProgress) { events = append(events, p) }

	tracker.Start("run-3", 4)
	tracker.Advance("run-3", 2, "working")
	tracker.Complete("run-3", &Result{Success: true})

	require.Len(t, events, 3)
	assert.Equal(t, 0, events[0].Current)
	assert.Equal(t, 2, events[1].Current)
	assert.True(t, events[2].Completed)
}

func TestProgressTrackerEviction(t *testing.T) {
	tracker := NewProgressTracker(time.Nanosecond)
	defer tracker.Stop()

	tracker.Start("done", 1)
	tracker.Complete("done", &Result{Success: true})
	tracker.Start("live", 1)

	time.Sleep(2 * time.Millisecond)
	tracker.evictExpired()

	_, ok := tracker.Get("done")
	assert.False(t, ok, "completed runs past their TTL are evicted")
	_, ok = tracker.Get("live")
	assert.True(t, ok, "in-flight runs are never evicted")
}
