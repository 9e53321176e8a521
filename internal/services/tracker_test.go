package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersnlabs/navcore/internal/config"
	"github.com/ersnlabs/navcore/internal/lib/route"
	"github.com/ersnlabs/navcore/internal/lib/route/routetest"
)

// testConfig disables the periodic drift check so tests can drive the fake
// clock without racing the background loop
func testConfig() config.TrackingConfig {
	cfg := config.DefaultTrackingConfig()
	cfg.ProgressCheckInterval = time.Hour
	return cfg
}

// testClock steps a tracker's clock deterministically
type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	return c.current
}

func (c *testClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *testClock) {
	t.Helper()
	clock := newTestClock()
	tr := NewTracker(testConfig())
	tr.now = clock.now
	return tr, clock
}

// drain collects every event currently buffered
func drain(tr *Tracker) []Event {
	var events []Event
	for {
		select {
		case ev := <-tr.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func fixOnRoute(r *route.Route, meters float64, at time.Time) route.Location {
	return routetest.Fix(routetest.PointAlong(r, meters), at)
}

func TestTracker_UpdateWithoutSessionFails(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)

	err := tr.Update(fixOnRoute(r, 0, clock.now()))
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestTracker_FirstUpdateEmitsProgress(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	require.NoError(t, tr.Update(fixOnRoute(r, r.Distance/2, clock.now())))

	events := drain(tr)
	require.NotEmpty(t, events)
	assert.Equal(t, EventProgressUpdated, events[0].Kind)
	require.NotNil(t, events[0].Snapshot)
	assert.InDelta(t, 0.5, events[0].Snapshot.RouteProgress(), 0.02)
	assert.True(t, events[0].Snapshot.OnRoute)
}

func TestTracker_ThrottlesRapidUpdates(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	require.NoError(t, tr.Update(fixOnRoute(r, 100, clock.now())))
	drain(tr)

	// 100ms later, well inside the 500ms throttle: recorded but not processed
	clock.advance(100 * time.Millisecond)
	require.NoError(t, tr.Update(fixOnRoute(r, 200, clock.now())))
	assert.Empty(t, drain(tr))

	// Past the throttle the next update processes normally
	clock.advance(time.Second)
	require.NoError(t, tr.Update(fixOnRoute(r, 300, clock.now())))
	events := drain(tr)
	require.NotEmpty(t, events)
	assert.Equal(t, EventProgressUpdated, events[0].Kind)
}

func TestTracker_SuppressesJitterEmissions(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	require.NoError(t, tr.Update(fixOnRoute(r, 500, clock.now())))
	require.NotEmpty(t, drain(tr))

	// Moves of a few meters with negligible progress change stay silent
	clock.advance(time.Second)
	require.NoError(t, tr.Update(fixOnRoute(r, 503, clock.now())))
	for _, ev := range drain(tr) {
		assert.NotEqual(t, EventProgressUpdated, ev.Kind)
	}

	// A real move emits again
	clock.advance(time.Second)
	require.NoError(t, tr.Update(fixOnRoute(r, 550, clock.now())))
	require.NotEmpty(t, drain(tr))
}

func TestTracker_EmitsDeviationWithDistance(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	// Confirmed on route first so the anchor is captured
	require.NoError(t, tr.Update(fixOnRoute(r, 400, clock.now())))
	drain(tr)

	// Then 80 meters east of the geometry
	clock.advance(time.Second)
	adrift := routetest.OffsetEast(routetest.PointAlong(r, 400), 80)
	require.NoError(t, tr.Update(routetest.Fix(adrift, clock.now())))

	var dev *Event
	for _, ev := range drain(tr) {
		if ev.Kind == EventRouteDeviation {
			e := ev
			dev = &e
		}
	}
	require.NotNil(t, dev, "expected a route deviation event")
	require.NotNil(t, dev.Deviation)
	assert.InDelta(t, 80, dev.Deviation.DistanceFromRoute, 2.0)
	assert.True(t, dev.Deviation.AnchorValid)
}

func TestTracker_EventOrderWithinUpdate(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	// Off route from the first update: progress must still precede deviation
	adrift := routetest.OffsetEast(routetest.PointAlong(r, 400), 80)
	require.NoError(t, tr.Update(routetest.Fix(adrift, clock.now())))

	got := kinds(drain(tr))
	progressIdx, deviationIdx := -1, -1
	for i, k := range got {
		switch k {
		case EventProgressUpdated:
			progressIdx = i
		case EventRouteDeviation:
			deviationIdx = i
		}
	}
	require.GreaterOrEqual(t, progressIdx, 0)
	require.GreaterOrEqual(t, deviationIdx, 0)
	assert.Less(t, progressIdx, deviationIdx)
}

func TestTracker_ArrivalFiresExactlyOnce(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	arrived := 0
	for i := 0; i < 4; i++ {
		require.NoError(t, tr.Update(fixOnRoute(r, r.Distance, clock.now())))
		for _, ev := range drain(tr) {
			if ev.Kind == EventArrived {
				arrived++
				require.NotNil(t, ev.Snapshot)
				assert.InDelta(t, 0, ev.Snapshot.DistanceRemaining, 1.0)
			}
		}
		clock.advance(time.Second)
	}

	assert.Equal(t, 1, arrived, "arrival must fire exactly once per session")
	assert.True(t, tr.Arrived())
}

func TestTracker_NoArrivalFarFromDestination(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	require.NoError(t, tr.Update(fixOnRoute(r, r.Distance-100, clock.now())))
	for _, ev := range drain(tr) {
		assert.NotEqual(t, EventArrived, ev.Kind)
	}
	assert.False(t, tr.Arrived())
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	require.True(t, tr.IsTracking())

	tr.Stop()
	tr.Stop()
	tr.Stop()

	assert.False(t, tr.IsTracking())
	err := tr.Update(fixOnRoute(r, 0, clock.now()))
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestTracker_StartReplacesActiveSession(t *testing.T) {
	tr, clock := newTestTracker(t)
	first := routetest.StraightRoute(1, 3, 5)
	second := routetest.StraightRoute(2, 2, 5)
	second.ID = "second-route"

	require.NoError(t, tr.Start(first, nil))
	require.NoError(t, tr.Update(fixOnRoute(first, 100, clock.now())))
	drain(tr)

	require.NoError(t, tr.Start(second, nil))
	defer tr.Stop()

	clock.advance(time.Second)
	require.NoError(t, tr.Update(fixOnRoute(second, 100, clock.now())))
	events := drain(tr)
	require.NotEmpty(t, events)
	assert.Equal(t, second.ID, events[0].Snapshot.RouteID)
}

func TestTracker_ApplyReroute(t *testing.T) {
	tr, clock := newTestTracker(t)
	original := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(original, nil))
	defer tr.Stop()

	require.NoError(t, tr.Update(fixOnRoute(original, 200, clock.now())))
	drain(tr)

	replacement := routetest.StraightRoute(1, 4, 5)
	replacement.ID = "replacement-route"
	clock.advance(time.Second)
	require.NoError(t, tr.ApplyReroute(replacement))

	events := drain(tr)
	require.NotEmpty(t, events)
	assert.Equal(t, EventRerouteApplied, events[0].Kind)
	assert.Equal(t, replacement.ID, events[0].Route.ID)

	// Progress re-anchors against the new geometry from the last seen fix
	require.Greater(t, len(events), 1)
	assert.Equal(t, EventProgressUpdated, events[1].Kind)
	assert.Equal(t, replacement.ID, events[1].Snapshot.RouteID)
}

func TestTracker_ApplyRerouteWithoutSessionFails(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.ApplyReroute(routetest.StraightRoute(1, 3, 5))
	assert.ErrorIs(t, err, ErrNotTracking)
}

// recordingSource is a manual LocationSource for tests
type recordingSource struct {
	fn        func(route.Location)
	cancelled bool
}

func (s *recordingSource) Subscribe(fn func(route.Location)) (func(), error) {
	s.fn = fn
	return func() { s.cancelled = true }, nil
}

func TestTracker_SubscribesAndCancelsSource(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	src := &recordingSource{}

	require.NoError(t, tr.Start(r, src))
	require.NotNil(t, src.fn)

	src.fn(fixOnRoute(r, 100, clock.now()))
	events := drain(tr)
	require.NotEmpty(t, events)
	assert.Equal(t, EventProgressUpdated, events[0].Kind)

	tr.Stop()
	assert.True(t, src.cancelled)
}

func TestTracker_DriftCheckEmitsOnSlowProgress(t *testing.T) {
	tr, clock := newTestTracker(t)
	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	require.NoError(t, tr.Update(fixOnRoute(r, 500, clock.now())))
	drain(tr)

	// Creep forward by under the per-update thresholds but over the drift
	// delta, then run the periodic check directly
	tr.mu.Lock()
	s := tr.session
	tr.mu.Unlock()

	clock.advance(time.Second)
	crept := fixOnRoute(r, 500+0.007*r.Distance, clock.now())
	tr.mu.Lock()
	s.lastSeen = &crept
	tr.mu.Unlock()

	tr.checkDrift(s)
	events := drain(tr)
	require.NotEmpty(t, events)
	assert.Equal(t, EventProgressUpdated, events[0].Kind)

	// No further drift, no further emission
	tr.checkDrift(s)
	assert.Empty(t, drain(tr))
}

func TestTracker_DropsEventsWhenBufferFull(t *testing.T) {
	cfg := testConfig()
	cfg.EventBuffer = 1
	clock := newTestClock()
	tr := NewTracker(cfg)
	tr.now = clock.now

	r := routetest.StraightRoute(1, 3, 5)
	require.NoError(t, tr.Start(r, nil))
	defer tr.Stop()

	// Nobody drains: the second emission overflows the 1-slot buffer
	require.NoError(t, tr.Update(fixOnRoute(r, 100, clock.now())))
	clock.advance(time.Second)
	require.NoError(t, tr.Update(fixOnRoute(r, 200, clock.now())))

	assert.Greater(t, tr.DroppedEvents(), int64(0))
	// The update path itself never blocked
	assert.True(t, tr.IsTracking())
}
