// Package services hosts the session-level orchestrators: the progress
// tracker that consumes location fixes and emits guidance events, and the
// reroute coordinator that turns deviation signals into new routes.
package services

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ersnlabs/navcore/internal/config"
	"github.com/ersnlabs/navcore/internal/lib/announce"
	"github.com/ersnlabs/navcore/internal/lib/deviation"
	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/progress"
	"github.com/ersnlabs/navcore/internal/lib/route"
	"github.com/ersnlabs/navcore/internal/lib/speed"
)

// ErrNotTracking is returned by operations that require an active session
var ErrNotTracking = errors.New("no active tracking session")

// EventKind discriminates the tagged-union Event
type EventKind int

const (
	// EventProgressUpdated carries a fresh progress snapshot
	EventProgressUpdated EventKind = iota
	// EventUpcomingManeuver carries an announcement decision
	EventUpcomingManeuver
	// EventRouteDeviation carries a reroute-level deviation payload
	EventRouteDeviation
	// EventArrived fires exactly once per session on destination arrival
	EventArrived
	// EventRerouteApplied carries the replacement route after a reroute
	EventRerouteApplied
	// EventRerouteFailed carries the error from a failed reroute attempt
	EventRerouteFailed
)

// String returns a human-readable event kind name
func (k EventKind) String() string {
	switch k {
	case EventProgressUpdated:
		return "progress_updated"
	case EventUpcomingManeuver:
		return "upcoming_maneuver"
	case EventRouteDeviation:
		return "route_deviation"
	case EventArrived:
		return "arrived"
	case EventRerouteApplied:
		return "reroute_applied"
	case EventRerouteFailed:
		return "reroute_failed"
	}
	return "unknown"
}

// Event is the single tagged-union payload delivered on the tracker's event
// channel. Only the fields relevant to Kind are populated.
type Event struct {
	Kind         EventKind              `json:"kind"`
	Snapshot     *progress.Snapshot     `json:"snapshot,omitempty"`
	Announcement *announce.Announcement `json:"announcement,omitempty"`
	Deviation    *deviation.Deviation   `json:"deviation,omitempty"`
	Route        *route.Route           `json:"route,omitempty"`
	Err          error                  `json:"-"`
	Timestamp    time.Time              `json:"timestamp"`
}

// LocationSource supplies location fixes to an active session. Subscribe
// registers the callback and returns a cancel function; the tracker calls
// cancel when the session stops.
type LocationSource interface {
	Subscribe(fn func(route.Location)) (func(), error)
}

// session holds all per-route mutable state. A new session is created on
// every Start; a reroute swaps the route inside the existing session.
type session struct {
	route     *route.Route
	startedAt time.Time

	estimator *speed.Estimator
	policy    *deviation.Policy
	scheduler *announce.Scheduler

	// lastSeen is the raw most recent fix, recorded even when the update was
	// throttled, so the periodic drift check always works from fresh input
	lastSeen        *route.Location
	lastProcessedAt time.Time

	lastEmitted   *progress.Snapshot
	latest        *progress.Snapshot
	arrived       bool
	rerouteCount  int
	cancelSource  func()
	stopDriftLoop chan struct{}
}

// Tracker is the turn-by-turn progress orchestrator. All mutation funnels
// through a single mutex-protected path, so the component pipeline
// (estimator, snapshot, deviation policy, announcement scheduler) never sees
// concurrent updates. Events are delivered on a buffered channel; emission
// never blocks the update path, overflow is dropped and counted.
type Tracker struct {
	cfg config.TrackingConfig

	mu      sync.Mutex
	session *session

	events  chan Event
	dropped atomic.Int64

	// now is swappable for tests
	now func() time.Time
}

var trackerGeo = geo.NewGeoUtils()

// NewTracker creates a tracker with the given configuration. The event
// channel is created once and survives session restarts, so a single
// consumer can span multiple trips.
func NewTracker(cfg config.TrackingConfig) *Tracker {
	if cfg.EventBuffer <= 0 {
		cfg = config.DefaultTrackingConfig()
	}
	return &Tracker{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		now:    time.Now,
	}
}

// Events returns the tracker's event channel. Consumers should drain it
// promptly; events beyond the buffer capacity are dropped.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// DroppedEvents returns how many events have been dropped due to a full
// event buffer since the tracker was created
func (t *Tracker) DroppedEvents() int64 {
	return t.dropped.Load()
}

// Start begins tracking the given route. An already active session is
// stopped first, so Start doubles as a restart. The source is optional; with
// a nil source the caller drives the session through Update directly.
func (t *Tracker) Start(r *route.Route, source LocationSource) error {
	if r == nil {
		return errors.New("route is required")
	}

	t.mu.Lock()
	if t.session != nil {
		t.stopLocked()
	}

	s := &session{
		route:         r,
		startedAt:     t.now(),
		estimator:     speed.NewEstimator(t.cfg.Speed),
		policy:        deviation.NewPolicy(t.cfg.Deviation),
		scheduler:     announce.NewScheduler(t.cfg.Announcement),
		stopDriftLoop: make(chan struct{}),
	}
	t.session = s
	t.mu.Unlock()

	go t.driftLoop(s)

	if source != nil {
		cancel, err := source.Subscribe(func(loc route.Location) {
			if err := t.Update(loc); err != nil {
				log.Printf("Dropping location update: %v", err)
			}
		})
		if err != nil {
			t.Stop()
			return err
		}
		t.mu.Lock()
		// Stop may have raced the subscription; only attach the cancel if
		// this session is still the live one
		if t.session == s {
			s.cancelSource = cancel
		} else {
			cancel()
		}
		t.mu.Unlock()
	}

	log.Printf("Tracking started: route %s, %.0fm, %d legs", r.ID, r.Distance, len(r.Legs))
	return nil
}

// Stop ends the active session. It is idempotent and safe to call from an
// event handler reacting to one of the tracker's own events: emission never
// blocks on the event channel, so the update path cannot deadlock against a
// consumer calling back in.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Tracker) stopLocked() {
	s := t.session
	if s == nil {
		return
	}
	t.session = nil
	close(s.stopDriftLoop)
	if s.cancelSource != nil {
		s.cancelSource()
	}
	log.Printf("Tracking stopped: route %s", s.route.ID)
}

// IsTracking reports whether a session is active
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil
}

// Snapshot returns a copy of the most recent progress snapshot, or false if
// no update has been processed yet
func (t *Tracker) Snapshot() (progress.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil || t.session.latest == nil {
		return progress.Snapshot{}, false
	}
	return *t.session.latest, true
}

// Arrived reports whether the active session has detected arrival
func (t *Tracker) Arrived() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil && t.session.arrived
}

// Update processes one location fix. Updates arriving faster than the
// throttle interval are recorded as the last seen position but not
// processed. Calling Update with no active session is an error.
func (t *Tracker) Update(loc route.Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session
	if s == nil {
		return ErrNotTracking
	}

	now := t.now()
	s.lastSeen = &loc

	if !s.lastProcessedAt.IsZero() && now.Sub(s.lastProcessedAt) < t.cfg.ThrottleInterval {
		return nil
	}
	s.lastProcessedAt = now

	t.process(s, loc, now)
	return nil
}

// process runs the full per-update pipeline. Caller holds the mutex.
// Emission order within one update is fixed: progress, then announcement,
// then deviation, then arrival.
func (t *Tracker) process(s *session, loc route.Location, now time.Time) {
	s.estimator.Update(loc)

	snap := progress.BuildSnapshot(s.route, loc, s.startedAt, now)
	s.latest = &snap

	if t.shouldEmitProgress(s, &snap) {
		s.lastEmitted = &snap
		t.emit(Event{Kind: EventProgressUpdated, Snapshot: &snap, Timestamp: now})
	}

	roadType := s.estimator.ClassifyRoad(t.currentRoadName(s, &snap))
	if ann := s.scheduler.Evaluate(snap.UpcomingManeuver, snap.DistanceToNextManeuver, roadType, s.estimator.Current(), now); ann != nil {
		t.emit(Event{Kind: EventUpcomingManeuver, Snapshot: &snap, Announcement: ann, Timestamp: now})
	}

	if _, dev := s.policy.Evaluate(&snap, now); dev != nil {
		t.emit(Event{Kind: EventRouteDeviation, Snapshot: &snap, Deviation: dev, Timestamp: now})
	}

	if !s.arrived && t.isArrival(s, &snap) {
		s.arrived = true
		log.Printf("Arrived: route %s, %.0fm remaining, %.0fm direct", s.route.ID, snap.DistanceRemaining, snap.DirectDistanceToDestination())
		t.emit(Event{Kind: EventArrived, Snapshot: &snap, Timestamp: now})
	}
}

// shouldEmitProgress applies the emission thresholds: always emit the first
// snapshot, then only on meaningful movement or progress change
func (t *Tracker) shouldEmitProgress(s *session, snap *progress.Snapshot) bool {
	prev := s.lastEmitted
	if prev == nil {
		return true
	}

	if moved, err := trackerGeo.PointToPoint(prev.Location.Point, snap.Location.Point); err == nil && moved >= t.cfg.MinEmitDistance {
		return true
	}

	delta := snap.RouteProgress() - prev.RouteProgress()
	if delta < 0 {
		delta = -delta
	}
	if delta >= t.cfg.MinEmitProgressDelta {
		return true
	}

	// State flips always emit regardless of distance moved
	return snap.OnRoute != prev.OnRoute ||
		snap.CurrentLegIndex != prev.CurrentLegIndex ||
		snap.CurrentStepIndex != prev.CurrentStepIndex
}

// currentRoadName returns the road name of the step under the agent, used as
// a classification hint for ambiguous speeds
func (t *Tracker) currentRoadName(s *session, snap *progress.Snapshot) string {
	if snap.CurrentLegIndex >= len(s.route.Legs) {
		return ""
	}
	leg := &s.route.Legs[snap.CurrentLegIndex]
	if snap.CurrentStepIndex >= len(leg.Steps) {
		return ""
	}
	return leg.Steps[snap.CurrentStepIndex].RoadName
}

// isArrival applies the arrival decision: an outer qualification gate on
// remaining and direct distance, then tighter criteria keyed to how fast the
// agent is still moving. Once true the arrived flag is sticky for the
// session; a reroute does not clear it.
func (t *Tracker) isArrival(s *session, snap *progress.Snapshot) bool {
	cfg := t.cfg.Arrival

	if !snap.OnRoute && snap.DistanceFromRoute > cfg.OffRouteMaxDistance {
		return false
	}

	remaining := snap.DistanceRemaining
	direct := snap.DirectDistanceToDestination()

	if remaining > cfg.MaxRemaining || direct > cfg.MaxDirect {
		return false
	}

	if remaining <= cfg.ImmediateRemaining && direct <= cfg.ImmediateDirect {
		return true
	}

	if s.estimator.HasEstimate() {
		return s.estimator.Current() < cfg.SlowSpeed && direct <= cfg.SlowDirect
	}

	// No derived speed yet: treat as stationary near the destination
	if remaining <= cfg.StationaryRemaining && direct <= cfg.StationaryDirect {
		return true
	}
	return remaining <= cfg.StationaryTightRemaining && direct <= cfg.StationaryTightDirect
}

// ApplyReroute swaps in a replacement route for the active session. The
// deviation policy and announcement scheduler reset, since their state is
// indexed against the old geometry; the speed estimator and session clock
// carry over.
func (t *Tracker) ApplyReroute(r *route.Route) error {
	if r == nil {
		return errors.New("route is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session
	if s == nil {
		return ErrNotTracking
	}

	old := s.route.ID
	s.route = r
	s.rerouteCount++
	s.policy.Reset()
	s.scheduler.Reset()
	s.latest = nil
	s.lastEmitted = nil

	now := t.now()
	log.Printf("Reroute applied: %s -> %s (%.0fm)", old, r.ID, r.Distance)
	t.emit(Event{Kind: EventRerouteApplied, Route: r, Timestamp: now})

	// Re-anchor progress immediately off the last seen position
	if s.lastSeen != nil {
		t.process(s, *s.lastSeen, now)
	}
	return nil
}

// reportRerouteFailure surfaces a failed reroute attempt to consumers; the
// session keeps guiding against the stale route
func (t *Tracker) reportRerouteFailure(err error) {
	t.emit(Event{Kind: EventRerouteFailed, Err: err, Timestamp: t.now()})
}

// driftLoop is the session's periodic progress check. It re-derives progress
// from the last seen position on a timer, catching slow drift that
// per-update thresholds suppress and keeping consumers fresh when the
// location source goes quiet.
func (t *Tracker) driftLoop(s *session) {
	ticker := time.NewTicker(t.cfg.ProgressCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopDriftLoop:
			return
		case <-ticker.C:
			t.checkDrift(s)
		}
	}
}

func (t *Tracker) checkDrift(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Session may have been replaced or stopped since the loop started
	if t.session != s || s.lastSeen == nil {
		return
	}

	now := t.now()
	snap := progress.BuildSnapshot(s.route, *s.lastSeen, s.startedAt, now)
	s.latest = &snap

	if s.lastEmitted == nil {
		s.lastEmitted = &snap
		t.emit(Event{Kind: EventProgressUpdated, Snapshot: &snap, Timestamp: now})
		return
	}

	delta := snap.RouteProgress() - s.lastEmitted.RouteProgress()
	if delta < 0 {
		delta = -delta
	}
	if delta >= t.cfg.DriftEmitProgressDelta {
		s.lastEmitted = &snap
		t.emit(Event{Kind: EventProgressUpdated, Snapshot: &snap, Timestamp: now})
	}
}

// emit delivers an event without ever blocking the update path. A full
// buffer drops the event and bumps the counter; progress will be re-derived
// on the next update, so dropped events lose freshness, not correctness.
func (t *Tracker) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		n := t.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			log.Printf("Event buffer full, dropped %d events so far", n)
		}
	}
}
