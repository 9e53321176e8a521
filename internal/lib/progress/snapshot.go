// Package progress derives the fully resolved progress state for one
// location fix against an immutable route. Snapshots are built fresh per
// update and never mutated; building never touches the Route, so concurrent
// builds against the same Route are safe.
package progress

import (
	"time"

	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// NearManeuverThreshold is the step-remaining distance in meters below which
// the snapshot looks ahead to the next step's maneuver instead of the
// current one. This anticipates the upcoming instruction before the current
// maneuver is literally reached.
const NearManeuverThreshold = 50.0

var geoUtils = geo.NewGeoUtils()

// Snapshot is the derived progress state for a single location update
type Snapshot struct {
	Location route.Location `json:"location"`
	Route    *route.Route   `json:"-"`
	RouteID  string         `json:"route_id"`

	CurrentLegIndex  int `json:"current_leg_index"`
	CurrentStepIndex int `json:"current_step_index"`

	DistanceTraveled  float64 `json:"distance_traveled"`
	DistanceRemaining float64 `json:"distance_remaining"`

	LegDistanceTraveled  float64 `json:"leg_distance_traveled"`
	LegDistanceRemaining float64 `json:"leg_distance_remaining"`

	StepDistanceTraveled  float64 `json:"step_distance_traveled"`
	StepDistanceRemaining float64 `json:"step_distance_remaining"`

	DurationTraveled  float64 `json:"duration_traveled"`  // wall-clock seconds since tracking started
	DurationRemaining float64 `json:"duration_remaining"` // linear estimate, seconds

	DistanceToNextManeuver float64        `json:"distance_to_next_maneuver"`
	UpcomingManeuver       route.Maneuver `json:"upcoming_maneuver"`

	OnRoute           bool    `json:"on_route"`
	DistanceFromRoute float64 `json:"distance_from_route"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RouteProgress returns the fraction of total route distance traveled, in [0, 1]
func (s *Snapshot) RouteProgress() float64 {
	if s.Route == nil || s.Route.Distance <= 0 {
		return 0
	}
	return s.DistanceTraveled / s.Route.Distance
}

// LegProgress returns the fraction of the current leg traveled, in [0, 1]
func (s *Snapshot) LegProgress() float64 {
	if s.Route == nil || s.CurrentLegIndex >= len(s.Route.Legs) {
		return 0
	}
	leg := &s.Route.Legs[s.CurrentLegIndex]
	if leg.Distance <= 0 {
		return 0
	}
	return s.LegDistanceTraveled / leg.Distance
}

// BuildSnapshot computes the progress state for one location fix. It is a
// pure function of (route, location, session start, now); degenerate routes
// (no legs or steps) yield a defensive zero-progress snapshot rather than a
// fault, since silently degrading the progress display is preferable to
// halting guidance mid-trip.
func BuildSnapshot(r *route.Route, loc route.Location, startedAt, now time.Time) Snapshot {
	snap := Snapshot{
		Location:    loc,
		Route:       r,
		RouteID:     r.ID,
		GeneratedAt: now,
	}

	snap.DurationTraveled = now.Sub(startedAt).Seconds()
	if snap.DurationTraveled < 0 {
		snap.DurationTraveled = 0
	}

	snap.DistanceFromRoute = r.DistanceFromRoute(loc.Point)
	snap.OnRoute = snap.DistanceFromRoute <= route.DefaultOnRouteTolerance

	if len(r.Legs) == 0 {
		snap.DistanceRemaining = r.Distance
		snap.DurationRemaining = r.Duration
		return snap
	}

	snap.CurrentLegIndex = r.CurrentLegIndex(loc.Point)
	leg := &r.Legs[snap.CurrentLegIndex]

	snap.DistanceTraveled = r.DistanceTraveled(loc.Point)
	snap.DistanceRemaining = r.RemainingDistance(loc.Point)
	snap.DurationRemaining = r.RemainingDuration(loc.Point)

	snap.LegDistanceTraveled = leg.DistanceTraveled(loc.Point)
	snap.LegDistanceRemaining = leg.RemainingDistance(loc.Point)

	if len(leg.Steps) == 0 {
		return snap
	}

	snap.CurrentStepIndex = leg.CurrentStepIndex(loc.Point)
	step := &leg.Steps[snap.CurrentStepIndex]

	snap.StepDistanceTraveled = step.DistanceTraveled(loc.Point)
	snap.StepDistanceRemaining = step.RemainingDistance(loc.Point)

	snap.UpcomingManeuver, snap.DistanceToNextManeuver = upcomingManeuver(r, snap.CurrentLegIndex, snap.CurrentStepIndex, snap.StepDistanceRemaining)

	return snap
}

// upcomingManeuver picks the maneuver the agent should be told about next.
// While the current step has more than NearManeuverThreshold meters left,
// that is the current step's own maneuver and the distance is simply the
// remaining distance in the step. Once the remaining distance drops below
// the threshold the snapshot switches to the following step's maneuver and
// the distance extends by the distance-to-maneuver recorded on that step.
func upcomingManeuver(r *route.Route, legIdx, stepIdx int, stepRemaining float64) (route.Maneuver, float64) {
	leg := &r.Legs[legIdx]
	current := &leg.Steps[stepIdx]

	if stepRemaining >= NearManeuverThreshold {
		return current.Maneuver, stepRemaining
	}

	next := nextStep(r, legIdx, stepIdx)
	if next == nil {
		// Final step of the route; the arrive maneuver is all there is
		return current.Maneuver, stepRemaining
	}

	return next.Maneuver, stepRemaining + next.Maneuver.DistanceToManeuver
}

// nextStep returns the step after (legIdx, stepIdx) in route order, crossing
// leg boundaries, or nil at the end of the route
func nextStep(r *route.Route, legIdx, stepIdx int) *route.Step {
	leg := &r.Legs[legIdx]
	if stepIdx+1 < len(leg.Steps) {
		return &leg.Steps[stepIdx+1]
	}
	for li := legIdx + 1; li < len(r.Legs); li++ {
		if len(r.Legs[li].Steps) > 0 {
			return &r.Legs[li].Steps[0]
		}
	}
	return nil
}

// DirectDistanceToDestination returns the straight-line distance in meters
// from the snapshot location to the route destination
func (s *Snapshot) DirectDistanceToDestination() float64 {
	if s.Route == nil {
		return 0
	}
	d, err := geoUtils.PointToPoint(s.Location.Point, s.Route.Destination)
	if err != nil {
		return 0
	}
	return d
}
