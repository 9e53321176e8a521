package route

import (
	"github.com/ersnlabs/navcore/internal/lib/geo"
)

// Tolerances for matching a location against route geometry. Unit matching
// is tighter than the overall on-route test so that step attribution stays
// stable near boundaries.
const (
	// UnitMatchTolerance is the maximum distance in meters at which a
	// location is considered to lie on a step or leg's geometry
	UnitMatchTolerance = 30.0

	// DefaultOnRouteTolerance is the maximum perpendicular distance in
	// meters from the full route geometry still considered on route
	DefaultOnRouteTolerance = 50.0
)

var geoUtils = geo.NewGeoUtils()

// distanceAlongPolyline returns the accumulated distance from the start of
// the polyline to the projection of the given point onto it. The projection
// lands on the segment nearest to the point.
func distanceAlongPolyline(points []geo.Point, p geo.Point) float64 {
	if len(points) < 2 {
		return 0
	}

	bestDistance := -1.0
	bestAlong := 0.0
	cumulative := 0.0

	for i := 0; i < len(points)-1; i++ {
		proj := geoUtils.ProjectOntoSegment(p, points[i], points[i+1])
		segLen, _ := geoUtils.PointToPoint(points[i], points[i+1])
		if bestDistance < 0 || proj.Distance < bestDistance {
			bestDistance = proj.Distance
			bestAlong = cumulative + proj.T*segLen
		}
		cumulative += segLen
	}

	return bestAlong
}

// onGeometry reports whether the point lies within tolerance of the polyline
func onGeometry(points []geo.Point, p geo.Point, tolerance float64) bool {
	if len(points) == 0 {
		return false
	}
	d, err := geoUtils.PointToPolyline(p, geo.Polyline{Points: points})
	if err != nil {
		return false
	}
	return d <= tolerance
}

// IsOnStep reports whether the location lies on this step's geometry within
// the given tolerance
func (s *Step) IsOnStep(p geo.Point, tolerance float64) bool {
	return onGeometry(s.Geometry, p, tolerance)
}

// DistanceTraveled returns the distance in meters traveled into this step
// for the given location. A location that does not match the step geometry
// within UnitMatchTolerance is treated as having fully traversed the step
// (assume completed, not regressed, for noisy fixes beyond the step).
func (s *Step) DistanceTraveled(p geo.Point) float64 {
	if !s.IsOnStep(p, UnitMatchTolerance) {
		return s.Distance
	}
	along := distanceAlongPolyline(s.Geometry, p)
	if along > s.Distance {
		return s.Distance
	}
	return along
}

// RemainingDistance returns the distance in meters left in this step for the
// given location, clamped to [0, Distance]
func (s *Step) RemainingDistance(p geo.Point) float64 {
	remaining := s.Distance - s.DistanceTraveled(p)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsOnLeg reports whether the location lies on any of this leg's steps
func (l *Leg) IsOnLeg(p geo.Point, tolerance float64) bool {
	for i := range l.Steps {
		if l.Steps[i].IsOnStep(p, tolerance) {
			return true
		}
	}
	return false
}

// CurrentStepIndex returns the index of the first step whose geometry
// contains the location within UnitMatchTolerance. First match wins so that
// step indices are monotonically non-decreasing for a forward-moving agent
// near step boundaries. A location matching no step maps to the last step.
func (l *Leg) CurrentStepIndex(p geo.Point) int {
	if len(l.Steps) == 0 {
		return 0
	}
	for i := range l.Steps {
		if l.Steps[i].IsOnStep(p, UnitMatchTolerance) {
			return i
		}
	}
	return len(l.Steps) - 1
}

// DistanceTraveled returns the accumulated distance in meters traveled into
// this leg: the full distance of every step before the current one plus the
// projected distance into the current step. A location matching no step is
// treated as having fully traversed the leg.
func (l *Leg) DistanceTraveled(p geo.Point) float64 {
	accumulated := 0.0
	for i := range l.Steps {
		if l.Steps[i].IsOnStep(p, UnitMatchTolerance) {
			return accumulated + l.Steps[i].DistanceTraveled(p)
		}
		accumulated += l.Steps[i].Distance
	}
	return l.Distance
}

// RemainingDistance returns the distance in meters left in this leg,
// clamped to [0, Distance]
func (l *Leg) RemainingDistance(p geo.Point) float64 {
	remaining := l.Distance - l.DistanceTraveled(p)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StepForDistance returns the index of the step whose cumulative distance
// range contains the given traveled distance. Falls back to the last step
// when the distance exceeds the leg total (over-travel tolerance, not an
// error).
func (l *Leg) StepForDistance(traveled float64) int {
	if len(l.Steps) == 0 {
		return 0
	}
	cumulative := 0.0
	for i := range l.Steps {
		cumulative += l.Steps[i].Distance
		if traveled <= cumulative {
			return i
		}
	}
	return len(l.Steps) - 1
}

// CurrentLegIndex returns the index of the first leg whose geometry contains
// the location within UnitMatchTolerance, or the last leg when none matches
func (r *Route) CurrentLegIndex(p geo.Point) int {
	if len(r.Legs) == 0 {
		return 0
	}
	for i := range r.Legs {
		if r.Legs[i].IsOnLeg(p, UnitMatchTolerance) {
			return i
		}
	}
	return len(r.Legs) - 1
}

// LegForDistance returns the index of the leg whose cumulative distance
// range contains the given traveled distance, falling back to the last leg
func (r *Route) LegForDistance(traveled float64) int {
	if len(r.Legs) == 0 {
		return 0
	}
	cumulative := 0.0
	for i := range r.Legs {
		cumulative += r.Legs[i].Distance
		if traveled <= cumulative {
			return i
		}
	}
	return len(r.Legs) - 1
}

// DistanceTraveled returns the accumulated distance in meters traveled along
// the route for the given location, walking legs in order
func (r *Route) DistanceTraveled(p geo.Point) float64 {
	accumulated := 0.0
	for i := range r.Legs {
		if r.Legs[i].IsOnLeg(p, UnitMatchTolerance) {
			return accumulated + r.Legs[i].DistanceTraveled(p)
		}
		accumulated += r.Legs[i].Distance
	}
	return r.Distance
}

// RemainingDistance returns route distance left for the given location,
// clamped to [0, Distance]
func (r *Route) RemainingDistance(p geo.Point) float64 {
	remaining := r.Distance - r.DistanceTraveled(p)
	if remaining < 0 {
		return 0
	}
	if remaining > r.Distance {
		return r.Distance
	}
	return remaining
}

// RemainingDuration returns the estimated seconds left for the given
// location. Duration scales linearly with the traveled/total distance ratio;
// it is not re-estimated from current speed.
func (r *Route) RemainingDuration(p geo.Point) float64 {
	if r.Distance <= 0 {
		return 0
	}
	return r.Duration * (r.RemainingDistance(p) / r.Distance)
}

// DistanceFromRoute returns the minimum perpendicular distance in meters
// from the location to the full route geometry. A route with no geometry
// falls back to direct distance to the origin.
func (r *Route) DistanceFromRoute(p geo.Point) float64 {
	if len(r.Geometry) == 0 {
		d, err := geoUtils.PointToPoint(p, r.Origin)
		if err != nil {
			return 0
		}
		return d
	}
	d, err := geoUtils.PointToPolyline(p, geo.Polyline{Points: r.Geometry})
	if err != nil {
		return 0
	}
	return d
}

// IsOnRoute reports whether the location is within toleranceMeters of the
// full route geometry
func (r *Route) IsOnRoute(p geo.Point, toleranceMeters float64) bool {
	return r.DistanceFromRoute(p) <= toleranceMeters
}
