// Package routetest builds synthetic routes for tests. Geometry runs due
// north along a fixed meridian so distances are easy to reason about:
// 0.001 degrees of latitude is ~111.2 meters.
package routetest

import (
	"fmt"
	"math"
	"time"

	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

const (
	// StartLat is the latitude of the first geometry point
	StartLat = 38.0
	// Lon is the meridian all fixture geometry lies on
	Lon = -120.5
	// PointSpacing is the latitude increment between consecutive geometry points
	PointSpacing = 0.001
)

var geoUtils = geo.NewGeoUtils()

// StraightRoute builds a route of legCount legs, each with stepsPerLeg
// steps of pointsPerStep geometry points. Consecutive steps share their
// boundary point. Distances are derived from the actual geometry so the
// traveled+remaining invariant holds exactly.
func StraightRoute(legCount, stepsPerLeg, pointsPerStep int) *route.Route {
	r := &route.Route{
		ID:        "test-route",
		CreatedAt: time.Now(),
	}

	lat := StartLat
	for li := 0; li < legCount; li++ {
		leg := route.Leg{Index: li}
		for si := 0; si < stepsPerLeg; si++ {
			step := route.Step{
				Index:    si,
				RoadName: fmt.Sprintf("Test Street %d", li),
			}
			for pi := 0; pi < pointsPerStep; pi++ {
				step.Geometry = append(step.Geometry, geo.Point{Latitude: lat, Longitude: Lon})
				if pi < pointsPerStep-1 {
					lat += PointSpacing
				}
			}
			for pi := 0; pi < len(step.Geometry)-1; pi++ {
				d, _ := geoUtils.PointToPoint(step.Geometry[pi], step.Geometry[pi+1])
				step.Distance += d
			}
			step.Duration = step.Distance / 10 // nominal 10 m/s
			step.Maneuver = maneuverFor(li, si, legCount, stepsPerLeg, step)
			leg.Steps = append(leg.Steps, step)
			leg.Distance += step.Distance
			leg.Duration += step.Duration
		}
		leg.Start = leg.Steps[0].Geometry[0]
		last := leg.Steps[len(leg.Steps)-1]
		leg.End = last.Geometry[len(last.Geometry)-1]
		r.Legs = append(r.Legs, leg)
		r.Distance += leg.Distance
		r.Duration += leg.Duration
	}

	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			r.Geometry = append(r.Geometry, step.Geometry...)
		}
	}
	r.Origin = r.Geometry[0]
	r.Destination = r.Geometry[len(r.Geometry)-1]

	return r
}

func maneuverFor(li, si, legCount, stepsPerLeg int, step route.Step) route.Maneuver {
	m := route.Maneuver{
		Type:               route.ManeuverTurn,
		Modifier:           route.ModifierRight,
		Instruction:        fmt.Sprintf("Turn right onto Test Street %d", li),
		Location:           step.Geometry[len(step.Geometry)-1],
		DistanceToManeuver: step.Distance,
		StepIndex:          si,
		LegIndex:           li,
	}
	if li == legCount-1 && si == stepsPerLeg-1 {
		m.Type = route.ManeuverArrive
		m.Modifier = route.ModifierNone
		m.Instruction = "You have arrived at your destination"
	}
	return m
}

// PointAlong returns the point at the given distance in meters along the
// route geometry, clamped to the route ends.
func PointAlong(r *route.Route, meters float64) geo.Point {
	if len(r.Geometry) == 0 {
		return r.Origin
	}
	if meters <= 0 {
		return r.Geometry[0]
	}
	remaining := meters
	for i := 0; i < len(r.Geometry)-1; i++ {
		segLen, _ := geoUtils.PointToPoint(r.Geometry[i], r.Geometry[i+1])
		if segLen <= 0 {
			continue
		}
		if remaining <= segLen {
			return geoUtils.Interpolate(r.Geometry[i], r.Geometry[i+1], remaining/segLen)
		}
		remaining -= segLen
	}
	return r.Geometry[len(r.Geometry)-1]
}

// OffsetEast returns the given point shifted east by approximately the given
// number of meters.
func OffsetEast(p geo.Point, meters float64) geo.Point {
	// ~111,195 m per degree of latitude, scaled by cos(lat) for longitude
	degPerMeter := 1.0 / (111195.0 * math.Cos(p.Latitude*math.Pi/180))
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude + meters*degPerMeter}
}

// Fix wraps a point into a Location with the given timestamp
func Fix(p geo.Point, t time.Time) route.Location {
	return route.Location{Point: p, Timestamp: t}
}
