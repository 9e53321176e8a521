package route

import (
	"time"

	"github.com/ersnlabs/navcore/internal/lib/geo"
)

// ManeuverType identifies the kind of driving action at a step boundary.
// It is a closed enum so complexity and instruction lookup tables stay
// exhaustive and compiler-checked.
type ManeuverType int

const (
	ManeuverDepart ManeuverType = iota
	ManeuverTurn
	ManeuverContinue
	ManeuverNewName
	ManeuverMerge
	ManeuverOnRamp
	ManeuverOffRamp
	ManeuverFork
	ManeuverEndOfRoad
	ManeuverRoundabout
	ManeuverExitRoundabout
	ManeuverRotary
	ManeuverExitRotary
	ManeuverNotification
	ManeuverArrive
)

// String returns the wire-format name of the maneuver type
func (t ManeuverType) String() string {
	switch t {
	case ManeuverDepart:
		return "depart"
	case ManeuverTurn:
		return "turn"
	case ManeuverContinue:
		return "continue"
	case ManeuverNewName:
		return "new name"
	case ManeuverMerge:
		return "merge"
	case ManeuverOnRamp:
		return "on ramp"
	case ManeuverOffRamp:
		return "off ramp"
	case ManeuverFork:
		return "fork"
	case ManeuverEndOfRoad:
		return "end of road"
	case ManeuverRoundabout:
		return "roundabout"
	case ManeuverExitRoundabout:
		return "exit roundabout"
	case ManeuverRotary:
		return "rotary"
	case ManeuverExitRotary:
		return "exit rotary"
	case ManeuverNotification:
		return "notification"
	case ManeuverArrive:
		return "arrive"
	}
	return "unknown"
}

// ManeuverModifier refines the direction of a maneuver
type ManeuverModifier int

const (
	ModifierNone ManeuverModifier = iota
	ModifierUTurn
	ModifierSharpLeft
	ModifierLeft
	ModifierSlightLeft
	ModifierStraight
	ModifierSlightRight
	ModifierRight
	ModifierSharpRight
)

// String returns the wire-format name of the modifier
func (m ManeuverModifier) String() string {
	switch m {
	case ModifierUTurn:
		return "uturn"
	case ModifierSharpLeft:
		return "sharp left"
	case ModifierLeft:
		return "left"
	case ModifierSlightLeft:
		return "slight left"
	case ModifierStraight:
		return "straight"
	case ModifierSlightRight:
		return "slight right"
	case ModifierRight:
		return "right"
	case ModifierSharpRight:
		return "sharp right"
	}
	return ""
}

// Location is a single positioning fix from a location source.
// Accuracy, Speed, and Heading are optional and zero when the source does
// not report them.
type Location struct {
	Point     geo.Point `json:"point"`
	Altitude  float64   `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
}

// Maneuver is a discrete driving action located at a step boundary
type Maneuver struct {
	Type        ManeuverType     `json:"type"`
	Modifier    ManeuverModifier `json:"modifier"`
	Instruction string           `json:"instruction"`
	Location    geo.Point        `json:"location"`
	// DistanceToManeuver is the distance in meters from the start of the
	// maneuver's step to the maneuver point
	DistanceToManeuver float64 `json:"distance_to_maneuver"`
	StepIndex          int     `json:"step_index"`
	LegIndex           int     `json:"leg_index"`
}

// SameAs reports whether two maneuvers describe the same driving action.
// Equality is step index + leg index + type + modifier; instruction text and
// location are display details and do not participate.
func (m Maneuver) SameAs(other Maneuver) bool {
	return m.StepIndex == other.StepIndex &&
		m.LegIndex == other.LegIndex &&
		m.Type == other.Type &&
		m.Modifier == other.Modifier
}

// Step is an atomic navigable unit within a leg, ending at one maneuver
type Step struct {
	Geometry   []geo.Point `json:"geometry"`
	Distance   float64     `json:"distance"` // meters
	Duration   float64     `json:"duration"` // seconds
	Maneuver   Maneuver    `json:"maneuver"`
	VoiceHints []string    `json:"voice_hints,omitempty"`
	RoadName   string      `json:"road_name"`
	Index      int         `json:"index"`
}

// Leg is the portion of a route between two consecutive waypoints
type Leg struct {
	Steps    []Step    `json:"steps"`
	Distance float64   `json:"distance"` // meters
	Duration float64   `json:"duration"` // seconds
	Start    geo.Point `json:"start"`
	End      geo.Point `json:"end"`
	Index    int       `json:"index"`
}

// Route is an immutable multi-leg travel route. No component mutates a Route
// in place; on reroute a new Route is substituted wholesale.
type Route struct {
	ID          string      `json:"id"`
	Legs        []Leg       `json:"legs"`
	Distance    float64     `json:"distance"` // meters
	Duration    float64     `json:"duration"` // seconds
	Geometry    []geo.Point `json:"geometry"` // concatenation of all step geometries
	Origin      geo.Point   `json:"origin"`
	Destination geo.Point   `json:"destination"`
	Waypoints   []geo.Point `json:"waypoints,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
