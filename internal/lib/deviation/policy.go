// Package deviation classifies distance-from-route into a graduated
// response level and maintains the last-known-good anchor a reroute request
// needs once the agent has wandered off the geometry.
package deviation

import (
	"time"

	"github.com/ersnlabs/navcore/internal/lib/progress"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// State is the graduated deviation level for a tracking session
type State int

const (
	StateOnRoute State = iota
	StateWarning
	StateReturnGuidance
	StateReroute
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateOnRoute:
		return "on_route"
	case StateWarning:
		return "warning"
	case StateReturnGuidance:
		return "return_guidance"
	case StateReroute:
		return "reroute"
	}
	return "unknown"
}

// Config holds deviation policy tuning. The three escalating thresholds are
// always derived from the single reroute threshold in fixed proportion:
// warning = 0.3R, return guidance = 0.5R, reroute = R.
type Config struct {
	// RerouteThreshold is R, the distance in meters at which a full reroute
	// is requested
	RerouteThreshold float64 `yaml:"reroute_threshold"`
}

// Defaults returns the production deviation configuration
func Defaults() Config {
	return Config{RerouteThreshold: 50.0}
}

// Thresholds returns (warning, returnGuidance, reroute) in meters
func (c Config) Thresholds() (float64, float64, float64) {
	return 0.3 * c.RerouteThreshold, 0.5 * c.RerouteThreshold, c.RerouteThreshold
}

// LastKnownGood is the most recent confirmed-on-route context, retained as
// the anchor for reroute requests
type LastKnownGood struct {
	Location  route.Location `json:"location"`
	Maneuver  route.Maneuver `json:"maneuver"`
	StepIndex int            `json:"step_index"`
	LegIndex  int            `json:"leg_index"`
	At        time.Time      `json:"at"`
}

// Deviation is the event payload emitted when the reroute threshold is
// crossed. AnchorValid is false only if the agent was never once confirmed
// on route this session.
type Deviation struct {
	Location          route.Location `json:"location"`
	DistanceFromRoute float64        `json:"distance_from_route"`
	Timestamp         time.Time      `json:"timestamp"`
	Anchor            LastKnownGood  `json:"anchor"`
	AnchorValid       bool           `json:"anchor_valid"`
}

// Policy is the per-session graduated deviation classifier. Transitions are
// purely a function of the current distance from route; there is no
// hysteresis band, so fixes oscillating around a boundary will alternate
// states. Not safe for concurrent use; the tracker serializes evaluation.
type Policy struct {
	cfg Config

	state       State
	anchor      LastKnownGood
	anchorValid bool
}

// NewPolicy creates a deviation policy with the given configuration
func NewPolicy(cfg Config) *Policy {
	if cfg.RerouteThreshold <= 0 {
		cfg = Defaults()
	}
	return &Policy{cfg: cfg}
}

// Evaluate classifies one snapshot and returns the resulting state. When the
// distance from route reaches the reroute threshold a Deviation payload is
// returned as well. The reroute signal is level-triggered: it fires on every
// qualifying update, and downstream debouncing of actual reroute requests is
// the reroute coordinator's responsibility.
func (p *Policy) Evaluate(snap *progress.Snapshot, now time.Time) (State, *Deviation) {
	warning, returnGuidance, reroute := p.cfg.Thresholds()
	d := snap.DistanceFromRoute

	switch {
	case d >= reroute:
		p.state = StateReroute
		return p.state, &Deviation{
			Location:          snap.Location,
			DistanceFromRoute: d,
			Timestamp:         now,
			Anchor:            p.anchor,
			AnchorValid:       p.anchorValid,
		}

	case d > returnGuidance:
		p.state = StateReturnGuidance
		// Opportunistic anchor refresh: if the agent started already adrift
		// and no good anchor was ever captured, this position is still the
		// best available reroute context
		if !p.anchorValid {
			p.recordAnchor(snap, now)
		}
		return p.state, nil

	case d > warning:
		p.state = StateWarning
		return p.state, nil

	default:
		p.state = StateOnRoute
		p.recordAnchor(snap, now)
		return p.state, nil
	}
}

func (p *Policy) recordAnchor(snap *progress.Snapshot, now time.Time) {
	p.anchor = LastKnownGood{
		Location:  snap.Location,
		Maneuver:  snap.UpcomingManeuver,
		StepIndex: snap.CurrentStepIndex,
		LegIndex:  snap.CurrentLegIndex,
		At:        now,
	}
	p.anchorValid = true
}

// State returns the current deviation state
func (p *Policy) State() State {
	return p.state
}

// LastKnownGood returns the current reroute anchor, and whether one has
// been captured this session
func (p *Policy) LastKnownGood() (LastKnownGood, bool) {
	return p.anchor, p.anchorValid
}

// Reset clears all policy state for a new tracking session or a new route
func (p *Policy) Reset() {
	p.state = StateOnRoute
	p.anchor = LastKnownGood{}
	p.anchorValid = false
}
