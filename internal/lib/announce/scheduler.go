// Package announce decides when the upcoming maneuver should be announced,
// scaling the announcement distance to current speed and road type and
// suppressing rapid repeats. The scheduler emits structured announcement
// decisions; rendering them as speech or text is the consumer's concern.
package announce

import (
	"time"

	"github.com/ersnlabs/navcore/internal/lib/route"
	"github.com/ersnlabs/navcore/internal/lib/speed"
)

// Kind distinguishes why an announcement fired
type Kind int

const (
	// KindInitial is the first announcement of a session
	KindInitial Kind = iota
	// KindPrimary is the standard advance announcement
	KindPrimary
	// KindReminder fires when closing in on a maneuver not announced recently
	KindReminder
	// KindUrgent fires when the maneuver is imminent
	KindUrgent
	// KindFinal re-announces an imminent maneuver the agent is unusually
	// slow to execute
	KindFinal
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindPrimary:
		return "primary"
	case KindReminder:
		return "reminder"
	case KindUrgent:
		return "urgent"
	case KindFinal:
		return "final"
	}
	return "unknown"
}

// Announcement is the decision to announce a maneuver now
type Announcement struct {
	Maneuver route.Maneuver `json:"maneuver"`
	Kind     Kind           `json:"kind"`
	// Distance is the distance to the maneuver in meters at decision time
	Distance float64 `json:"distance"`
}

// RoadTiming holds the per-road-type announcement constants
type RoadTiming struct {
	// BaseWarningTime is how many seconds of travel ahead of the maneuver
	// the primary announcement should land
	BaseWarningTime time.Duration `yaml:"base_warning_time"`
	// Cooldown is the minimum gap between primary announcements
	Cooldown time.Duration `yaml:"cooldown"`
	// ReminderDistance triggers a reminder announcement in meters
	ReminderDistance float64 `yaml:"reminder_distance"`
	// UrgentDistance triggers an imminent announcement in meters
	UrgentDistance float64 `yaml:"urgent_distance"`
}

// Config holds announcement scheduler tuning
type Config struct {
	Urban    RoadTiming `yaml:"urban"`
	Suburban RoadTiming `yaml:"suburban"`
	Highway  RoadTiming `yaml:"highway"`

	// SafetyBuffer is added to every adaptive announcement distance
	SafetyBuffer float64 `yaml:"safety_buffer"`
	// MinDistance / MaxDistance clamp the adaptive announcement distance
	MinDistance float64 `yaml:"min_distance"`
	MaxDistance float64 `yaml:"max_distance"`
	// ComplexityExtra extends the warning time for complex maneuvers
	ComplexityExtra time.Duration `yaml:"complexity_extra"`
	// RepeatSuppression blocks re-announcing the same maneuver within this window
	RepeatSuppression time.Duration `yaml:"repeat_suppression"`
	// UrgentMinElapsed is the minimum gap before an urgent announcement
	UrgentMinElapsed time.Duration `yaml:"urgent_min_elapsed"`
	// FinalReminderElapsed is the gap after which an imminent maneuver is
	// re-announced even though it was announced before
	FinalReminderElapsed time.Duration `yaml:"final_reminder_elapsed"`
}

// Defaults returns the production announcement configuration
func Defaults() Config {
	return Config{
		Urban:    RoadTiming{BaseWarningTime: 15 * time.Second, Cooldown: 10 * time.Second, ReminderDistance: 30, UrgentDistance: 15},
		Suburban: RoadTiming{BaseWarningTime: 20 * time.Second, Cooldown: 15 * time.Second, ReminderDistance: 60, UrgentDistance: 30},
		Highway:  RoadTiming{BaseWarningTime: 35 * time.Second, Cooldown: 20 * time.Second, ReminderDistance: 100, UrgentDistance: 50},

		SafetyBuffer:         50,
		MinDistance:          100,
		MaxDistance:          1000,
		ComplexityExtra:      10 * time.Second,
		RepeatSuppression:    30 * time.Second,
		UrgentMinElapsed:     5 * time.Second,
		FinalReminderElapsed: 25 * time.Second,
	}
}

// timing returns the constants for the given road type
func (c Config) timing(rt speed.RoadType) RoadTiming {
	switch rt {
	case speed.RoadHighway:
		return c.Highway
	case speed.RoadUrban:
		return c.Urban
	default:
		return c.Suburban
	}
}

// Scheduler tracks the last announced maneuver and decides, per evaluation,
// whether to announce now. Not safe for concurrent use; the tracker
// serializes evaluation.
type Scheduler struct {
	cfg Config

	lastManeuver    route.Maneuver
	lastAnnouncedAt time.Time
	hasAnnounced    bool
}

// NewScheduler creates a scheduler with the given configuration
func NewScheduler(cfg Config) *Scheduler {
	if cfg.MaxDistance <= 0 {
		cfg = Defaults()
	}
	return &Scheduler{cfg: cfg}
}

// AnnouncementDistance computes the adaptive distance in meters at which the
// given maneuver should be announced: current speed times the road-type
// warning time (extended for complex maneuvers), plus the safety buffer,
// clamped to [MinDistance, MaxDistance].
func (s *Scheduler) AnnouncementDistance(m route.Maneuver, rt speed.RoadType, speedMS float64) float64 {
	timing := s.cfg.timing(rt)

	warningTime := timing.BaseWarningTime
	if IsComplex(m, rt) {
		warningTime += s.cfg.ComplexityExtra
	}

	distance := speedMS*warningTime.Seconds() + s.cfg.SafetyBuffer
	if distance < s.cfg.MinDistance {
		return s.cfg.MinDistance
	}
	if distance > s.cfg.MaxDistance {
		return s.cfg.MaxDistance
	}
	return distance
}

// IsComplex reports whether a maneuver needs extra warning time. Criteria
// widen with road type: at highway closing speeds, merges, turns, and road
// endings are treated as inherently complex as well.
func IsComplex(m route.Maneuver, rt speed.RoadType) bool {
	switch m.Modifier {
	case route.ModifierUTurn, route.ModifierSharpLeft, route.ModifierSharpRight:
		return true
	}

	switch m.Type {
	case route.ManeuverFork, route.ManeuverRoundabout, route.ManeuverExitRoundabout,
		route.ManeuverRotary, route.ManeuverExitRotary,
		route.ManeuverOnRamp, route.ManeuverOffRamp:
		return true
	}

	if rt == speed.RoadHighway {
		switch m.Type {
		case route.ManeuverMerge, route.ManeuverTurn, route.ManeuverEndOfRoad:
			return true
		}
	}

	return false
}

// Evaluate applies the decision table for one update cycle and returns the
// announcement to emit, or nil to stay silent. First matching rule wins:
//
//  1. nothing announced yet this session: announce inside the adaptive distance
//  2. same maneuver announced within the repeat-suppression window: suppress
//  3. inside the adaptive distance and past the road-type cooldown: primary
//  4. inside the reminder distance, past half the cooldown, different
//     maneuver: reminder
//  5. inside the urgent distance, minimal gap elapsed, different maneuver:
//     urgent
//  6. inside the urgent distance, same maneuver, long gap: final reminder
func (s *Scheduler) Evaluate(m route.Maneuver, distanceTo float64, rt speed.RoadType, speedMS float64, now time.Time) *Announcement {
	timing := s.cfg.timing(rt)
	adaptive := s.AnnouncementDistance(m, rt, speedMS)

	if !s.hasAnnounced {
		if distanceTo <= adaptive {
			return s.announce(m, KindInitial, distanceTo, now)
		}
		return nil
	}

	elapsed := now.Sub(s.lastAnnouncedAt)
	same := m.SameAs(s.lastManeuver)

	if same && elapsed < s.cfg.RepeatSuppression {
		return nil
	}

	if distanceTo <= adaptive && elapsed > timing.Cooldown {
		return s.announce(m, KindPrimary, distanceTo, now)
	}

	if distanceTo <= timing.ReminderDistance && elapsed > timing.Cooldown/2 && !same {
		return s.announce(m, KindReminder, distanceTo, now)
	}

	if distanceTo <= timing.UrgentDistance && elapsed > s.cfg.UrgentMinElapsed && !same {
		return s.announce(m, KindUrgent, distanceTo, now)
	}

	if distanceTo <= timing.UrgentDistance && same && elapsed > s.cfg.FinalReminderElapsed {
		return s.announce(m, KindFinal, distanceTo, now)
	}

	return nil
}

func (s *Scheduler) announce(m route.Maneuver, kind Kind, distanceTo float64, now time.Time) *Announcement {
	s.lastManeuver = m
	s.lastAnnouncedAt = now
	s.hasAnnounced = true
	return &Announcement{Maneuver: m, Kind: kind, Distance: distanceTo}
}

// LastAnnounced returns the last announced maneuver and its timestamp
func (s *Scheduler) LastAnnounced() (route.Maneuver, time.Time, bool) {
	return s.lastManeuver, s.lastAnnouncedAt, s.hasAnnounced
}

// Reset clears scheduler state for a new tracking session or a new route
func (s *Scheduler) Reset() {
	s.lastManeuver = route.Maneuver{}
	s.lastAnnouncedAt = time.Time{}
	s.hasAnnounced = false
}
