package announce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersnlabs/navcore/internal/lib/announce"
	"github.com/ersnlabs/navcore/internal/lib/route"
	"github.com/ersnlabs/navcore/internal/lib/speed"
)

func turnManeuver(stepIdx int) route.Maneuver {
	return route.Maneuver{
		Type:        route.ManeuverTurn,
		Modifier:    route.ModifierRight,
		Instruction: "Turn right",
		StepIndex:   stepIdx,
	}
}

func TestScheduler_AnnouncementDistance(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	simple := route.Maneuver{Type: route.ManeuverTurn, Modifier: route.ModifierRight}

	// Urban at 10 m/s: 10*15 + 50 = 200m
	assert.Equal(t, 200.0, s.AnnouncementDistance(simple, speed.RoadUrban, 10))

	// Urban turn is not complex, but a U-turn is: 10*(15+10) + 50 = 300m
	uturn := route.Maneuver{Type: route.ManeuverTurn, Modifier: route.ModifierUTurn}
	assert.Equal(t, 300.0, s.AnnouncementDistance(uturn, speed.RoadUrban, 10))

	// Highway treats a plain turn as complex: 30*(35+10) + 50 = 1400, clamped to 1000
	assert.Equal(t, 1000.0, s.AnnouncementDistance(simple, speed.RoadHighway, 30))

	// Very low speed clamps up to the minimum
	assert.Equal(t, 100.0, s.AnnouncementDistance(simple, speed.RoadUrban, 1))
}

func TestIsComplex(t *testing.T) {
	sharp := route.Maneuver{Type: route.ManeuverTurn, Modifier: route.ModifierSharpLeft}
	assert.True(t, announce.IsComplex(sharp, speed.RoadUrban))

	roundabout := route.Maneuver{Type: route.ManeuverRoundabout}
	assert.True(t, announce.IsComplex(roundabout, speed.RoadUrban))

	// A plain turn is complex only at highway closing speeds
	turn := route.Maneuver{Type: route.ManeuverTurn, Modifier: route.ModifierRight}
	assert.False(t, announce.IsComplex(turn, speed.RoadUrban))
	assert.True(t, announce.IsComplex(turn, speed.RoadHighway))

	merge := route.Maneuver{Type: route.ManeuverMerge}
	assert.False(t, announce.IsComplex(merge, speed.RoadSuburban))
	assert.True(t, announce.IsComplex(merge, speed.RoadHighway))
}

func TestScheduler_InitialAnnouncement(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	now := time.Now()
	m := turnManeuver(1)

	// Beyond the adaptive distance: stay silent
	assert.Nil(t, s.Evaluate(m, 500, speed.RoadUrban, 10, now))

	// Inside it: first announcement of the session
	ann := s.Evaluate(m, 180, speed.RoadUrban, 10, now)
	require.NotNil(t, ann)
	assert.Equal(t, announce.KindInitial, ann.Kind)
	assert.Equal(t, m, ann.Maneuver)
}

func TestScheduler_SuppressesRapidRepeatOfSameManeuver(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	now := time.Now()
	m := turnManeuver(1)

	require.NotNil(t, s.Evaluate(m, 180, speed.RoadUrban, 10, now))

	// Lingering near the same maneuver within the suppression window
	assert.Nil(t, s.Evaluate(m, 150, speed.RoadUrban, 10, now.Add(10*time.Second)))
	assert.Nil(t, s.Evaluate(m, 120, speed.RoadUrban, 10, now.Add(29*time.Second)))
}

func TestScheduler_PrimaryAfterCooldown(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	now := time.Now()

	require.NotNil(t, s.Evaluate(turnManeuver(1), 180, speed.RoadUrban, 10, now))

	// The next maneuver comes into range after the urban cooldown (10s)
	ann := s.Evaluate(turnManeuver(2), 190, speed.RoadUrban, 10, now.Add(12*time.Second))
	require.NotNil(t, ann)
	assert.Equal(t, announce.KindPrimary, ann.Kind)
}

func TestScheduler_ReminderForCloseDifferentManeuver(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	now := time.Now()

	require.NotNil(t, s.Evaluate(turnManeuver(1), 180, speed.RoadUrban, 10, now))

	// 6s elapsed: inside the reminder distance (30m urban), past half the
	// cooldown but not the full cooldown
	ann := s.Evaluate(turnManeuver(2), 25, speed.RoadUrban, 10, now.Add(6*time.Second))
	require.NotNil(t, ann)
	assert.Equal(t, announce.KindReminder, ann.Kind)
}

func TestScheduler_UrgentForImminentDifferentManeuver(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	now := time.Now()

	require.NotNil(t, s.Evaluate(turnManeuver(1), 180, speed.RoadSuburban, 10, now))

	// Suburban: urgent distance 30m, gap 6s is past the 5s minimum but not
	// past half the 15s cooldown
	ann := s.Evaluate(turnManeuver(2), 20, speed.RoadSuburban, 10, now.Add(6*time.Second))
	require.NotNil(t, ann)
	assert.Equal(t, announce.KindUrgent, ann.Kind)
}

func TestScheduler_FinalReminderForSlowExecution(t *testing.T) {
	// The final-reminder row is only reachable when the cooldown outlasts
	// the repeat-suppression window; inject a synthetic config to pin the
	// rule down
	cfg := announce.Defaults()
	cfg.Urban.Cooldown = 60 * time.Second
	s := announce.NewScheduler(cfg)
	now := time.Now()

	m := turnManeuver(1)
	require.NotNil(t, s.Evaluate(m, 180, speed.RoadUrban, 10, now))

	// Still sitting 10m from the same maneuver 40s later
	ann := s.Evaluate(m, 10, speed.RoadUrban, 10, now.Add(40*time.Second))
	require.NotNil(t, ann)
	assert.Equal(t, announce.KindFinal, ann.Kind)
}

func TestScheduler_Reset(t *testing.T) {
	s := announce.NewScheduler(announce.Defaults())
	now := time.Now()
	m := turnManeuver(1)

	require.NotNil(t, s.Evaluate(m, 180, speed.RoadUrban, 10, now))
	_, _, announced := s.LastAnnounced()
	require.True(t, announced)

	s.Reset()
	_, _, announced = s.LastAnnounced()
	assert.False(t, announced)

	// After reset the same maneuver announces again as initial
	ann := s.Evaluate(m, 180, speed.RoadUrban, 10, now.Add(time.Second))
	require.NotNil(t, ann)
	assert.Equal(t, announce.KindInitial, ann.Kind)
}
