package speed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// fixesAtConstantSpeed generates fixes moving due north at the given speed
// in m/s, one per interval
func fixesAtConstantSpeed(speedMS float64, interval time.Duration, count int) []route.Location {
	// ~111,195 meters per degree of latitude
	degPerFix := speedMS * interval.Seconds() / 111195.0

	fixes := make([]route.Location, count)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lat := 38.0
	for i := range fixes {
		fixes[i] = route.Location{
			Point:     geo.Point{Latitude: lat, Longitude: -120.5},
			Timestamp: start.Add(time.Duration(i) * interval),
		}
		lat += degPerFix
	}
	return fixes
}

func TestEstimator_ConvergesOnConstantSpeed(t *testing.T) {
	e := NewEstimator(Defaults())

	fixes := fixesAtConstantSpeed(10.0, time.Second, 10)
	for i, fix := range fixes {
		est := e.Update(fix)
		if i >= 7 {
			assert.InDelta(t, 10.0, est, 0.5,
				"estimate should be within 5%% of 10 m/s by fix %d", i+1)
		}
	}
}

func TestEstimator_FirstFixProducesNoEstimate(t *testing.T) {
	e := NewEstimator(Defaults())

	fixes := fixesAtConstantSpeed(10.0, time.Second, 1)
	assert.Equal(t, 0.0, e.Update(fixes[0]), "no speed can be derived from a single fix")
	assert.Equal(t, 0.0, e.Current())
}

func TestEstimator_SkipsNonPositiveElapsedTime(t *testing.T) {
	e := NewEstimator(Defaults())

	fixes := fixesAtConstantSpeed(10.0, time.Second, 5)
	for _, fix := range fixes {
		e.Update(fix)
	}
	before := e.Current()

	// Duplicate timestamp: same instant, different position
	duplicate := fixes[4]
	duplicate.Point.Latitude += 0.01
	assert.Equal(t, before, e.Update(duplicate), "zero elapsed time must not update the estimate")

	// Out-of-order fix: earlier timestamp
	stale := fixes[4]
	stale.Timestamp = fixes[2].Timestamp
	assert.Equal(t, before, e.Update(stale), "negative elapsed time must not update the estimate")
}

func TestEstimator_DampsSingleFixJitter(t *testing.T) {
	e := NewEstimator(Defaults())

	fixes := fixesAtConstantSpeed(10.0, time.Second, 8)
	for _, fix := range fixes {
		e.Update(fix)
	}
	settled := e.Current()

	// One wild fix: a GPS jump equivalent to 40 m/s for a second
	jitter := fixes[7]
	jitter.Timestamp = jitter.Timestamp.Add(time.Second)
	jitter.Point.Latitude += 40.0 / 111195.0
	est := e.Update(jitter)

	// Two-stage damping: the jump moves the estimate but nowhere near the
	// instantaneous 40 m/s
	assert.Less(t, est, settled+6.0, "single outlier fix must be heavily damped")
	assert.Greater(t, est, settled, "outlier still nudges the estimate upward")
}

func TestEstimator_WindowRestartBoundsStaleSamples(t *testing.T) {
	cfg := Defaults()
	e := NewEstimator(cfg)

	// 12 fixes 1s apart crosses two window resets without losing the estimate
	fixes := fixesAtConstantSpeed(20.0, time.Second, 12)
	var est float64
	for _, fix := range fixes {
		est = e.Update(fix)
	}
	assert.InDelta(t, 20.0, est, 1.0)
}

func TestEstimator_Reset(t *testing.T) {
	e := NewEstimator(Defaults())

	for _, fix := range fixesAtConstantSpeed(10.0, time.Second, 5) {
		e.Update(fix)
	}
	assert.Greater(t, e.Current(), 0.0)

	e.Reset()
	assert.Equal(t, 0.0, e.Current())
}

func TestClassifyRoad_SpeedThresholds(t *testing.T) {
	e := NewEstimator(Defaults())

	e.smoothed = 10.0
	assert.Equal(t, RoadUrban, e.ClassifyRoad(""))

	e.smoothed = 20.0
	assert.Equal(t, RoadSuburban, e.ClassifyRoad(""))

	e.smoothed = 30.0
	assert.Equal(t, RoadHighway, e.ClassifyRoad(""))
}

func TestClassifyRoad_NameHintsResolveMidBand(t *testing.T) {
	e := NewEstimator(Defaults())
	e.smoothed = 20.0 // ambiguous mid-band

	assert.Equal(t, RoadHighway, e.ClassifyRoad("Lincoln Highway"))
	assert.Equal(t, RoadHighway, e.ClassifyRoad("I-80 Express"))
	assert.Equal(t, RoadUrban, e.ClassifyRoad("Main Street"))
	assert.Equal(t, RoadUrban, e.ClassifyRoad("5th Ave"))
	assert.Equal(t, RoadSuburban, e.ClassifyRoad("Skyline"))

	// Hints do not override an unambiguous speed
	e.smoothed = 30.0
	assert.Equal(t, RoadHighway, e.ClassifyRoad("Main Street"))
}
