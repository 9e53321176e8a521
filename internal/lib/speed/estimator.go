// Package speed maintains a damped estimate of the agent's current speed
// from noisy consecutive location fixes, and classifies the road type being
// driven from that estimate. Classification is best-effort heuristic input
// for announcement timing, not an authoritative determination.
package speed

import (
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// RoadType is a coarse classification of the road currently being driven
type RoadType int

const (
	RoadUrban RoadType = iota
	RoadSuburban
	RoadHighway
)

// String returns a human-readable road type name
func (r RoadType) String() string {
	switch r {
	case RoadUrban:
		return "urban"
	case RoadSuburban:
		return "suburban"
	case RoadHighway:
		return "highway"
	}
	return "unknown"
}

// Config holds speed estimator tuning. Defaults() gives the production
// values; tests inject synthetic ones.
type Config struct {
	// WindowSize caps the instantaneous-speed history
	WindowSize int `yaml:"window_size"`
	// WindowReset clears the history after this much elapsed time, bounding
	// drift from stale samples during long steady-state driving
	WindowReset time.Duration `yaml:"window_reset"`
	// Weights are applied to the most recent samples, oldest first. With
	// fewer samples than weights, the most recent weights are used.
	Weights []float64 `yaml:"weights"`
	// BlendPrevious is the share of the previous smoothed estimate kept when
	// the window has at least MinWindowSamples samples
	BlendPrevious float64 `yaml:"blend_previous"`
	// WarmupBlendPrevious is the share kept below MinWindowSamples
	WarmupBlendPrevious float64 `yaml:"warmup_blend_previous"`
	// MinWindowSamples is the sample count at which weighted averaging kicks in
	MinWindowSamples int `yaml:"min_window_samples"`
	// UrbanMaxSpeed is the urban/suburban boundary in m/s (~35 mph)
	UrbanMaxSpeed float64 `yaml:"urban_max_speed"`
	// HighwayMinSpeed is the suburban/highway boundary in m/s (~55 mph)
	HighwayMinSpeed float64 `yaml:"highway_min_speed"`
}

// Defaults returns the production estimator configuration
func Defaults() Config {
	return Config{
		WindowSize:          5,
		WindowReset:         5 * time.Second,
		Weights:             []float64{0.1, 0.15, 0.25, 0.25, 0.25},
		BlendPrevious:       0.6,
		WarmupBlendPrevious: 0.7,
		MinWindowSamples:    3,
		UrbanMaxSpeed:       15.6,
		HighwayMinSpeed:     24.6,
	}
}

// Estimator smooths instantaneous speeds computed from consecutive fixes.
// It is not safe for concurrent use; the tracker serializes updates.
type Estimator struct {
	cfg Config

	history      []float64
	smoothed     float64
	initialized  bool
	lastPoint    geo.Point
	lastTime     time.Time
	hasLast      bool
	windowAnchor time.Time
}

var geoUtils = geo.NewGeoUtils()

// NewEstimator creates an estimator with the given configuration
func NewEstimator(cfg Config) *Estimator {
	if cfg.WindowSize <= 0 {
		cfg = Defaults()
	}
	return &Estimator{cfg: cfg}
}

// Update consumes one location fix and returns the current smoothed
// estimate in m/s. Fixes with non-positive elapsed time since the previous
// fix (out-of-order or duplicate timestamps) leave the estimate unchanged.
func (e *Estimator) Update(loc route.Location) float64 {
	if !e.hasLast {
		e.lastPoint = loc.Point
		e.lastTime = loc.Timestamp
		e.hasLast = true
		e.windowAnchor = loc.Timestamp
		return e.smoothed
	}

	elapsed := loc.Timestamp.Sub(e.lastTime)
	if elapsed <= 0 {
		return e.smoothed
	}

	distance, err := geoUtils.PointToPoint(e.lastPoint, loc.Point)
	if err != nil {
		return e.smoothed
	}

	instantaneous := distance / elapsed.Seconds()

	e.lastPoint = loc.Point
	e.lastTime = loc.Timestamp

	// Restart the sample window periodically so a long steady drive does not
	// accumulate stale samples
	if loc.Timestamp.Sub(e.windowAnchor) >= e.cfg.WindowReset {
		e.history = e.history[:0]
		e.windowAnchor = loc.Timestamp
	}

	e.history = append(e.history, instantaneous)
	if len(e.history) > e.cfg.WindowSize {
		e.history = e.history[len(e.history)-e.cfg.WindowSize:]
	}

	if !e.initialized {
		e.smoothed = instantaneous
		e.initialized = true
		return e.smoothed
	}

	if len(e.history) >= e.cfg.MinWindowSamples {
		weighted := e.weightedAverage()
		e.smoothed = e.cfg.BlendPrevious*e.smoothed + (1-e.cfg.BlendPrevious)*weighted
	} else {
		e.smoothed = e.cfg.WarmupBlendPrevious*e.smoothed + (1-e.cfg.WarmupBlendPrevious)*instantaneous
	}

	return e.smoothed
}

// weightedAverage computes the recency-biased mean of the sample window.
// The weight table is right-aligned against the window so the newest sample
// always gets the heaviest weight; stat.Mean normalizes partial weight sums.
func (e *Estimator) weightedAverage() float64 {
	n := len(e.history)
	weights := e.cfg.Weights
	if n < len(weights) {
		weights = weights[len(weights)-n:]
	} else if n > len(weights) {
		n = len(weights)
	}
	samples := e.history[len(e.history)-n:]
	return stat.Mean(samples, weights)
}

// Current returns the current smoothed estimate in m/s
func (e *Estimator) Current() float64 {
	return e.smoothed
}

// HasEstimate reports whether at least one instantaneous speed has been
// derived; false means the agent looks stationary to arrival detection
func (e *Estimator) HasEstimate() bool {
	return e.initialized
}

// Reset clears all estimator state for a new tracking session
func (e *Estimator) Reset() {
	e.history = nil
	e.smoothed = 0
	e.initialized = false
	e.hasLast = false
	e.windowAnchor = time.Time{}
}

// highwayHints and urbanHints reclassify ambiguous mid-band speeds using the
// current road name
var highwayHints = []string{"highway", "hwy", "interstate", "freeway", "expressway", "i-", "us-", "route"}
var urbanHints = []string{"street", "st", "avenue", "ave", "boulevard", "blvd", "lane", "ln", "drive", "dr", "court", "ct"}

// ClassifyRoad derives a road type from the smoothed speed estimate.
// Speeds below the urban boundary are urban, above the highway boundary are
// highway; the ambiguous mid-band is resolved by road-name hints when
// available, defaulting to suburban.
func (e *Estimator) ClassifyRoad(roadName string) RoadType {
	switch {
	case e.smoothed >= e.cfg.HighwayMinSpeed:
		return RoadHighway
	case e.smoothed < e.cfg.UrbanMaxSpeed:
		return RoadUrban
	}

	name := strings.ToLower(roadName)
	for _, hint := range highwayHints {
		if containsWord(name, hint) {
			return RoadHighway
		}
	}
	for _, hint := range urbanHints {
		if containsWord(name, hint) {
			return RoadUrban
		}
	}
	return RoadSuburban
}

// containsWord reports whether the name matches the hint: longer hints like
// "highway" and prefix hints like "i-" match as substrings, short
// abbreviations like "st" must match a whole token to avoid false positives
// inside words
func containsWord(name, hint string) bool {
	if len(hint) > 3 || strings.Contains(hint, "-") {
		return strings.Contains(name, hint)
	}
	for _, token := range strings.Fields(name) {
		token = strings.TrimSuffix(token, ".")
		if token == hint {
			return true
		}
	}
	return false
}
