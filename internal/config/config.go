package config

import (
	"time"

	"github.com/ersnlabs/navcore/internal/lib/announce"
	"github.com/ersnlabs/navcore/internal/lib/deviation"
	"github.com/ersnlabs/navcore/internal/lib/speed"
)

// Config represents the complete application configuration
type Config struct {
	Tracking   TrackingConfig   `yaml:"tracking"`
	Directions DirectionsConfig `yaml:"directions"`
}

// TrackingConfig holds all tuning for a tracking session. Threshold tables
// live here rather than as package constants so tests can inject synthetic
// values.
type TrackingConfig struct {
	// ThrottleInterval discards location updates arriving sooner than this
	// after the last processed one. The raw last-seen location is still
	// recorded for continuity.
	ThrottleInterval time.Duration `yaml:"throttle_interval"`

	// ProgressCheckInterval is how often the session timer re-checks
	// progress drift independent of location arrival
	ProgressCheckInterval time.Duration `yaml:"progress_check_interval"`

	// MinEmitDistance is the movement in meters that forces a progress
	// emission
	MinEmitDistance float64 `yaml:"min_emit_distance"`

	// MinEmitProgressDelta is the route-progress ratio change that forces a
	// progress emission on a location update
	MinEmitProgressDelta float64 `yaml:"min_emit_progress_delta"`

	// DriftEmitProgressDelta is the smaller ratio change that the periodic
	// timer emits on, covering slow-moving agents and silent sources
	DriftEmitProgressDelta float64 `yaml:"drift_emit_progress_delta"`

	// EventBuffer is the capacity of the session event channel; events
	// beyond it are dropped rather than blocking the update path
	EventBuffer int `yaml:"event_buffer"`

	// RerouteMinInterval debounces reroute requests triggered by the
	// level-triggered deviation signal
	RerouteMinInterval time.Duration `yaml:"reroute_min_interval"`

	Arrival      ArrivalConfig    `yaml:"arrival"`
	Speed        speed.Config     `yaml:"speed"`
	Deviation    deviation.Config `yaml:"deviation"`
	Announcement announce.Config  `yaml:"announcement"`
}

// ArrivalConfig holds the destination arrival detection thresholds
type ArrivalConfig struct {
	// OffRouteMaxDistance gates arrival evaluation while off route
	OffRouteMaxDistance float64 `yaml:"off_route_max_distance"`

	// MaxRemaining / MaxDirect are the outer qualification bounds
	MaxRemaining float64 `yaml:"max_remaining"`
	MaxDirect    float64 `yaml:"max_direct"`

	// ImmediateRemaining / ImmediateDirect trigger regardless of speed
	ImmediateRemaining float64 `yaml:"immediate_remaining"`
	ImmediateDirect    float64 `yaml:"immediate_direct"`

	// SlowSpeed is the m/s bound below which the agent counts as crawling
	SlowSpeed  float64 `yaml:"slow_speed"`
	SlowDirect float64 `yaml:"slow_direct"`

	// Stationary thresholds apply when no speed could be derived yet
	StationaryRemaining      float64 `yaml:"stationary_remaining"`
	StationaryDirect         float64 `yaml:"stationary_direct"`
	StationaryTightRemaining float64 `yaml:"stationary_tight_remaining"`
	StationaryTightDirect    float64 `yaml:"stationary_tight_direct"`
}

// DirectionsConfig holds the directions provider settings
type DirectionsConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Tracking: DefaultTrackingConfig(),
		Directions: DirectionsConfig{
			BaseURL:  "https://router.project-osrm.org",
			Timeout:  30 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
	}
}

// DefaultTrackingConfig returns the production tracking configuration
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		ThrottleInterval:       500 * time.Millisecond,
		ProgressCheckInterval:  5 * time.Second,
		MinEmitDistance:        10,
		MinEmitProgressDelta:   0.01,
		DriftEmitProgressDelta: 0.005,
		EventBuffer:            64,
		RerouteMinInterval:     15 * time.Second,
		Arrival: ArrivalConfig{
			OffRouteMaxDistance:      25,
			MaxRemaining:             15,
			MaxDirect:                30,
			ImmediateRemaining:       8,
			ImmediateDirect:          15,
			SlowSpeed:                2,
			SlowDirect:               20,
			StationaryRemaining:      12,
			StationaryDirect:         18,
			StationaryTightRemaining: 10,
			StationaryTightDirect:    15,
		},
		Speed:        speed.Defaults(),
		Deviation:    deviation.Defaults(),
		Announcement: announce.Defaults(),
	}
}
