// Package osrm provides access to an OSRM routing server and converts its
// responses into the internal route model.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ersnlabs/navcore/internal/cache"
	"github.com/ersnlabs/navcore/internal/config"
	"github.com/ersnlabs/navcore/internal/lib/deviation"
	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// Client provides access to the OSRM HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	cacheTTL   time.Duration
}

var geoUtils = geo.NewGeoUtils()

// NewClient creates an OSRM client. The cache is optional; with a nil cache
// every request goes to the server.
func NewClient(cfg config.DirectionsConfig, routeCache *cache.Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		cache:    routeCache,
		cacheTTL: cfg.CacheTTL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Directions computes a route between two points, serving recent repeat
// requests from the cache
func (c *Client) Directions(ctx context.Context, origin, destination geo.Point) (*route.Route, error) {
	if c.cache != nil {
		if cached, found, err := c.cache.GetRoute(origin, destination); err == nil && found {
			return cached, nil
		}
	}

	r, err := c.fetch(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.cacheTTL > 0 {
		// Cache failures degrade to uncached operation
		_ = c.cache.SetRoute(r, c.cacheTTL)
	}
	return r, nil
}

// Reroute computes a fresh route from the agent's current position to the
// original destination. Reroutes bypass the cache; the whole point is new
// geometry from where the agent actually is.
func (c *Client) Reroute(ctx context.Context, current route.Location, anchor deviation.LastKnownGood, anchorValid bool, original *route.Route) (*route.Route, error) {
	if original == nil {
		return nil, fmt.Errorf("original route is required")
	}
	return c.fetch(ctx, current.Point, original.Destination)
}

func (c *Client) fetch(ctx context.Context, origin, destination geo.Point) (*route.Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?steps=true&geometries=polyline&overview=full",
		c.baseURL, origin.Longitude, origin.Latitude, destination.Longitude, destination.Latitude)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Code != "Ok" {
		return nil, fmt.Errorf("routing failed: %s (%s)", response.Code, response.Message)
	}
	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return c.convertRoute(response.Routes[0], response.Waypoints, origin, destination)
}

// convertRoute translates an OSRM route into the internal model. OSRM places
// each maneuver at the start of its step; the internal model places it at
// the step end, so each converted step takes the following OSRM step's
// maneuver and OSRM's trailing zero-length arrival step folds into the last
// real step.
func (c *Client) convertRoute(or osrmRoute, waypoints []osrmWaypoint, origin, destination geo.Point) (*route.Route, error) {
	geometry, err := geoUtils.DecodePolyline(or.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode route geometry: %w", err)
	}

	r := &route.Route{
		ID:          uuid.NewString(),
		Distance:    or.Distance,
		Duration:    or.Duration,
		Geometry:    geometry,
		Origin:      origin,
		Destination: destination,
		CreatedAt:   time.Now(),
	}

	for li, ol := range or.Legs {
		leg, err := c.convertLeg(ol, li)
		if err != nil {
			return nil, fmt.Errorf("failed to convert leg %d: %w", li, err)
		}
		r.Legs = append(r.Legs, leg)
	}

	for _, wp := range waypoints {
		if len(wp.Location) == 2 {
			r.Waypoints = append(r.Waypoints, geo.Point{Latitude: wp.Location[1], Longitude: wp.Location[0]})
		}
	}

	return r, nil
}

func (c *Client) convertLeg(ol osrmLeg, legIdx int) (route.Leg, error) {
	leg := route.Leg{
		Index:    legIdx,
		Distance: ol.Distance,
		Duration: ol.Duration,
	}

	if len(ol.Steps) == 0 {
		return leg, fmt.Errorf("leg has no steps")
	}

	// OSRM's final step is the zero-length arrival marker; fold it into the
	// preceding step so every internal step ends at a maneuver
	stepCount := len(ol.Steps) - 1
	if stepCount == 0 {
		stepCount = 1
	}

	for si := 0; si < stepCount; si++ {
		os := ol.Steps[si]

		geometry, err := geoUtils.DecodePolyline(os.Geometry)
		if err != nil {
			return leg, fmt.Errorf("failed to decode step %d geometry: %w", si, err)
		}

		// The maneuver ending this step opens the next OSRM step
		endManeuver := ol.Steps[si].Maneuver
		nextName := os.Name
		if si+1 < len(ol.Steps) {
			endManeuver = ol.Steps[si+1].Maneuver
			nextName = ol.Steps[si+1].Name
		}

		step := route.Step{
			Index:    si,
			Geometry: geometry,
			Distance: os.Distance,
			Duration: os.Duration,
			RoadName: os.Name,
		}
		step.Maneuver = route.Maneuver{
			Type:               maneuverType(endManeuver.Type),
			Modifier:           maneuverModifier(endManeuver.Modifier),
			Instruction:        instructionFor(maneuverType(endManeuver.Type), maneuverModifier(endManeuver.Modifier), nextName),
			Location:           maneuverLocation(endManeuver, geometry),
			DistanceToManeuver: os.Distance,
			StepIndex:          si,
			LegIndex:           legIdx,
		}

		leg.Steps = append(leg.Steps, step)
	}

	first := leg.Steps[0]
	last := leg.Steps[len(leg.Steps)-1]
	if len(first.Geometry) > 0 {
		leg.Start = first.Geometry[0]
	}
	if len(last.Geometry) > 0 {
		leg.End = last.Geometry[len(last.Geometry)-1]
	}

	return leg, nil
}

func maneuverLocation(m osrmManeuver, stepGeometry []geo.Point) geo.Point {
	if len(m.Location) == 2 {
		return geo.Point{Latitude: m.Location[1], Longitude: m.Location[0]}
	}
	if len(stepGeometry) > 0 {
		return stepGeometry[len(stepGeometry)-1]
	}
	return geo.Point{}
}

// maneuverType maps an OSRM maneuver type string onto the internal enum.
// Unrecognized types degrade to a plain turn rather than failing the route.
func maneuverType(s string) route.ManeuverType {
	switch s {
	case "depart":
		return route.ManeuverDepart
	case "turn":
		return route.ManeuverTurn
	case "continue":
		return route.ManeuverContinue
	case "new name":
		return route.ManeuverNewName
	case "merge":
		return route.ManeuverMerge
	case "on ramp":
		return route.ManeuverOnRamp
	case "off ramp":
		return route.ManeuverOffRamp
	case "fork":
		return route.ManeuverFork
	case "end of road":
		return route.ManeuverEndOfRoad
	case "roundabout":
		return route.ManeuverRoundabout
	case "exit roundabout":
		return route.ManeuverExitRoundabout
	case "rotary":
		return route.ManeuverRotary
	case "exit rotary":
		return route.ManeuverExitRotary
	case "notification":
		return route.ManeuverNotification
	case "arrive":
		return route.ManeuverArrive
	default:
		return route.ManeuverTurn
	}
}

// maneuverModifier maps an OSRM modifier string onto the internal enum
func maneuverModifier(s string) route.ManeuverModifier {
	switch s {
	case "uturn":
		return route.ModifierUTurn
	case "sharp left":
		return route.ModifierSharpLeft
	case "left":
		return route.ModifierLeft
	case "slight left":
		return route.ModifierSlightLeft
	case "straight":
		return route.ModifierStraight
	case "slight right":
		return route.ModifierSlightRight
	case "right":
		return route.ModifierRight
	case "sharp right":
		return route.ModifierSharpRight
	default:
		return route.ModifierNone
	}
}

// instructionFor synthesizes display text for a maneuver
func instructionFor(t route.ManeuverType, m route.ManeuverModifier, roadName string) string {
	onto := ""
	if roadName != "" {
		onto = " onto " + roadName
	}

	switch t {
	case route.ManeuverDepart:
		if roadName != "" {
			return "Head out on " + roadName
		}
		return "Head out"
	case route.ManeuverArrive:
		return "You have arrived at your destination"
	case route.ManeuverMerge:
		return "Merge" + directionSuffix(m) + onto
	case route.ManeuverOnRamp:
		return "Take the ramp" + directionSuffix(m) + onto
	case route.ManeuverOffRamp:
		return "Take the exit" + directionSuffix(m) + onto
	case route.ManeuverFork:
		return "Keep" + forkSuffix(m) + " at the fork" + onto
	case route.ManeuverEndOfRoad:
		return "At the end of the road, " + turnPhrase(m) + onto
	case route.ManeuverRoundabout, route.ManeuverRotary:
		return "Enter the roundabout" + onto
	case route.ManeuverExitRoundabout, route.ManeuverExitRotary:
		return "Exit the roundabout" + onto
	case route.ManeuverContinue, route.ManeuverNewName:
		if roadName != "" {
			return "Continue on " + roadName
		}
		return "Continue straight"
	default:
		s := turnPhrase(m)
		if s == "" {
			s = "continue"
		}
		return upperFirst(s) + onto
	}
}

func turnPhrase(m route.ManeuverModifier) string {
	switch m {
	case route.ModifierUTurn:
		return "make a U-turn"
	case route.ModifierSharpLeft:
		return "turn sharply left"
	case route.ModifierLeft:
		return "turn left"
	case route.ModifierSlightLeft:
		return "bear left"
	case route.ModifierStraight:
		return "continue straight"
	case route.ModifierSlightRight:
		return "bear right"
	case route.ModifierRight:
		return "turn right"
	case route.ModifierSharpRight:
		return "turn sharply right"
	}
	return ""
}

func directionSuffix(m route.ManeuverModifier) string {
	switch m {
	case route.ModifierLeft, route.ModifierSlightLeft, route.ModifierSharpLeft:
		return " left"
	case route.ModifierRight, route.ModifierSlightRight, route.ModifierSharpRight:
		return " right"
	}
	return ""
}

func forkSuffix(m route.ManeuverModifier) string {
	switch m {
	case route.ModifierLeft, route.ModifierSlightLeft, route.ModifierSharpLeft:
		return " left"
	case route.ModifierRight, route.ModifierSlightRight, route.ModifierSharpRight:
		return " right"
	}
	return " straight"
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-32) + s[1:]
}

// osrmResponse represents the OSRM route service response
type osrmResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message,omitempty"`
	Routes    []osrmRoute    `json:"routes"`
	Waypoints []osrmWaypoint `json:"waypoints"`
}

type osrmRoute struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Geometry string    `json:"geometry"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmLeg struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Steps    []osrmStep `json:"steps"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry string       `json:"geometry"`
	Name     string       `json:"name"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmManeuver struct {
	Type     string    `json:"type"`
	Modifier string    `json:"modifier,omitempty"`
	Location []float64 `json:"location"`
}

type osrmWaypoint struct {
	Name     string    `json:"name"`
	Location []float64 `json:"location"`
}
