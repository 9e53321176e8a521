// navsim drives a tracking session against a synthetic location feed: it
// fetches a route, replays fixes along its geometry at a fixed speed, and
// prints the guidance events the tracker emits. Useful for eyeballing
// announcement timing and deviation behavior without a vehicle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ersnlabs/navcore/internal/cache"
	"github.com/ersnlabs/navcore/internal/clients/osrm"
	"github.com/ersnlabs/navcore/internal/config"
	"github.com/ersnlabs/navcore/internal/export"
	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
	"github.com/ersnlabs/navcore/internal/services"
)

var geoUtils = geo.NewGeoUtils()

func main() {
	var (
		osrmURL  = flag.String("osrm", "https://router.project-osrm.org", "OSRM server base URL")
		from     = flag.String("from", "38.0675,-120.5386", "origin as lat,lng")
		to       = flag.String("to", "38.1382,-120.4561", "destination as lat,lng")
		speedMS  = flag.Float64("speed", 13.0, "simulated speed in m/s")
		interval = flag.Duration("interval", time.Second, "wall-clock delay between fixes")
		noise    = flag.Float64("noise", 3.0, "random GPS jitter in meters")
		detour   = flag.Bool("detour", false, "wander 80m off route mid-trip to exercise deviation handling")
		kmlOut   = flag.String("kml", "", "write the trip as KML to this file on completion")
	)
	flag.Parse()

	origin, err := parsePoint(*from)
	if err != nil {
		log.Fatalf("Invalid -from: %v", err)
	}
	destination, err := parsePoint(*to)
	if err != nil {
		log.Fatalf("Invalid -to: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Directions.BaseURL = *osrmURL

	directions := osrm.NewClient(cfg.Directions, cache.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("Fetching route %s -> %s", *from, *to)
	r, err := directions.Directions(ctx, origin, destination)
	if err != nil {
		log.Fatalf("Failed to fetch route: %v", err)
	}
	log.Printf("Route %s: %.0fm, %.0fs, %d legs", r.ID, r.Distance, r.Duration, len(r.Legs))

	tracker := services.NewTracker(cfg.Tracking)
	coordinator := services.NewRerouteCoordinator(tracker, directions,
		cfg.Tracking.RerouteMinInterval, cfg.Directions.Timeout)

	events := make(chan services.Event, cfg.Tracking.EventBuffer)
	go coordinator.Run(ctx, events)
	go printEvents(events)

	if err := tracker.Start(r, nil); err != nil {
		log.Fatalf("Failed to start tracking: %v", err)
	}

	track := replay(tracker, r, *speedMS, *interval, *noise, *detour)

	tracker.Stop()
	// Give the event pipeline a beat to flush before exiting
	time.Sleep(200 * time.Millisecond)
	cancel()

	if *kmlOut != "" {
		writeKML(*kmlOut, r, track)
	}
}

// replay walks the route geometry at the given speed, pushing one fix per
// interval, and returns the generated track
func replay(tracker *services.Tracker, r *route.Route, speedMS float64, interval time.Duration, noise float64, detour bool) []route.Location {
	var track []route.Location
	stride := speedMS * interval.Seconds()

	for traveled := 0.0; traveled <= r.Distance; traveled += stride {
		p := pointAlong(r, traveled)

		if detour {
			fraction := traveled / r.Distance
			if fraction > 0.4 && fraction < 0.55 {
				p = offsetEast(p, 80)
			}
		}
		if noise > 0 {
			p = offsetEast(p, (rand.Float64()*2-1)*noise)
		}

		loc := route.Location{Point: p, Timestamp: time.Now(), Speed: speedMS}
		if err := tracker.Update(loc); err != nil {
			log.Printf("Update rejected: %v", err)
			break
		}
		track = append(track, loc)

		if tracker.Arrived() {
			log.Printf("Simulation reached the destination after %d fixes", len(track))
			break
		}
		time.Sleep(interval)
	}

	return track
}

func printEvents(events <-chan services.Event) {
	for ev := range events {
		switch ev.Kind {
		case services.EventProgressUpdated:
			s := ev.Snapshot
			log.Printf("[progress] %.1f%% done, %.0fm remaining, leg %d step %d, on route: %v",
				s.RouteProgress()*100, s.DistanceRemaining, s.CurrentLegIndex, s.CurrentStepIndex, s.OnRoute)
		case services.EventUpcomingManeuver:
			a := ev.Announcement
			log.Printf("[announce:%s] %q in %.0fm", a.Kind, a.Maneuver.Instruction, a.Distance)
		case services.EventRouteDeviation:
			log.Printf("[deviation] %.0fm from route, anchor valid: %v",
				ev.Deviation.DistanceFromRoute, ev.Deviation.AnchorValid)
		case services.EventArrived:
			log.Printf("[arrived] %.0fm from destination", ev.Snapshot.DirectDistanceToDestination())
		case services.EventRerouteApplied:
			log.Printf("[reroute] new route %s, %.0fm", ev.Route.ID, ev.Route.Distance)
		case services.EventRerouteFailed:
			log.Printf("[reroute failed] %v", ev.Err)
		}
	}
}

func writeKML(path string, r *route.Route, track []route.Location) {
	f, err := os.Create(path)
	if err != nil {
		log.Printf("Failed to create KML file: %v", err)
		return
	}
	defer f.Close()

	if err := export.WriteTrip(f, r, track); err != nil {
		log.Printf("Failed to write KML: %v", err)
		return
	}
	log.Printf("Wrote trip KML to %s", path)
}

func parsePoint(s string) (geo.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude: %w", err)
	}
	return geo.NewPoint(lat, lng)
}

// pointAlong returns the point at the given distance along the route geometry
func pointAlong(r *route.Route, meters float64) geo.Point {
	if len(r.Geometry) == 0 {
		return r.Origin
	}
	remaining := meters
	for i := 0; i < len(r.Geometry)-1; i++ {
		segLen, err := geoUtils.PointToPoint(r.Geometry[i], r.Geometry[i+1])
		if err != nil || segLen <= 0 {
			continue
		}
		if remaining <= segLen {
			return geoUtils.Interpolate(r.Geometry[i], r.Geometry[i+1], remaining/segLen)
		}
		remaining -= segLen
	}
	return r.Geometry[len(r.Geometry)-1]
}

// offsetEast shifts a point east by approximately the given number of meters
func offsetEast(p geo.Point, meters float64) geo.Point {
	const metersPerDegree = 111195.0
	lonScale := metersPerDegree * math.Cos(p.Latitude*math.Pi/180)
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude + meters/lonScale}
}
