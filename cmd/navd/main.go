package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/dpup/prefab"

	"github.com/ersnlabs/navcore/internal/cache"
	"github.com/ersnlabs/navcore/internal/clients/osrm"
	"github.com/ersnlabs/navcore/internal/config"
	"github.com/ersnlabs/navcore/internal/export"
	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
	"github.com/ersnlabs/navcore/internal/services"
)

func main() {
	appConfig := loadConfig()

	routeCache := cache.New()
	routeCache.StartPeriodicCleanup(context.Background(), appConfig.Directions.CacheTTL)

	directions := osrm.NewClient(appConfig.Directions, routeCache)
	tracker := services.NewTracker(appConfig.Tracking)
	coordinator := services.NewRerouteCoordinator(tracker, directions,
		appConfig.Tracking.RerouteMinInterval, appConfig.Directions.Timeout)

	// The coordinator drains the tracker's event channel, turning deviation
	// events into reroute requests; other events are consumed for their side
	// effects only since the HTTP surface is pull-based
	go coordinator.Run(context.Background(), nil)

	api := &tripAPI{
		directions: directions,
		tracker:    tracker,
	}

	log.Printf("Navigation server starting, directions backend: %s", appConfig.Directions.BaseURL)

	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/api/v1/trip/start", api.startTrip),
		prefab.WithHTTPHandlerFunc("/api/v1/trip/stop", api.stopTrip),
		prefab.WithHTTPHandlerFunc("/api/v1/location", api.pushLocation),
		prefab.WithHTTPHandlerFunc("/api/v1/progress", api.getProgress),
		prefab.WithHTTPHandlerFunc("/api/v1/route.kml", api.exportRoute),
	)

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration from prefab.yaml and PF__ environment
// variables, layered over the built-in defaults
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("tracking", &appConfig.Tracking); err != nil {
		log.Fatalf("Failed to unmarshal tracking section: %v", err)
	}
	if err := prefab.Config.Unmarshal("directions", &appConfig.Directions); err != nil {
		log.Fatalf("Failed to unmarshal directions section: %v", err)
	}

	if appConfig.Directions.BaseURL == "" {
		appConfig.Directions = config.DefaultConfig().Directions
	}

	return appConfig
}

// tripAPI exposes the tracker over a small JSON HTTP surface
type tripAPI struct {
	directions *osrm.Client
	tracker    *services.Tracker
}

type startTripRequest struct {
	Origin      geo.Point `json:"origin"`
	Destination geo.Point `json:"destination"`
}

func (a *tripAPI) startTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	computed, err := a.directions.Directions(r.Context(), req.Origin, req.Destination)
	if err != nil {
		http.Error(w, "failed to compute route: "+err.Error(), http.StatusBadGateway)
		return
	}

	if err := a.tracker.Start(computed, nil); err != nil {
		http.Error(w, "failed to start tracking: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, computed)
}

func (a *tripAPI) stopTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.tracker.Stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (a *tripAPI) pushLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loc route.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		http.Error(w, "invalid location: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := a.tracker.Update(loc); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *tripAPI) getProgress(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.tracker.Snapshot()
	if !ok {
		http.Error(w, "no progress available", http.StatusNotFound)
		return
	}
	writeJSON(w, &snap)
}

func (a *tripAPI) exportRoute(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.tracker.Snapshot()
	if !ok || snap.Route == nil {
		http.Error(w, "no active route", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	if err := export.WriteRoute(w, snap.Route); err != nil {
		slog.Error("Failed to write route KML", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>navcore</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">navcore</span>

Turn-by-turn route progress tracking server.

<span class="header">API Endpoints:</span>

  POST /api/v1/trip/start      - Compute a route and begin tracking
  POST /api/v1/trip/stop       - End the active trip
  POST /api/v1/location        - Push a location fix
  <a href="/api/v1/progress">GET  /api/v1/progress</a>        - Current progress snapshot
  <a href="/api/v1/route.kml">GET  /api/v1/route.kml</a>       - Active route as KML

<span class="header">Example Usage:</span>
  curl -X POST localhost:8000/api/v1/trip/start \
    -d '{"origin":{"lat":38.067,"lng":-120.538},"destination":{"lat":38.138,"lng":-120.456}}'
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
