// Package export renders routes and recorded trips as KML for inspection in
// mapping tools.
package export

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml/v2"

	"github.com/ersnlabs/navcore/internal/lib/geo"
	"github.com/ersnlabs/navcore/internal/lib/route"
)

// WriteRoute renders the route geometry and its maneuver points as a KML
// document
func WriteRoute(w io.Writer, r *route.Route) error {
	if r == nil {
		return fmt.Errorf("route is required")
	}
	doc := kml.Document(routeElements(r)...)
	return kml.KML(doc).WriteIndent(w, "", "  ")
}

// WriteTrip renders the route plus the recorded location track, so the
// driven path can be compared against the planned geometry
func WriteTrip(w io.Writer, r *route.Route, track []route.Location) error {
	if r == nil {
		return fmt.Errorf("route is required")
	}

	elements := routeElements(r)
	if len(track) > 0 {
		coords := make([]kml.Coordinate, len(track))
		for i, loc := range track {
			coords[i] = coordinate(loc.Point)
		}
		elements = append(elements, kml.Placemark(
			kml.Name("Recorded track"),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coords...),
			),
		))
	}

	doc := kml.Document(elements...)
	return kml.KML(doc).WriteIndent(w, "", "  ")
}

func routeElements(r *route.Route) []kml.Element {
	elements := []kml.Element{
		kml.Name(fmt.Sprintf("Route %s", r.ID)),
		kml.Description(fmt.Sprintf("%.0f m, %.0f s", r.Distance, r.Duration)),
	}

	if len(r.Geometry) > 0 {
		coords := make([]kml.Coordinate, len(r.Geometry))
		for i, p := range r.Geometry {
			coords[i] = coordinate(p)
		}
		elements = append(elements, kml.Placemark(
			kml.Name("Route geometry"),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coords...),
			),
		))
	}

	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			m := step.Maneuver
			elements = append(elements, kml.Placemark(
				kml.Name(m.Instruction),
				kml.Description(fmt.Sprintf("leg %d step %d: %s %s", m.LegIndex, m.StepIndex, m.Type, m.Modifier)),
				kml.Point(
					kml.Coordinates(coordinate(m.Location)),
				),
			))
		}
	}

	return elements
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}
