package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

// Earth's mean radius in meters
const earthRadius = 6371000

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	// If points are the same, distance is 0
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0, nil
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c, nil
}

// Bearing calculates the initial bearing from one point toward another.
// The result is normalized to [0, 360) degrees. Behavior at antipodal
// points is undefined.
func (g *geoUtils) Bearing(from, to Point) (float64, error) {
	if !isValidCoordinate(from) || !isValidCoordinate(to) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}

	lat1 := from.Latitude * math.Pi / 180
	lon1 := from.Longitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	lon2 := to.Longitude * math.Pi / 180

	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	bearing := math.Atan2(y, x) * 180 / math.Pi

	// Normalize to [0, 360)
	bearing = math.Mod(bearing+360, 360)
	return bearing, nil
}

// ProjectOntoSegment finds the closest point on a finite segment to the given
// point, clamped to the endpoints when the perpendicular foot falls outside
// the segment. A degenerate segment (start == end) projects onto the start
// with t=0.
//
// The projection is computed on a local equirectangular plane centered on the
// segment start. For road-scale segments (well under 10km) this is accurate
// to well under a meter.
func (g *geoUtils) ProjectOntoSegment(point, segStart, segEnd Point) SegmentProjection {
	if segStart.Latitude == segEnd.Latitude && segStart.Longitude == segEnd.Longitude {
		d, _ := g.PointToPoint(point, segStart)
		return SegmentProjection{Point: segStart, T: 0, Distance: d}
	}

	// Project onto a plane tangent at the segment start. One degree of
	// latitude is ~111km everywhere; longitude shrinks by cos(latitude).
	latScale := earthRadius * math.Pi / 180
	lonScale := latScale * math.Cos(segStart.Latitude*math.Pi/180)

	sx := (segEnd.Longitude - segStart.Longitude) * lonScale
	sy := (segEnd.Latitude - segStart.Latitude) * latScale
	px := (point.Longitude - segStart.Longitude) * lonScale
	py := (point.Latitude - segStart.Latitude) * latScale

	t := (px*sx + py*sy) / (sx*sx + sy*sy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	projected := g.Interpolate(segStart, segEnd, t)
	distance, _ := g.PointToPoint(point, projected)

	return SegmentProjection{Point: projected, T: t, Distance: distance}
}

// PointToPolyline calculates minimum distance from point to polyline.
// A single-point polyline falls back to point-to-point distance; an empty
// polyline is an error rather than a silent zero.
func (g *geoUtils) PointToPolyline(point Point, polyline Polyline) (float64, error) {
	if !isValidCoordinate(point) {
		return 0, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return 0, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return g.PointToPoint(point, polyline.Points[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(polyline.Points)-1; i++ {
		proj := g.ProjectOntoSegment(point, polyline.Points[i], polyline.Points[i+1])
		if proj.Distance < minDistance {
			minDistance = proj.Distance
		}
	}

	return minDistance, nil
}

// ClosestPointOnPolyline finds closest point on polyline to given point
func (g *geoUtils) ClosestPointOnPolyline(point Point, polyline Polyline) (Point, error) {
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return Point{}, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return polyline.Points[0], nil
	}

	var closest Point
	minDistance := math.Inf(1)

	for i := 0; i < len(polyline.Points)-1; i++ {
		proj := g.ProjectOntoSegment(point, polyline.Points[i], polyline.Points[i+1])
		if proj.Distance < minDistance {
			minDistance = proj.Distance
			closest = proj.Point
		}
	}

	return closest, nil
}

// Interpolate calculates a point along the line between two points.
// t=0 returns start, t=1 returns end, t=0.5 returns the midpoint.
// For road segments (typically < 10km) linear interpolation provides
// adequate accuracy; spherical interpolation is not needed.
func (g *geoUtils) Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
