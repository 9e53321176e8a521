package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents a decoded route geometry as an ordered point sequence
type Polyline struct {
	Points []Point `json:"points"`
}

// SegmentProjection is the result of projecting a point onto a finite segment
type SegmentProjection struct {
	// Point is the closest point on the segment, clamped to its endpoints
	Point Point
	// T is the position of the projection along the segment: 0 at the start,
	// 1 at the end
	T float64
	// Distance is the great-circle distance in meters from the query point
	// to the projected point
	Distance float64
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Calculate initial bearing from one point toward another, degrees [0, 360)
	Bearing(from, to Point) (float64, error)

	// Project a point onto a finite segment, clamped to the endpoints
	ProjectOntoSegment(point, segStart, segEnd Point) SegmentProjection

	// Calculate minimum distance from point to polyline in meters
	PointToPolyline(point Point, polyline Polyline) (float64, error)

	// Find closest point on polyline to given point
	ClosestPointOnPolyline(point Point, polyline Polyline) (Point, error)

	// Linearly interpolate between two points (t=0 start, t=1 end)
	Interpolate(start, end Point, t float64) Point

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)
}

// NewGeoUtils is implemented in geo.go
