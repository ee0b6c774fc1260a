package geo

import (
	"math"

	"github.com/twpayne/go-polyline"
)

// Distance calculates great-circle distance in meters between two points using Haversine formula
func Distance(p1, p2 Point) float64 {
	// If points are the same, distance is 0
	if p1 == p2 {
		return 0
	}

	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlat := lat2 - lat1
	dlon := toRadians(p2.Longitude - p1.Longitude)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Bearing returns the initial compass bearing in degrees [0, 360) from one point toward another.
// Identical points have no direction; the result for them is 0.
func Bearing(from, to Point) float64 {
	deg := toDegrees(initialBearing(from, to))
	return math.Mod(deg+360, 360)
}

// initialBearing returns the bearing in radians (-π, π]
func initialBearing(from, to Point) float64 {
	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)
	dlon := toRadians(to.Longitude - from.Longitude)

	x := math.Sin(dlon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	return math.Atan2(x, y)
}

// PointToPolyline calculates minimum distance in meters from point to the path through points.
// A single point path degrades to point to point distance; an empty path is infinitely far away.
func PointToPolyline(point Point, points []Point) float64 {
	switch len(points) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(point, points[0])
	}

	minDistance := math.Inf(1)

	// Check distance to each segment of the polyline
	for i := 0; i < len(points)-1; i++ {
		distance := pointToSegmentDistance(point, points[i], points[i+1])
		if distance < minDistance {
			minDistance = distance
		}
		if minDistance == 0 {
			break
		}
	}

	return minDistance
}

// pointToSegmentDistance calculates distance from point to a great circle segment
func pointToSegmentDistance(point, segmentStart, segmentEnd Point) float64 {
	if segmentStart == segmentEnd {
		return Distance(point, segmentStart)
	}

	distanceToStart := Distance(segmentStart, point)
	if distanceToStart == 0 {
		return 0
	}
	distanceToEnd := Distance(segmentEnd, point)
	segmentLength := Distance(segmentStart, segmentEnd)

	// If segment length is very small, use point-to-point distance
	if segmentLength < 1 {
		return math.Min(distanceToStart, distanceToEnd)
	}

	d13 := distanceToStart / EarthRadiusMeters // angular distance from start to point
	theta := initialBearing(segmentStart, point) - initialBearing(segmentStart, segmentEnd)

	// Along-track angular distance, negative when the projection lies behind the start
	dat := math.Atan2(math.Sin(d13)*math.Cos(theta), math.Cos(d13))
	if dat <= 0 {
		return distanceToStart
	}
	if dat*EarthRadiusMeters >= segmentLength {
		return distanceToEnd
	}

	dxt := math.Asin(clamp(math.Sin(d13)*math.Sin(theta), -1, 1))
	return math.Abs(dxt) * EarthRadiusMeters
}

// EncodePolyline encodes a point sequence as a Google polyline string
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !point.IsValid() {
		return Point{}, ErrInvalidCoordinates
	}
	return point, nil
}

// IsValid reports whether latitude and longitude are within range
func (p Point) IsValid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
