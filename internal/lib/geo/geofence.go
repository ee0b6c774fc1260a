package geo

import "fmt"

// NewCircle creates a geofence centered on latitude/longitude with a radius in meters
func NewCircle(latitude, longitude, radiusMeters float64) (Circle, error) {
	center, err := NewPoint(latitude, longitude)
	if err != nil {
		return Circle{}, err
	}
	if !(radiusMeters > 0) {
		return Circle{}, fmt.Errorf("%w: %v", ErrInvalidRadius, radiusMeters)
	}
	return Circle{Center: center, Radius: radiusMeters}, nil
}

// Contains reports whether point lies strictly inside the circle.
// A point exactly on the boundary is outside.
func (c Circle) Contains(point Point) bool {
	return Distance(c.Center, point) < c.Radius
}

