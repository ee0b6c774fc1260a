package geo

import "errors"

// Earth's mean radius in meters
const EarthRadiusMeters = 6371000

var (
	// ErrInvalidCoordinates is returned when a latitude or longitude is out of range
	ErrInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

	// ErrInvalidRadius is returned for a geofence without a positive radius
	ErrInvalidRadius = errors.New("invalid radius: must be positive meters")
)

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline"`
	Points          []Point `json:"points"`
}

// Circle is a circular geofence. Radius is in meters.
type Circle struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius_meters"`
}
