package track

import (
	"fmt"
	"slices"
	"time"

	"github.com/dpup/strava-gpx/internal/lib/geo"
)

// SensorKind identifies the quantity measured by a SensorReading
type SensorKind int

const (
	AirTemperature   SensorKind = iota + 1 // degrees Celsius
	WaterTemperature                       // degrees Celsius
	Depth                                  // meters
	HeartRate                              // beats per minute
	Cadence                                // revolutions per minute
)

func (k SensorKind) String() string {
	switch k {
	case AirTemperature:
		return "air_temperature"
	case WaterTemperature:
		return "water_temperature"
	case Depth:
		return "depth"
	case HeartRate:
		return "heart_rate"
	case Cadence:
		return "cadence"
	}
	return fmt.Sprintf("SensorKind(%d)", int(k))
}

// Unit returns the unit symbol of readings of this kind
func (k SensorKind) Unit() string {
	switch k {
	case AirTemperature, WaterTemperature:
		return "°C"
	case Depth:
		return "m"
	case HeartRate:
		return "bpm"
	case Cadence:
		return "rpm"
	}
	return ""
}

// SensorReading is one optional sensor value attached to a track point
type SensorReading struct {
	Kind  SensorKind `json:"kind"`
	Value float64    `json:"value"`
}

// TrackPoint is one timestamped position and elevation sample
type TrackPoint struct {
	Position   geo.Point       `json:"position"`
	Elevation  float64         `json:"elevation_meters"`
	Time       time.Time       `json:"time"`
	Extensions []SensorReading `json:"extensions,omitempty"`
}

// Reading returns the first sensor reading of the given kind
func (p TrackPoint) Reading(kind SensorKind) (float64, bool) {
	for _, r := range p.Extensions {
		if r.Kind == kind {
			return r.Value, true
		}
	}
	return 0, false
}

// Collection is an ordered, read-only sequence of track points.
// All trajectory metrics are defined over it.
type Collection interface {
	Len() int
	At(i int) TrackPoint
}

// Points is a bare ordered sequence of track points
type Points []TrackPoint

// Len returns the number of points
func (p Points) Len() int { return len(p) }

// At returns the i-th point
func (p Points) At(i int) TrackPoint { return p[i] }

// Metadata describes where a trajectory came from
type Metadata struct {
	Name   string    `json:"name,omitempty"`
	Type   string    `json:"type,omitempty"`   // activity type, e.g. "cycling"
	Source string    `json:"source,omitempty"` // file the trajectory was read from
	Time   time.Time `json:"time"`             // recording time, defaults to the first point
}

// Trajectory is an immutable, non-empty sequence of track points with non-decreasing timestamps
type Trajectory struct {
	meta   Metadata
	points []TrackPoint
}

// NewTrajectory validates and copies points into a new Trajectory
func NewTrajectory(points []TrackPoint, meta Metadata) (*Trajectory, error) {
	if len(points) == 0 {
		return nil, ErrDegenerateTrajectory
	}

	copied := make([]TrackPoint, len(points))
	for i, p := range points {
		if !p.Position.IsValid() {
			return nil, fmt.Errorf("%w: point %d: %w", ErrMalformedInput, i, geo.ErrInvalidCoordinates)
		}
		if p.Time.IsZero() {
			return nil, fmt.Errorf("%w: point %d: missing timestamp", ErrMalformedInput, i)
		}
		if i > 0 && p.Time.Before(points[i-1].Time) {
			return nil, fmt.Errorf("%w: point %d: timestamp %s precedes previous point",
				ErrMalformedInput, i, p.Time.Format(time.RFC3339))
		}

		p.Time = p.Time.UTC()
		p.Extensions = slices.Clone(p.Extensions)
		copied[i] = p
	}

	if meta.Time.IsZero() {
		meta.Time = copied[0].Time
	}
	meta.Time = meta.Time.UTC()

	return &Trajectory{meta: meta, points: copied}, nil
}

// Len returns the number of track points
func (t *Trajectory) Len() int { return len(t.points) }

// At returns the i-th track point
func (t *Trajectory) At(i int) TrackPoint { return t.points[i] }

// Points returns a copy of the track points in order
func (t *Trajectory) Points() []TrackPoint {
	return slices.Clone(t.points)
}

// Metadata returns the descriptive metadata of the trajectory
func (t *Trajectory) Metadata() Metadata { return t.meta }

// Name returns the track name, falling back to the source file
func (t *Trajectory) Name() string {
	if t.meta.Name != "" {
		return t.meta.Name
	}
	return t.meta.Source
}

// Start returns the first track point
func (t *Trajectory) Start() TrackPoint { return t.points[0] }

// End returns the last track point
func (t *Trajectory) End() TrackPoint { return t.points[len(t.points)-1] }

func (t *Trajectory) Distance() float64 { return Distance(t) }
func (t *Trajectory) Duration() time.Duration { return Duration(t) }
func (t *Trajectory) ElevationGain() float64 { return ElevationGain(t) }
func (t *Trajectory) Speeds() ([]float64, error) { return Speeds(t) }
func (t *Trajectory) Bearings() []float64 { return Bearings(t) }
func (t *Trajectory) MaxDistanceApart(other Collection) float64 { return MaxDistanceApart(t, other) }
