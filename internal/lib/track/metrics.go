package track

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/dpup/strava-gpx/internal/lib/geo"
)

// Below this many points MaxDistanceApart stays on the calling goroutine
const parallelPointThreshold = 512

// Summary bundles the scalar metrics of a collection
type Summary struct {
	Points        int           `json:"points"`
	Distance      float64       `json:"distance_meters"`
	Duration      time.Duration `json:"duration"`
	ElevationGain float64       `json:"elevation_gain_meters"`
	AverageSpeed  float64       `json:"average_speed_mps"` // 0 when duration is 0
}

// Summarize computes the scalar metrics of c
func Summarize(c Collection) Summary {
	s := Summary{
		Points:        c.Len(),
		Distance:      Distance(c),
		Duration:      Duration(c),
		ElevationGain: ElevationGain(c),
	}
	if secs := s.Duration.Seconds(); secs > 0 {
		s.AverageSpeed = s.Distance / secs
	}
	return s
}

// Distance returns the length in meters of the path through c
func Distance(c Collection) float64 {
	var total float64
	for i := 1; i < c.Len(); i++ {
		total += geo.Distance(c.At(i-1).Position, c.At(i).Position)
	}
	return total
}

// Duration returns the time elapsed between the first and last point
func Duration(c Collection) time.Duration {
	if c.Len() == 0 {
		return 0
	}
	return c.At(c.Len() - 1).Time.Sub(c.At(0).Time)
}

// ElevationGain returns the total climb in meters. Descents are ignored.
func ElevationGain(c Collection) float64 {
	var gain float64
	for i := 1; i < c.Len(); i++ {
		if delta := c.At(i).Elevation - c.At(i-1).Elevation; delta > 0 {
			gain += delta
		}
	}
	return gain
}

// Speeds returns the speed in meters per second of each segment between adjacent points.
// If two adjacent points share a timestamp no speeds are returned and the error is a
// *ZeroElapsedTimeError.
func Speeds(c Collection) ([]float64, error) {
	if c.Len() < 2 {
		return []float64{}, nil
	}

	speeds := make([]float64, 0, c.Len()-1)
	for i := 1; i < c.Len(); i++ {
		p1, p2 := c.At(i-1), c.At(i)
		secs := p2.Time.Sub(p1.Time).Seconds()
		if secs == 0 {
			return nil, &ZeroElapsedTimeError{Index: i - 1, Time: p1.Time}
		}
		speeds = append(speeds, geo.Distance(p1.Position, p2.Position)/secs)
	}
	return speeds, nil
}

// Bearings returns the initial bearing in degrees of each segment between adjacent points
func Bearings(c Collection) []float64 {
	if c.Len() < 2 {
		return []float64{}
	}

	bearings := make([]float64, 0, c.Len()-1)
	for i := 1; i < c.Len(); i++ {
		bearings = append(bearings, geo.Bearing(c.At(i-1).Position, c.At(i).Position))
	}
	return bearings
}

// Positions returns the path of c as geographic points
func Positions(c Collection) []geo.Point {
	points := make([]geo.Point, c.Len())
	for i := range points {
		points[i] = c.At(i).Position
	}
	return points
}

// Polyline returns the path of c with its Google encoding
func Polyline(c Collection) geo.Polyline {
	points := Positions(c)
	return geo.Polyline{
		EncodedPolyline: geo.EncodePolyline(points),
		Points:          points,
	}
}

// MaxDistanceApart returns how far in meters the points of other ever stray from the path
// of self: the maximum over other's points of their distance to self's polyline.
// It is not symmetric. An empty other yields 0.
func MaxDistanceApart(self, other Collection) float64 {
	path := Positions(self)
	n := other.Len()

	workers := runtime.GOMAXPROCS(0)
	if n < parallelPointThreshold || workers < 2 {
		return maxDeviation(path, other, 0, n)
	}

	chunk := (n + workers - 1) / workers
	maxima := make([]float64, workers)

	var wg sync.WaitGroup
	for w := range workers {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			maxima[w] = maxDeviation(path, other, lo, hi)
		}()
	}
	wg.Wait()

	return slices.Max(maxima)
}

// maxDeviation returns the largest distance from points [lo, hi) of other to path
func maxDeviation(path []geo.Point, other Collection, lo, hi int) float64 {
	var deviation float64
	for i := lo; i < hi; i++ {
		if d := geo.PointToPolyline(other.At(i).Position, path); d > deviation {
			deviation = d
		}
	}
	return deviation
}
