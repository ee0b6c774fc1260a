package track

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedInput is returned when a required track point field is absent or unusable
	ErrMalformedInput = errors.New("malformed track input")

	// ErrDegenerateTrajectory is returned when a trajectory would have no points
	ErrDegenerateTrajectory = errors.New("trajectory must have at least one point")

	// ErrZeroElapsedTime is returned when adjacent points share a timestamp and a speed is requested
	ErrZeroElapsedTime = errors.New("zero elapsed time between adjacent points")
)

// ZeroElapsedTimeError identifies the segment whose endpoints share a timestamp.
// Segment i joins point i and point i+1.
type ZeroElapsedTimeError struct {
	Index int
	Time  time.Time
}

func (e *ZeroElapsedTimeError) Error() string {
	return fmt.Sprintf("segment %d: %s at %s", e.Index, ErrZeroElapsedTime, e.Time.Format(time.RFC3339Nano))
}

func (e *ZeroElapsedTimeError) Unwrap() error {
	return ErrZeroElapsedTime
}
