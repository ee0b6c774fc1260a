package routing

import (
	"cmp"
	"slices"
	"time"

	"github.com/dpup/strava-gpx/internal/lib/geo"
	"github.com/dpup/strava-gpx/internal/lib/track"
)

// CommuteFilter selects trajectories that start in one geofence and end in another
type CommuteFilter struct {
	Start       geo.Circle
	End         geo.Circle
	MaxDistance float64       // meters, exclusive; 0 disables the bound
	MaxDuration time.Duration // inclusive; 0 disables the bound
}

// Match reports whether c is a commute
func (f CommuteFilter) Match(c track.Collection) bool {
	if c.Len() == 0 {
		return false
	}
	if !f.Start.Contains(c.At(0).Position) || !f.End.Contains(c.At(c.Len()-1).Position) {
		return false
	}
	if f.MaxDistance > 0 && track.Distance(c) >= f.MaxDistance {
		return false
	}
	if f.MaxDuration > 0 && track.Duration(c) > f.MaxDuration {
		return false
	}
	return true
}

// SelectCommutes returns the commutes among trajectories ordered from fastest to slowest.
// Trajectories with equal durations keep their relative order.
func (f CommuteFilter) SelectCommutes(trajectories []*track.Trajectory) []*track.Trajectory {
	var commutes []*track.Trajectory
	for _, t := range trajectories {
		if f.Match(t) {
			commutes = append(commutes, t)
		}
	}

	slices.SortStableFunc(commutes, func(a, b *track.Trajectory) int {
		return cmp.Compare(a.Duration(), b.Duration())
	})
	return commutes
}
