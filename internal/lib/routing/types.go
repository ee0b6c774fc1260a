package routing

import (
	"slices"
	"time"

	"github.com/dpup/strava-gpx/internal/lib/geo"
	"github.com/dpup/strava-gpx/internal/lib/track"
)

// DefaultGroupThreshold is the mean max-distance-apart (meters) under which two commutes
// are treated as the same route
const DefaultGroupThreshold = 20.0

// DistanceFunc returns how far in meters the candidate strays from the member.
// Both arguments are indexes into the caller's items.
type DistanceFunc func(member, candidate int) float64

// Groups is a caller-owned arena of clusters. Each group holds the indexes of its
// members in assignment order; groups are kept in creation order.
type Groups struct {
	members [][]int
}

// Len returns the number of groups
func (g *Groups) Len() int { return len(g.members) }

// Members returns a copy of the member indexes of group i
func (g *Groups) Members(i int) []int { return slices.Clone(g.members[i]) }

// Indexes returns a copy of every group's member indexes
func (g *Groups) Indexes() [][]int {
	out := make([][]int, len(g.members))
	for i := range g.members {
		out[i] = g.Members(i)
	}
	return out
}

func (g *Groups) start(candidate int) int {
	g.members = append(g.members, []int{candidate})
	return len(g.members) - 1
}

func (g *Groups) join(group, candidate int) int {
	g.members[group] = append(g.members[group], candidate)
	return group
}

// RouteGroup is a finished cluster of trajectories that follow the same route
type RouteGroup struct {
	Members []*track.Trajectory `json:"members"`
}

// Len returns the number of trajectories in the group
func (g RouteGroup) Len() int { return len(g.Members) }

// Representative returns the first trajectory assigned to the group
func (g RouteGroup) Representative() *track.Trajectory { return g.Members[0] }

// Path returns the representative's path as a polyline
func (g RouteGroup) Path() geo.Polyline { return track.Polyline(g.Representative()) }

// MeanDistance returns the mean distance in meters over the members
func (g RouteGroup) MeanDistance() float64 {
	var total float64
	for _, m := range g.Members {
		total += m.Distance()
	}
	return total / float64(len(g.Members))
}

// MeanDuration returns the mean duration over the members
func (g RouteGroup) MeanDuration() time.Duration {
	var total time.Duration
	for _, m := range g.Members {
		total += m.Duration()
	}
	return total / time.Duration(len(g.Members))
}

// Fastest returns the member with the shortest duration, the earliest on ties
func (g RouteGroup) Fastest() *track.Trajectory {
	fastest := g.Members[0]
	for _, m := range g.Members[1:] {
		if m.Duration() < fastest.Duration() {
			fastest = m
		}
	}
	return fastest
}
