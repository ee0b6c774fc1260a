package routing

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dpup/strava-gpx/internal/lib/track"
)

// Clusterer performs greedy single-link grouping. Each candidate joins the first group,
// in creation order, whose mean member distance to it is strictly below Threshold;
// otherwise it starts a new group. The result depends on candidate order.
type Clusterer struct {
	Threshold float64
	Distance  DistanceFunc

	// Concurrency bounds how many member distances are evaluated at once for a single
	// group. Values below 2 evaluate sequentially.
	Concurrency int
}

// NewClusterer creates a Clusterer over the given distance function
func NewClusterer(threshold float64, distance DistanceFunc) *Clusterer {
	return &Clusterer{
		Threshold:   threshold,
		Distance:    distance,
		Concurrency: runtime.GOMAXPROCS(0),
	}
}

// Assign folds one candidate into groups and returns the index of the group it joined
func (c *Clusterer) Assign(groups *Groups, candidate int) int {
	for i, members := range groups.members {
		if c.meanDistance(members, candidate) < c.Threshold {
			return groups.join(i, candidate)
		}
	}
	return groups.start(candidate)
}

// Cluster folds candidates 0..n-1 in order into a new arena
func (c *Clusterer) Cluster(n int) *Groups {
	groups := &Groups{}
	for candidate := range n {
		c.Assign(groups, candidate)
	}
	return groups
}

// meanDistance averages the distance from each member to candidate. Distances are
// summed in member order whether or not they were evaluated concurrently.
func (c *Clusterer) meanDistance(members []int, candidate int) float64 {
	distances := make([]float64, len(members))

	if c.Concurrency < 2 || len(members) < 2 {
		for j, member := range members {
			distances[j] = c.Distance(member, candidate)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.Concurrency)
		for j, member := range members {
			g.Go(func() error {
				distances[j] = c.Distance(member, candidate)
				return nil
			})
		}
		_ = g.Wait()
	}

	var total float64
	for _, d := range distances {
		total += d
	}
	return total / float64(len(members))
}

// GroupRoutes clusters trajectories, already in the desired order, into groups of the
// same route. Two trajectories are compared by how far the candidate strays from the member.
func GroupRoutes(trajectories []*track.Trajectory, threshold float64) []RouteGroup {
	clusterer := NewClusterer(threshold, func(member, candidate int) float64 {
		return track.MaxDistanceApart(trajectories[member], trajectories[candidate])
	})
	groups := clusterer.Cluster(len(trajectories))

	out := make([]RouteGroup, groups.Len())
	for i, members := range groups.members {
		out[i].Members = make([]*track.Trajectory, len(members))
		for j, idx := range members {
			out[i].Members[j] = trajectories[idx]
		}
	}
	return out
}
