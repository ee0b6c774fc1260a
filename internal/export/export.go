// Package export writes trajectories and route groups to files other tools can open.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/strava-gpx/internal/clients/gpx"
	"github.com/dpup/strava-gpx/internal/lib/routing"
	"github.com/dpup/strava-gpx/internal/lib/track"
)

// WriteKML writes a KML document with one folder per route group and one line string
// placemark per member
func WriteKML(w io.Writer, name string, groups []routing.RouteGroup) error {
	children := []kml.Element{kml.Name(name)}
	for i, g := range groups {
		folder := []kml.Element{
			kml.Name(fmt.Sprintf("Route %d", i+1)),
			kml.Description(groupDescription(g)),
		}
		for _, m := range g.Members {
			folder = append(folder, placemark(m))
		}
		children = append(children, kml.Folder(folder...))
	}

	if err := kml.KML(kml.Document(children...)).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

// WriteGPX writes trajectories as a GPX document with one track each
func WriteGPX(w io.Writer, trajectories []*track.Trajectory) error {
	return gpx.Write(w, trajectories...)
}

func placemark(t *track.Trajectory) kml.Element {
	coords := make([]kml.Coordinate, t.Len())
	for i := range t.Len() {
		p := t.At(i)
		coords[i] = kml.Coordinate{
			Lon: p.Position.Longitude,
			Lat: p.Position.Latitude,
			Alt: p.Elevation,
		}
	}

	s := track.Summarize(t)
	return kml.Placemark(
		kml.Name(t.Name()),
		kml.Description(fmt.Sprintf("%s, %.0f m, %s", t.Metadata().Time.Format(time.RFC3339), s.Distance, s.Duration)),
		kml.LineString(
			kml.Tessellate(true),
			kml.Coordinates(coords...),
		),
	)
}

func groupDescription(g routing.RouteGroup) string {
	return fmt.Sprintf("%d activities, mean %.0f m, mean %s, fastest %s",
		g.Len(), g.MeanDistance(), g.MeanDuration().Round(time.Second), g.Fastest().Duration())
}
