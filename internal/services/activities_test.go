package services

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dpup/strava-gpx/internal/config"
	"github.com/dpup/strava-gpx/internal/lib/geo"
	"github.com/dpup/strava-gpx/internal/lib/track"
	"github.com/dpup/strava-gpx/internal/metrics"
)

var t0 = time.Date(2019, 4, 1, 22, 5, 12, 0, time.UTC)

// route interpolates waypoints into points roughly 0.0001 degrees apart
func route(waypoints ...geo.Point) []geo.Point {
	const step = 0.0001
	out := []geo.Point{waypoints[0]}
	for i := 1; i < len(waypoints); i++ {
		a, b := waypoints[i-1], waypoints[i]
		dLat, dLon := b.Latitude-a.Latitude, b.Longitude-a.Longitude
		n := int(max(abs(dLat), abs(dLon))/step + 0.5)
		for j := 1; j <= n; j++ {
			f := float64(j) / float64(n)
			out = append(out, geo.Point{Latitude: a.Latitude + f*dLat, Longitude: a.Longitude + f*dLon})
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// gpxDoc renders a single-track GPX document with points every interval
func gpxDoc(name string, points []geo.Point, interval time.Duration) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">` + "\n")
	fmt.Fprintf(&b, " <trk><name>%s</name><type>1</type><trkseg>\n", name)
	for i, p := range points {
		fmt.Fprintf(&b, "  <trkpt lat=\"%f\" lon=\"%f\"><ele>%d</ele><time>%s</time></trkpt>\n",
			p.Latitude, p.Longitude, 10+i%3, t0.Add(time.Duration(i)*interval).Format(time.RFC3339))
	}
	b.WriteString(" </trkseg></trk>\n</gpx>\n")
	return b.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func shortTrack(name string) string {
	return gpxDoc(name, route(geo.Point{}, geo.Point{Latitude: 0.001}), time.Second)
}

func newActivityService(skipInvalid bool) (*ActivityService, *metrics.Collector) {
	collector := metrics.NewCollector()
	cfg := &config.ActivitiesConfig{Concurrency: 4, SkipInvalid: skipInvalid}
	return NewActivityService(cfg, zap.NewNop(), collector), collector
}

func names(trajectories []*track.Trajectory) []string {
	out := make([]string, len(trajectories))
	for i, t := range trajectories {
		out[i] = t.Name()
	}
	return out
}

func TestActivityService_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "10.gpx"), shortTrack("ten"))
	writeFile(t, filepath.Join(dir, "2.gpx"), shortTrack("two"))
	writeFile(t, filepath.Join(dir, "sub", "3.gpx"), shortTrack("three"))
	writeGzip(t, filepath.Join(dir, "4.gpx.gz"), shortTrack("four"))
	writeFile(t, filepath.Join(dir, ".hidden.gpx"), shortTrack("hidden"))
	writeFile(t, filepath.Join(dir, ".cache", "5.gpx"), shortTrack("cached"))
	writeFile(t, filepath.Join(dir, "notes.txt"), "not an activity")

	service, collector := newActivityService(true)
	trajectories, err := service.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"two", "four", "ten", "three"}, names(trajectories))
	assert.Equal(t, filepath.Join(dir, "2.gpx"), trajectories[0].Metadata().Source)
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.FilesLoaded))
	assert.Equal(t, float64(4*trajectories[0].Len()), testutil.ToFloat64(collector.PointsParsed))
}

func TestActivityService_LoadFiles(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.gpx")
	compressed := filepath.Join(dir, "b.gpx.gz")
	writeFile(t, plain, shortTrack("plain"))
	writeGzip(t, compressed, shortTrack("compressed"))

	service, _ := newActivityService(true)
	trajectories, err := service.Load(context.Background(), compressed, plain)
	require.NoError(t, err)

	// Paths keep argument order
	assert.Equal(t, []string{"compressed", "plain"}, names(trajectories))
	assert.Equal(t, plain, trajectories[1].Metadata().Source)
}

func TestActivityService_LoadArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	entries := []struct{ name, content string }{
		{"activities/10.gpx", shortTrack("ten")},
		{"activities/.hidden.gpx", shortTrack("hidden")},
		{"activities/2.gpx", shortTrack("two")},
		{"activities/nested/3.gpx", shortTrack("three")},
		{"activities/.trash/4.gpx", shortTrack("trashed")},
		{"profile.csv", "name,city"},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	service, collector := newActivityService(true)
	trajectories, err := service.Load(context.Background(), archive)
	require.NoError(t, err)

	assert.Equal(t, []string{"two", "ten", "three"}, names(trajectories))
	assert.Equal(t, filepath.Join(archive, "activities", "2.gpx"), trajectories[0].Metadata().Source)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.FilesLoaded))
}

func TestActivityService_LoadInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "1.gpx"), shortTrack("good"))
	writeFile(t, filepath.Join(dir, "2.gpx"), `<gpx><trk><trkseg><trkpt lat="1" lon="1"><ele>1</ele></trkpt></trkseg></trk></gpx>`)
	writeFile(t, filepath.Join(dir, "3.gpx"), `<gpx><trk><trkseg></trkseg></trk></gpx>`)

	t.Run("skip", func(t *testing.T) {
		service, collector := newActivityService(true)
		trajectories, err := service.Load(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, []string{"good"}, names(trajectories))
		assert.Equal(t, 1.0, testutil.ToFloat64(collector.FilesRejected.WithLabelValues(metrics.ReasonMalformed)))
		assert.Equal(t, 1.0, testutil.ToFloat64(collector.FilesRejected.WithLabelValues(metrics.ReasonDegenerate)))
	})

	t.Run("abort", func(t *testing.T) {
		service, _ := newActivityService(false)
		trajectories, err := service.Load(context.Background(), dir)
		assert.Nil(t, trajectories)
		require.Error(t, err)
		assert.True(t, errors.Is(err, track.ErrMalformedInput) || errors.Is(err, track.ErrDegenerateTrajectory), err.Error())
	})
}

func TestActivityService_LoadMissingPath(t *testing.T) {
	service, _ := newActivityService(true)
	_, err := service.Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestActivityService_LoadCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "1.gpx"), shortTrack("one"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service, _ := newActivityService(true)
	_, err := service.Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestActivityService_AnalyzeCommutes(t *testing.T) {
	home := geo.Point{Latitude: 0, Longitude: 0}
	work := geo.Point{Latitude: 0.01, Longitude: 0}

	dir := t.TempDir()
	// Two rides along the same street, about 11m apart
	writeFile(t, filepath.Join(dir, "1.gpx"), gpxDoc("direct", route(home, work), 2*time.Second))
	writeFile(t, filepath.Join(dir, "2.gpx"), gpxDoc("direct faster",
		route(geo.Point{Longitude: 0.0001}, geo.Point{Latitude: 0.01, Longitude: 0.0001}), time.Second))
	// A detour ~220m east of the direct route
	writeFile(t, filepath.Join(dir, "3.gpx"), gpxDoc("detour",
		route(home, geo.Point{Longitude: 0.002}, geo.Point{Latitude: 0.01, Longitude: 0.002}, work), 2*time.Second))
	// Ride home, not a commute
	writeFile(t, filepath.Join(dir, "4.gpx"), gpxDoc("homeward", route(work, home), time.Second))

	cfg := config.CommuteConfig{
		Home:                 config.Geofence{Latitude: home.Latitude, Longitude: home.Longitude, RadiusMeters: 50},
		Work:                 config.Geofence{Latitude: work.Latitude, Longitude: work.Longitude, RadiusMeters: 50},
		MaxDistanceMeters:    6000,
		GroupThresholdMeters: 20,
	}

	service, collector := newActivityService(true)
	report, err := service.AnalyzeCommutes(context.Background(), cfg, dir)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Activities)
	assert.Equal(t, []string{"direct faster", "direct", "detour"}, names(report.Commutes), "shortest duration first")

	require.Len(t, report.Groups, 2)
	assert.Equal(t, []string{"direct faster", "direct"}, names(report.Groups[0].Members))
	assert.Equal(t, []string{"detour"}, names(report.Groups[1].Members))

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.CommutesMatched))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.RouteGroups))
}

func TestActivityService_AnalyzeCommutesBadGeofence(t *testing.T) {
	cfg := config.DefaultConfig().Commute
	cfg.Home.RadiusMeters = 0

	service, _ := newActivityService(true)
	_, err := service.AnalyzeCommutes(context.Background(), cfg, t.TempDir())
	assert.ErrorIs(t, err, geo.ErrInvalidRadius)
}
