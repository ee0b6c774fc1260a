package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
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

func trackPoints(positions []geo.Point) track.Points {
	points := make(track.Points, len(positions))
	for i, p := range positions {
		points[i] = track.TrackPoint{Position: p, Elevation: 10, Time: t0.Add(time.Duration(i) * time.Second)}
	}
	return points
}

func TestPlanStreetView(t *testing.T) {
	// North for 10 points then east for 10
	points := trackPoints(route(geo.Point{}, geo.Point{Latitude: 0.001}, geo.Point{Latitude: 0.001, Longitude: 0.001}))
	require.Equal(t, 21, points.Len())

	frames := PlanStreetView(points, 5)
	require.Len(t, frames, 4, "samples at 0, 5, 10, 15, 20")

	assert.Equal(t, points[0].Position, frames[0].Location)
	assert.Equal(t, points[15].Position, frames[3].Location)
	assert.InDelta(t, 0, frames[0].Heading, 1e-6)
	assert.InDelta(t, 0, frames[1].Heading, 1e-6)
	assert.InDelta(t, 90, frames[2].Heading, 1e-3)
	assert.InDelta(t, 90, frames[3].Heading, 1e-3)

	// Partial trailing chunks still contribute their first point
	assert.Len(t, PlanStreetView(points, 8), 2, "samples at 0, 8, 16")
	assert.Len(t, PlanStreetView(points, 1), 20)
	assert.Len(t, PlanStreetView(points, 0), 20)
}

func TestPlanStreetView_TooShort(t *testing.T) {
	points := trackPoints(route(geo.Point{}, geo.Point{Latitude: 0.0004}))
	assert.Empty(t, PlanStreetView(points, 5))
	assert.Empty(t, PlanStreetView(track.Points{}, 5))
}

func newStreetViewService(t *testing.T, handler http.HandlerFunc) (*StreetViewService, *metrics.Collector) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig().StreetView
	cfg.APIKey = "test-key"
	cfg.BaseURL = server.URL
	cfg.SampleEvery = 5
	cfg.Concurrency = 2

	collector := metrics.NewCollector()
	return NewStreetViewService(NewStreetViewClient(&cfg), &cfg, zap.NewNop(), collector), collector
}

func TestStreetViewService_Fetch(t *testing.T) {
	var mu sync.Mutex
	headings := map[string]bool{}

	service, collector := newStreetViewService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		mu.Lock()
		headings[r.URL.Query().Get("heading")] = true
		mu.Unlock()
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "jpeg-bytes")
	})

	points := trackPoints(route(geo.Point{}, geo.Point{Latitude: 0.001}, geo.Point{Latitude: 0.001, Longitude: 0.001}))
	dir := filepath.Join(t.TempDir(), "frames")

	frames, err := service.Fetch(context.Background(), points, dir)
	require.NoError(t, err)
	require.Len(t, frames, 4)

	for i := range frames {
		data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(i)+".jpg"))
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(data))
	}
	assert.True(t, headings["0"])
	assert.True(t, headings["89"] || headings["90"], "east-facing frames: %v", headings)

	assert.Equal(t, 4.0, testutil.ToFloat64(collector.StreetViewImages))
	assert.Equal(t, 40.0, testutil.ToFloat64(collector.StreetViewBytes))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.StreetViewErrors))
}

func TestStreetViewService_FetchError(t *testing.T) {
	service, collector := newStreetViewService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "The provided API key is invalid.")
	})

	points := trackPoints(route(geo.Point{}, geo.Point{Latitude: 0.001}))
	dir := t.TempDir()

	frames, err := service.Fetch(context.Background(), points, dir)
	assert.Nil(t, frames)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error 403")

	// Failed downloads leave no partial files
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.GreaterOrEqual(t, testutil.ToFloat64(collector.StreetViewErrors), 1.0)
}

func TestStreetViewService_FetchTooShort(t *testing.T) {
	service, _ := newStreetViewService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no requests expected")
	})

	dir := filepath.Join(t.TempDir(), "frames")
	frames, err := service.Fetch(context.Background(), trackPoints([]geo.Point{{}}), dir)
	require.NoError(t, err)
	assert.Empty(t, frames)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "output directory is only created when there is work")
}
