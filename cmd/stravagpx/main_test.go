package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = "../../internal/clients/gpx/testdata/commute.gpx"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(&session{})
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"stravagpx", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestStats(t *testing.T) {
	out, err := run(t, "stats", fixture)
	require.NoError(t, err)

	assert.Contains(t, out, "Activity:       Morning Commute")
	assert.Contains(t, out, "Points:         4")
	assert.Contains(t, out, "Polyline:       ")
	assert.Contains(t, out, "Speeds (m/s):")
	assert.Contains(t, out, "Headings (degrees):")
}

func TestStats_MissingFile(t *testing.T) {
	_, err := run(t, "stats", filepath.Join(t.TempDir(), "missing.gpx"))
	assert.Error(t, err)
}

func TestCommutes(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.gpx"), data, 0o644))

	kmlPath := filepath.Join(dir, "routes.kml")
	gpxPath := filepath.Join(dir, "commutes.gpx")
	metricsPath := filepath.Join(dir, "stravagpx.prom")

	out, err := run(t, "--metrics-file", metricsPath,
		"commutes", "--kml", kmlPath, "--gpx", gpxPath, "--threshold", "25", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Activities: 1")

	kml, err := os.ReadFile(kmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(kml), "<kml")

	exported, err := os.ReadFile(gpxPath)
	require.NoError(t, err)
	assert.Contains(t, string(exported), "<gpx")

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "stravagpx_files_loaded_total 1")
}

func TestStreetView_RequiresAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	t.Setenv("STRAVAGPX_STREETVIEW__API_KEY", "")

	_, err := run(t, "streetview", "--out", t.TempDir(), fixture)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}
