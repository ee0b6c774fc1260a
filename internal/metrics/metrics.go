package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dpup/strava-gpx/internal/lib/track"
)

// Rejection reasons for FilesRejected
const (
	ReasonMalformed  = "malformed"
	ReasonDegenerate = "degenerate"
	ReasonOther      = "other"
)

// Collector holds the counters and gauges one run reports, registered on a private registry
type Collector struct {
	reg *prometheus.Registry

	FilesLoaded   prometheus.Counter
	FilesRejected *prometheus.CounterVec // reason label: malformed|degenerate|other
	PointsParsed  prometheus.Counter
	ParseDuration prometheus.Histogram

	CommutesMatched prometheus.Gauge
	RouteGroups     prometheus.Gauge

	StreetViewImages prometheus.Counter
	StreetViewErrors prometheus.Counter
	StreetViewBytes  prometheus.Counter
}

// NewCollector creates a Collector with every metric registered
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FilesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stravagpx_files_loaded_total",
			Help: "Activity files parsed into trajectories.",
		}),
		FilesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stravagpx_files_rejected_total",
			Help: "Activity files that could not be parsed.",
		}, []string{"reason"}),
		PointsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stravagpx_points_parsed_total",
			Help: "Track points read from loaded activity files.",
		}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stravagpx_parse_duration_seconds",
			Help:    "Time to open and parse one activity file.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		CommutesMatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stravagpx_commutes_matched",
			Help: "Activities selected by the commute filter in the last run.",
		}),
		RouteGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stravagpx_route_groups",
			Help: "Route groups produced by the last clustering run.",
		}),
		StreetViewImages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stravagpx_streetview_images_total",
			Help: "Street View images downloaded.",
		}),
		StreetViewErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stravagpx_streetview_errors_total",
			Help: "Street View downloads that failed.",
		}),
		StreetViewBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stravagpx_streetview_bytes_total",
			Help: "Bytes of Street View imagery downloaded.",
		}),
	}

	// Register
	reg.MustRegister(
		c.FilesLoaded, c.FilesRejected, c.PointsParsed, c.ParseDuration,
		c.CommutesMatched, c.RouteGroups,
		c.StreetViewImages, c.StreetViewErrors, c.StreetViewBytes,
	)

	return c
}

// Registry exposes the private registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// RecordRejected counts a file that failed to parse, labelled by the kind of failure
func (c *Collector) RecordRejected(err error) {
	c.FilesRejected.WithLabelValues(RejectionReason(err)).Inc()
}

// RejectionReason classifies a parse failure
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, track.ErrDegenerateTrajectory):
		return ReasonDegenerate
	case errors.Is(err, track.ErrMalformedInput):
		return ReasonMalformed
	default:
		return ReasonOther
	}
}

// WriteTextfile writes every metric to path in the text exposition format, for the
// node exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
