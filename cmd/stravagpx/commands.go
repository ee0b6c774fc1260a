package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dpup/strava-gpx/internal/clients/gpx"
	"github.com/dpup/strava-gpx/internal/clients/streetview"
	"github.com/dpup/strava-gpx/internal/config"
	"github.com/dpup/strava-gpx/internal/export"
	"github.com/dpup/strava-gpx/internal/lib/track"
	"github.com/dpup/strava-gpx/internal/services"
)

func (s *session) statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Print the metrics of a single activity",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("stats needs exactly one GPX file", 2)
			}

			traj, err := gpx.ParseFile(c.Args().First(), gpx.WithLogger(s.logger))
			if err != nil {
				return err
			}
			s.metrics.FilesLoaded.Inc()
			s.metrics.PointsParsed.Add(float64(traj.Len()))

			w := c.App.Writer
			summary := track.Summarize(traj)
			fmt.Fprintf(w, "Activity:       %s\n", traj.Name())
			fmt.Fprintf(w, "Points:         %d\n", summary.Points)
			fmt.Fprintf(w, "Distance:       %.1f m\n", summary.Distance)
			fmt.Fprintf(w, "Elevation gain: %.1f m\n", summary.ElevationGain)
			fmt.Fprintf(w, "Duration:       %s\n", summary.Duration)
			fmt.Fprintf(w, "Average speed:  %.2f m/s\n", summary.AverageSpeed)
			fmt.Fprintf(w, "Polyline:       %s\n", track.Polyline(traj).EncodedPolyline)

			speeds, err := traj.Speeds()
			if err != nil {
				s.logger.Warn("Speeds unavailable", zap.Error(err))
			} else {
				fmt.Fprintln(w, "\nSpeeds (m/s):")
				printSeries(w, speeds, "%.2f")
			}

			fmt.Fprintln(w, "\nHeadings (degrees):")
			printSeries(w, traj.Bearings(), "%.1f")
			return nil
		},
	}
}

func (s *session) commutesCommand() *cli.Command {
	return &cli.Command{
		Name:      "commutes",
		Usage:     "Find commutes among activities and group them by route",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kml", Usage: "Export route groups as KML to `FILE`"},
			&cli.StringFlag{Name: "gpx", Usage: "Export the commutes as GPX to `FILE`"},
			&cli.Float64Flag{Name: "threshold", Usage: "Route grouping threshold in meters"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("commutes needs at least one path", 2)
			}

			commute := s.cfg.Commute
			if c.IsSet("threshold") {
				if c.Float64("threshold") <= 0 {
					return cli.Exit("--threshold must be positive", 2)
				}
				commute.GroupThresholdMeters = c.Float64("threshold")
			}

			activities := services.NewActivityService(&s.cfg.Activities, s.logger, s.metrics)
			report, err := activities.AnalyzeCommutes(c.Context, commute, c.Args().Slice()...)
			if err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Activities: %d\n", report.Activities)
			fmt.Fprintf(w, "Commutes:   %d\n", len(report.Commutes))
			fmt.Fprintf(w, "Groups:     %d\n", len(report.Groups))
			for i, g := range report.Groups {
				fastest := g.Fastest()
				fmt.Fprintf(w, "Route %d: %d activities, mean %.0f m in %s, fastest %q (%s)\n",
					i+1, g.Len(), g.MeanDistance(), g.MeanDuration().Round(time.Second),
					fastest.Name(), fastest.Duration())
			}

			if path := c.String("kml"); path != "" {
				if err := writeFile(path, func(w io.Writer) error {
					return export.WriteKML(w, "Commutes", report.Groups)
				}); err != nil {
					return err
				}
				s.logger.Info("Exported KML", zap.String("file", path))
			}
			if path := c.String("gpx"); path != "" {
				if err := writeFile(path, func(w io.Writer) error {
					return export.WriteGPX(w, report.Commutes)
				}); err != nil {
					return err
				}
				s.logger.Info("Exported GPX", zap.String("file", path))
			}
			return nil
		},
	}
}

func (s *session) streetViewCommand() *cli.Command {
	return &cli.Command{
		Name:      "streetview",
		Usage:     "Download Street View frames along an activity",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Write frames to `DIR`", Required: true},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("streetview needs exactly one GPX file", 2)
			}

			if s.cfg.StreetView.APIKey == "" {
				return fmt.Errorf("%w: set streetview.api_key or %s", streetview.ErrMissingAPIKey, config.APIKeyEnv)
			}

			traj, err := gpx.ParseFile(c.Args().First(), gpx.WithLogger(s.logger))
			if err != nil {
				return err
			}

			client := services.NewStreetViewClient(&s.cfg.StreetView)
			svc := services.NewStreetViewService(client, &s.cfg.StreetView, s.logger, s.metrics)
			frames, err := svc.Fetch(c.Context, traj, c.String("out"))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Downloaded %d frames to %s\n", len(frames), c.String("out"))
			return nil
		},
	}
}

func printSeries(w io.Writer, values []float64, format string) {
	for i, v := range values {
		fmt.Fprintf(w, "%5d  "+format+"\n", i, v)
	}
}

// writeFile creates path and hands it to write, reporting close errors
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return write(f)
}
