package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dpup/strava-gpx/internal/config"
	"github.com/dpup/strava-gpx/internal/logging"
	"github.com/dpup/strava-gpx/internal/metrics"
)

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(&session{}).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// session holds what the Before hook builds for the commands
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func newApp(s *session) *cli.App {
	return &cli.App{
		Name:  "stravagpx",
		Usage: "Analyse GPX activity exports: track stats, commute routes and Street View frames",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from a YAML `FILE`",
				EnvVars: []string{"STRAVAGPX_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write Prometheus metrics to `FILE` when the command finishes",
			},
		},
		Before: s.setup,
		After:  s.teardown,
		Commands: []*cli.Command{
			s.statsCommand(),
			s.commutesCommand(),
			s.streetViewCommand(),
		},
	}
}

func (s *session) setup(c *cli.Context) error {
	overrides := map[string]any{}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.logger = logger
	s.metrics = metrics.NewCollector()

	logger.Debug("Configuration loaded",
		zap.String("file", c.String("config")),
		zap.Bool("skip_invalid", cfg.Activities.SkipInvalid),
		zap.Float64("group_threshold_meters", cfg.Commute.GroupThresholdMeters))
	return nil
}

func (s *session) teardown(c *cli.Context) error {
	if s.logger == nil {
		return nil
	}
	defer func() { _ = s.logger.Sync() }()

	if path := c.String("metrics-file"); path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			return err
		}
		s.logger.Debug("Wrote metrics", zap.String("file", path))
	}
	return nil
}
