package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dpup/strava-gpx/internal/clients/streetview"
	"github.com/dpup/strava-gpx/internal/config"
	"github.com/dpup/strava-gpx/internal/lib/geo"
	"github.com/dpup/strava-gpx/internal/lib/track"
	"github.com/dpup/strava-gpx/internal/metrics"
)

// PlanStreetView samples every n-th point of c, starting with the first, and returns one
// frame per consecutive pair of samples: positioned at the first sample and facing the
// second. Fewer than two samples produce no frames.
func PlanStreetView(c track.Collection, every int) []streetview.Frame {
	if every < 1 {
		every = 1
	}

	var samples []geo.Point
	for i := 0; i < c.Len(); i += every {
		samples = append(samples, c.At(i).Position)
	}

	frames := make([]streetview.Frame, 0, max(len(samples)-1, 0))
	for i := 1; i < len(samples); i++ {
		frames = append(frames, streetview.Frame{
			Location: samples[i-1],
			Heading:  geo.Bearing(samples[i-1], samples[i]),
		})
	}
	return frames
}

// ImageFetcher downloads the Street View image for a frame
type ImageFetcher interface {
	FetchImage(ctx context.Context, frame streetview.Frame, w io.Writer) (int64, error)
}

// StreetViewService downloads Street View imagery along a trajectory
type StreetViewService struct {
	client  ImageFetcher
	config  *config.StreetViewConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewStreetViewService creates a new StreetViewService
func NewStreetViewService(client ImageFetcher, cfg *config.StreetViewConfig, logger *zap.Logger, collector *metrics.Collector) *StreetViewService {
	return &StreetViewService{
		client:  client,
		config:  cfg,
		logger:  logger.Named("streetview"),
		metrics: collector,
	}
}

// NewStreetViewClient builds the API client described by cfg
func NewStreetViewClient(cfg *config.StreetViewConfig) *streetview.Client {
	client := streetview.NewClientWithHTTPDoer(cfg.APIKey, cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})
	client.SetImageOptions(cfg.Size, cfg.FOV)
	return client
}

// Fetch plans frames along c and downloads them concurrently to <dir>/<i>.jpg. It returns
// the frames in order; the first failed download cancels the rest.
func (s *StreetViewService) Fetch(ctx context.Context, c track.Collection, dir string) ([]streetview.Frame, error) {
	frames := PlanStreetView(c, s.config.SampleEvery)
	if len(frames) == 0 {
		s.logger.Warn("Trajectory too short for Street View frames",
			zap.Int("points", c.Len()), zap.Int("sample_every", s.config.SampleEvery))
		return frames, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	s.logger.Info("Downloading Street View frames", zap.Int("frames", len(frames)), zap.String("dir", dir))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, frame := range frames {
		g.Go(func() error {
			path := filepath.Join(dir, strconv.Itoa(i)+".jpg")
			if err := s.download(ctx, frame, path); err != nil {
				s.metrics.StreetViewErrors.Inc()
				return fmt.Errorf("frame %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return frames, nil
}

func (s *StreetViewService) download(ctx context.Context, frame streetview.Frame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	n, err := s.client.FetchImage(ctx, frame, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}

	s.metrics.StreetViewImages.Inc()
	s.metrics.StreetViewBytes.Add(float64(n))
	s.logger.Debug("Downloaded frame",
		zap.String("file", path),
		zap.Float64("heading", frame.Heading),
		zap.Int64("bytes", n))
	return nil
}
