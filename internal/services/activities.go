package services

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	"github.com/mholt/archives"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dpup/strava-gpx/internal/clients/gpx"
	"github.com/dpup/strava-gpx/internal/config"
	"github.com/dpup/strava-gpx/internal/lib/routing"
	"github.com/dpup/strava-gpx/internal/lib/track"
	"github.com/dpup/strava-gpx/internal/metrics"
)

// ActivityService loads recorded activities and finds repeated commute routes
type ActivityService struct {
	config  *config.ActivitiesConfig
	logger  *zap.Logger
	metrics *metrics.Collector
}

// CommuteReport summarises one commute analysis run
type CommuteReport struct {
	Activities int                  `json:"activities"`
	Commutes   []*track.Trajectory  `json:"-"`
	Groups     []routing.RouteGroup `json:"-"`
}

// activityFile is one GPX file found while walking a path
type activityFile struct {
	fsys fs.FS
	name string // name to open in fsys
	path string // path shown to users
}

// NewActivityService creates a new ActivityService
func NewActivityService(cfg *config.ActivitiesConfig, logger *zap.Logger, collector *metrics.Collector) *ActivityService {
	return &ActivityService{
		config:  cfg,
		logger:  logger.Named("activities"),
		metrics: collector,
	}
}

// Load parses every .gpx and .gpx.gz file found at paths. Each path may be a file, a
// directory or an archive. Files are returned in path order and, within a path, in
// natural filename order. Unparsable files are skipped when activities.skip_invalid is
// set; otherwise the first failure aborts the load.
func (s *ActivityService) Load(ctx context.Context, paths ...string) ([]*track.Trajectory, error) {
	var files []activityFile
	for _, p := range paths {
		found, err := s.find(ctx, p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	s.logger.Debug("Found activity files", zap.Int("count", len(files)))

	results := make([]*track.Trajectory, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			traj, err := s.parse(f)
			if err != nil {
				s.metrics.RecordRejected(err)
				if !s.config.SkipInvalid {
					return fmt.Errorf("failed to parse %s: %w", f.path, err)
				}
				s.logger.Warn("Skipping invalid activity", zap.String("file", f.path), zap.Error(err))
				return nil
			}

			results[i] = traj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	loaded := make([]*track.Trajectory, 0, len(results))
	for _, t := range results {
		if t != nil {
			loaded = append(loaded, t)
		}
	}

	s.logger.Info("Loaded activities",
		zap.Int("files", len(files)),
		zap.Int("loaded", len(loaded)),
		zap.Int("skipped", len(files)-len(loaded)))

	return loaded, nil
}

// Commutes selects the commutes among trajectories, fastest first
func (s *ActivityService) Commutes(trajectories []*track.Trajectory, filter routing.CommuteFilter) []*track.Trajectory {
	commutes := filter.SelectCommutes(trajectories)
	s.metrics.CommutesMatched.Set(float64(len(commutes)))
	s.logger.Info("Selected commutes", zap.Int("activities", len(trajectories)), zap.Int("commutes", len(commutes)))
	return commutes
}

// Group clusters trajectories into repeated routes
func (s *ActivityService) Group(trajectories []*track.Trajectory, threshold float64) []routing.RouteGroup {
	start := time.Now()
	groups := routing.GroupRoutes(trajectories, threshold)
	s.metrics.RouteGroups.Set(float64(len(groups)))
	s.logger.Info("Grouped routes",
		zap.Int("trajectories", len(trajectories)),
		zap.Int("groups", len(groups)),
		zap.Float64("threshold_meters", threshold),
		zap.Duration("elapsed", time.Since(start)))
	return groups
}

// AnalyzeCommutes loads paths, selects commutes and groups them into routes
func (s *ActivityService) AnalyzeCommutes(ctx context.Context, cfg config.CommuteConfig, paths ...string) (*CommuteReport, error) {
	filter, err := cfg.Filter()
	if err != nil {
		return nil, err
	}

	activities, err := s.Load(ctx, paths...)
	if err != nil {
		return nil, err
	}

	commutes := s.Commutes(activities, filter)
	return &CommuteReport{
		Activities: len(activities),
		Commutes:   commutes,
		Groups:     s.Group(commutes, cfg.GroupThresholdMeters),
	}, nil
}

// find walks root, which may be a file, directory or archive, for GPX files
func (s *ActivityService) find(ctx context.Context, root string) ([]activityFile, error) {
	fsys, err := archives.FileSystem(ctx, root, nil)
	if err != nil {
		return nil, fmt.Errorf("creating file system at %s: %w", root, err)
	}

	var files []activityFile
	err = fs.WalkDir(fsys, ".", func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		display := path.Join(root, fpath)
		name := fpath
		if fpath == "." {
			display = root
			name = path.Base(root)
		}
		if strings.HasPrefix(path.Base(name), ".") && fpath != "." {
			// skip hidden files
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !gpx.IsGPXFile(name) {
			s.logger.Debug("Skipping non-GPX file", zap.String("file", display))
			return nil
		}

		files = append(files, activityFile{fsys: fsys, name: name, path: display})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return natural.Less(files[i].name, files[j].name)
	})
	return files, nil
}

func (s *ActivityService) parse(f activityFile) (*track.Trajectory, error) {
	start := time.Now()
	defer func() { s.metrics.ParseDuration.Observe(time.Since(start).Seconds()) }()

	r, err := f.fsys.Open(f.name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	traj, err := gpx.Parse(r, gpx.WithSource(f.path), gpx.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	s.metrics.FilesLoaded.Inc()
	s.metrics.PointsParsed.Add(float64(traj.Len()))
	return traj, nil
}

func (s *ActivityService) concurrency() int {
	if s.config.Concurrency > 0 {
		return s.config.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}
