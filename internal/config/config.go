package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dpup/strava-gpx/internal/clients/streetview"
	"github.com/dpup/strava-gpx/internal/lib/geo"
	"github.com/dpup/strava-gpx/internal/lib/routing"
)

// EnvPrefix is stripped from environment variables before they are mapped onto config
// keys. A double underscore separates nested keys: STRAVAGPX_COMMUTE__HOME__LATITUDE.
const EnvPrefix = "STRAVAGPX_"

// APIKeyEnv is read when streetview.api_key is not otherwise set
const APIKeyEnv = "GOOGLE_MAPS_API_KEY"

// Config represents the complete tool configuration
type Config struct {
	Log        LogConfig        `koanf:"log"`
	Activities ActivitiesConfig `koanf:"activities"`
	Commute    CommuteConfig    `koanf:"commute"`
	StreetView StreetViewConfig `koanf:"streetview"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn or error
	Format string `koanf:"format"` // console or json
}

// ActivitiesConfig controls how activity files are loaded
type ActivitiesConfig struct {
	Concurrency int  `koanf:"concurrency"` // 0 uses one worker per CPU
	SkipInvalid bool `koanf:"skip_invalid"`
}

// CommuteConfig describes which activities count as commutes and how they are grouped
type CommuteConfig struct {
	Home                 Geofence      `koanf:"home"`
	Work                 Geofence      `koanf:"work"`
	MaxDistanceMeters    float64       `koanf:"max_distance_meters"` // 0 disables
	MaxDuration          time.Duration `koanf:"max_duration"`        // 0 disables
	GroupThresholdMeters float64       `koanf:"group_threshold_meters"`
}

// Geofence is a circle in config form
type Geofence struct {
	Latitude     float64 `koanf:"latitude"`
	Longitude    float64 `koanf:"longitude"`
	RadiusMeters float64 `koanf:"radius_meters"`
}

// StreetViewConfig holds Street View Static API settings
type StreetViewConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Size        string        `koanf:"size"`
	FOV         int           `koanf:"fov"`
	SampleEvery int           `koanf:"sample_every"`
	Concurrency int           `koanf:"concurrency"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Circle converts the geofence to a validated geo.Circle
func (g Geofence) Circle() (geo.Circle, error) {
	return geo.NewCircle(g.Latitude, g.Longitude, g.RadiusMeters)
}

// Filter builds the commute filter described by the config
func (c CommuteConfig) Filter() (routing.CommuteFilter, error) {
	home, err := c.Home.Circle()
	if err != nil {
		return routing.CommuteFilter{}, fmt.Errorf("commute.home: %w", err)
	}
	work, err := c.Work.Circle()
	if err != nil {
		return routing.CommuteFilter{}, fmt.Errorf("commute.work: %w", err)
	}
	return routing.CommuteFilter{
		Start:       home,
		End:         work,
		MaxDistance: c.MaxDistanceMeters,
		MaxDuration: c.MaxDuration,
	}, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Activities: ActivitiesConfig{
			SkipInvalid: true,
		},
		Commute: CommuteConfig{
			Home: Geofence{
				Latitude:     -37.7727287,
				Longitude:    144.9647453,
				RadiusMeters: 50,
			},
			Work: Geofence{
				Latitude:     -37.8002519,
				Longitude:    144.9846860,
				RadiusMeters: 50,
			},
			MaxDistanceMeters:    6000,
			GroupThresholdMeters: routing.DefaultGroupThreshold,
		},
		StreetView: StreetViewConfig{
			BaseURL:     streetview.DefaultBaseURL,
			Size:        streetview.DefaultSize,
			FOV:         streetview.DefaultFOV,
			SampleEvery: 5,
			Concurrency: 8,
			Timeout:     30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at path, then
// STRAVAGPX_ environment variables, then overrides (flat dotted keys, e.g. from flags).
// A .env file in the working directory is loaded into the environment first.
func Load(path string, overrides map[string]any) (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.StreetView.APIKey == "" {
		cfg.StreetView.APIKey = os.Getenv(APIKeyEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps STRAVAGPX_STREETVIEW__API_KEY to streetview.api_key
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var sizePattern = regexp.MustCompile(`^(\d+)x(\d+)$`)

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json (got %q)", c.Log.Format))
	}

	if c.Activities.Concurrency < 0 {
		errs = append(errs, errors.New("activities.concurrency must not be negative"))
	}

	if _, err := c.Commute.Home.Circle(); err != nil {
		errs = append(errs, fmt.Errorf("commute.home: %w", err))
	}
	if _, err := c.Commute.Work.Circle(); err != nil {
		errs = append(errs, fmt.Errorf("commute.work: %w", err))
	}
	if c.Commute.MaxDistanceMeters < 0 {
		errs = append(errs, errors.New("commute.max_distance_meters must not be negative"))
	}
	if c.Commute.MaxDuration < 0 {
		errs = append(errs, errors.New("commute.max_duration must not be negative"))
	}
	if c.Commute.GroupThresholdMeters <= 0 {
		errs = append(errs, errors.New("commute.group_threshold_meters must be positive"))
	}

	if c.StreetView.BaseURL == "" {
		errs = append(errs, errors.New("streetview.base_url is required"))
	}
	if err := validateSize(c.StreetView.Size); err != nil {
		errs = append(errs, err)
	}
	if c.StreetView.FOV < 1 || c.StreetView.FOV > 120 {
		errs = append(errs, fmt.Errorf("streetview.fov must be between 1 and 120 (got %d)", c.StreetView.FOV))
	}
	if c.StreetView.SampleEvery < 1 {
		errs = append(errs, errors.New("streetview.sample_every must be at least 1"))
	}
	if c.StreetView.Concurrency < 1 {
		errs = append(errs, errors.New("streetview.concurrency must be at least 1"))
	}
	if c.StreetView.Timeout <= 0 {
		errs = append(errs, errors.New("streetview.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// validateSize checks a Street View "WxH" size of at most 640 pixels a side
func validateSize(size string) error {
	m := sizePattern.FindStringSubmatch(size)
	if m == nil {
		return fmt.Errorf("streetview.size must look like 640x640 (got %q)", size)
	}
	for _, side := range m[1:] {
		n, _ := strconv.Atoi(side)
		if n < 1 || n > 640 {
			return fmt.Errorf("streetview.size sides must be between 1 and 640 (got %q)", size)
		}
	}
	return nil
}
