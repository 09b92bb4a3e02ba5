package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Executor kinds for SchedulerConfig.Executor.
const (
	ExecutorUIThread   = "ui_thread"
	ExecutorBackground = "background"
	ExecutorAuto       = "auto"
)

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

type Config struct {
	Log       LogConfig       `yaml:"log" toml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Update    UpdateConfig    `yaml:"update" toml:"update"`
	Viewport  ViewportConfig  `yaml:"viewport" toml:"viewport"`
	Fragments FragmentsConfig `yaml:"fragments" toml:"fragments"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error
}

type SchedulerConfig struct {
	Executor             string        `yaml:"executor" toml:"executor"`
	ComputationFrameTime time.Duration `yaml:"computation_frame_time" toml:"computation_frame_time"` // budget of the cooperative executor per frame
	ProjectionQuant      int           `yaml:"projection_quant" toml:"projection_quant"`             // points projected per thread slice
	BackgroundWorkers    int           `yaml:"background_workers" toml:"background_workers"`
}

type UpdateConfig struct {
	Pause          time.Duration `yaml:"pause" toml:"pause"` // minimal interval between frames
	TimeMultiplier float64       `yaml:"time_multiplier" toml:"time_multiplier"`
}

type ViewportConfig struct {
	Width        int           `yaml:"width" toml:"width"`
	Height       int           `yaml:"height" toml:"height"`
	CellSize     int           `yaml:"cell_size" toml:"cell_size"`
	Projection   string        `yaml:"projection" toml:"projection"` // mercator or equirectangular
	Zoom         float64       `yaml:"zoom" toml:"zoom"`
	MinZoom      float64       `yaml:"min_zoom" toml:"min_zoom"`
	MaxZoom      float64       `yaml:"max_zoom" toml:"max_zoom"`
	ZoomDuration time.Duration `yaml:"zoom_duration" toml:"zoom_duration"`
}

type FragmentsConfig struct {
	ActiveDownloadsLimit int           `yaml:"active_downloads_limit" toml:"active_downloads_limit"`
	CachedZoomCount      int           `yaml:"cached_zoom_count" toml:"cached_zoom_count"`
	EntityCacheLimit     int           `yaml:"entity_cache_limit" toml:"entity_cache_limit"` // hidden fragments kept projected
	FetchTimeout         time.Duration `yaml:"fetch_timeout" toml:"fetch_timeout"`
	Resolution           float64       `yaml:"resolution" toml:"resolution"` // resampling threshold in pixels
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Scheduler: SchedulerConfig{
			Executor:             ExecutorUIThread,
			ComputationFrameTime: 10 * time.Millisecond,
			ProjectionQuant:      1000,
			BackgroundWorkers:    2,
		},
		Update: UpdateConfig{
			Pause:          16 * time.Millisecond,
			TimeMultiplier: 1.0,
		},
		Viewport: ViewportConfig{
			Width:        800,
			Height:       600,
			CellSize:     256,
			Projection:   "mercator",
			Zoom:         1,
			MinZoom:      1,
			MaxZoom:      15,
			ZoomDuration: 250 * time.Millisecond,
		},
		Fragments: FragmentsConfig{
			ActiveDownloadsLimit: 10,
			CachedZoomCount:      2,
			EntityCacheLimit:     60,
			FetchTimeout:         10 * time.Second,
			Resolution:           1.0,
		},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level %q", c.Log.Level)
	}
	switch c.Scheduler.Executor {
	case ExecutorUIThread, ExecutorBackground, ExecutorAuto:
	default:
		check(false, "scheduler.executor %q", c.Scheduler.Executor)
	}
	check(c.Scheduler.ComputationFrameTime > 0, "scheduler.computation_frame_time must be positive")
	check(c.Scheduler.ProjectionQuant > 0, "scheduler.projection_quant must be positive")
	check(c.Scheduler.BackgroundWorkers > 0, "scheduler.background_workers must be positive")
	check(c.Update.Pause >= 0, "update.pause must not be negative")
	check(c.Update.TimeMultiplier > 0, "update.time_multiplier must be positive")
	check(c.Viewport.Width >= 0 && c.Viewport.Height >= 0, "viewport size must not be negative")
	check(c.Viewport.CellSize > 0, "viewport.cell_size must be positive")
	switch c.Viewport.Projection {
	case "mercator", "equirectangular":
	default:
		check(false, "viewport.projection %q", c.Viewport.Projection)
	}
	check(c.Viewport.MinZoom >= 0 && c.Viewport.MinZoom <= c.Viewport.MaxZoom, "viewport zoom range [%g, %g]", c.Viewport.MinZoom, c.Viewport.MaxZoom)
	check(c.Viewport.MaxZoom <= 30, "viewport.max_zoom %g is above 30", c.Viewport.MaxZoom)
	check(c.Fragments.ActiveDownloadsLimit > 0, "fragments.active_downloads_limit must be positive")
	check(c.Fragments.CachedZoomCount > 0, "fragments.cached_zoom_count must be positive")
	check(c.Fragments.EntityCacheLimit >= 0, "fragments.entity_cache_limit must not be negative")
	check(c.Fragments.FetchTimeout >= 0, "fragments.fetch_timeout must not be negative")
	check(c.Fragments.Resolution > 0, "fragments.resolution must be positive")

	return errors.Join(errs...)
}

// LoadYAML reads a YAML config on top of the defaults.
func LoadYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadTOML reads a TOML config on top of the defaults.
func LoadTOML(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse toml config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
	}
	return cfg, cfg.Validate()
}

// LoadFile picks the format by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(bytes.NewReader(data))
	case ".toml":
		return LoadTOML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}
