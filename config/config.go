// Package config holds the viewer configuration: defaults, PANOVIEW_*
// environment overrides and .env files.
package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/tiles"
	"github.com/gmlewis/panoview/view"
)

// Backend names.
const (
	OpenGL   = "opengl"
	WebGPU   = "webgpu"
	Software = "software"
)

// Configuration defines the viewer settings.
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	View     ViewConfiguration
	Tiles    TileConfiguration
	LogLevel string
}

// TimeConfiguration is used to configure the render loop.
type TimeConfiguration struct {
	// FramesPerSecond caps the frame rate. To unlimit, set to 0.
	FramesPerSecond int
}

// RendererConfiguration is used to configure the renderer.
type RendererConfiguration struct {
	Backend      string
	ScreenWidth  int
	ScreenHeight int
	Visible      bool
	// Background is a #rrggbb or #rrggbbaa color.
	Background string
}

// ViewConfiguration limits the camera, in degrees.
type ViewConfiguration struct {
	MinYaw, MaxYaw     float64
	MinPitch, MaxPitch float64
	MinHFOV, MaxHFOV   float64
}

// TileConfiguration tunes multires tile streaming.
type TileConfiguration struct {
	Capacity    int
	MaxInFlight int
	MaxRetries  int
	EvictAfter  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Default returns the built in configuration.
func Default() Configuration {
	b := view.DefaultBounds()
	t := tiles.DefaultOptions()
	return Configuration{
		Time: TimeConfiguration{FramesPerSecond: 60},
		Renderer: RendererConfiguration{
			Backend:      OpenGL,
			ScreenWidth:  1024,
			ScreenHeight: 768,
			Visible:      true,
			Background:   "#000000",
		},
		View: ViewConfiguration{
			MinYaw: b.MinYaw, MaxYaw: b.MaxYaw,
			MinPitch: b.MinPitch, MaxPitch: b.MaxPitch,
			MinHFOV: b.MinHFOV, MaxHFOV: b.MaxHFOV,
		},
		Tiles: TileConfiguration{
			Capacity:    t.Capacity,
			MaxInFlight: t.MaxInFlight,
			MaxRetries:  t.MaxRetries,
			EvictAfter:  t.EvictAfter,
			BaseBackoff: t.BaseBackoff,
			MaxBackoff:  t.MaxBackoff,
		},
		LogLevel: "info",
	}
}

// setting binds one key to a field of a Configuration.
type setting struct {
	key string
	set func(c *Configuration, v string) error
}

func intSetting(key string, field func(*Configuration) *int) setting {
	return setting{key, func(c *Configuration, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}}
}

func floatSetting(key string, field func(*Configuration) *float64) setting {
	return setting{key, func(c *Configuration, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}}
}

func durationSetting(key string, field func(*Configuration) *time.Duration) setting {
	return setting{key, func(c *Configuration, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}}
}

func stringSetting(key string, field func(*Configuration) *string) setting {
	return setting{key, func(c *Configuration, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}}
}

var settings = []setting{
	stringSetting("PANOVIEW_BACKEND", func(c *Configuration) *string { return &c.Renderer.Backend }),
	intSetting("PANOVIEW_WIDTH", func(c *Configuration) *int { return &c.Renderer.ScreenWidth }),
	intSetting("PANOVIEW_HEIGHT", func(c *Configuration) *int { return &c.Renderer.ScreenHeight }),
	{"PANOVIEW_VISIBLE", func(c *Configuration, v string) error {
		b, err := strconv.ParseBool(v)
		c.Renderer.Visible = b
		return err
	}},
	stringSetting("PANOVIEW_BACKGROUND", func(c *Configuration) *string { return &c.Renderer.Background }),
	intSetting("PANOVIEW_FPS", func(c *Configuration) *int { return &c.Time.FramesPerSecond }),
	stringSetting("PANOVIEW_LOG_LEVEL", func(c *Configuration) *string { return &c.LogLevel }),

	floatSetting("PANOVIEW_MIN_YAW", func(c *Configuration) *float64 { return &c.View.MinYaw }),
	floatSetting("PANOVIEW_MAX_YAW", func(c *Configuration) *float64 { return &c.View.MaxYaw }),
	floatSetting("PANOVIEW_MIN_PITCH", func(c *Configuration) *float64 { return &c.View.MinPitch }),
	floatSetting("PANOVIEW_MAX_PITCH", func(c *Configuration) *float64 { return &c.View.MaxPitch }),
	floatSetting("PANOVIEW_MIN_HFOV", func(c *Configuration) *float64 { return &c.View.MinHFOV }),
	floatSetting("PANOVIEW_MAX_HFOV", func(c *Configuration) *float64 { return &c.View.MaxHFOV }),

	intSetting("PANOVIEW_TILE_CAPACITY", func(c *Configuration) *int { return &c.Tiles.Capacity }),
	intSetting("PANOVIEW_TILE_MAX_IN_FLIGHT", func(c *Configuration) *int { return &c.Tiles.MaxInFlight }),
	intSetting("PANOVIEW_TILE_MAX_RETRIES", func(c *Configuration) *int { return &c.Tiles.MaxRetries }),
	{"PANOVIEW_TILE_EVICT_AFTER", func(c *Configuration, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		c.Tiles.EvictAfter = n
		return err
	}},
	durationSetting("PANOVIEW_TILE_BASE_BACKOFF", func(c *Configuration) *time.Duration { return &c.Tiles.BaseBackoff }),
	durationSetting("PANOVIEW_TILE_MAX_BACKOFF", func(c *Configuration) *time.Duration { return &c.Tiles.MaxBackoff }),
}

// Keys returns every recognised key.
func Keys() []string {
	keys := make([]string, len(settings))
	for i, s := range settings {
		keys[i] = s.key
	}
	return keys
}

// apply overrides base with every key lookup finds.
func apply(base Configuration, lookup func(key string) (string, bool)) (Configuration, error) {
	c := base
	for _, s := range settings {
		v, ok := lookup(s.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := s.set(&c, strings.TrimSpace(v)); err != nil {
			return base, fmt.Errorf("config %v=%q: %w", s.key, v, err)
		}
	}
	if err := c.Validate(); err != nil {
		return base, err
	}
	return c, nil
}

// FromEnv overrides base with PANOVIEW_* environment variables.
func FromEnv(base Configuration) (Configuration, error) {
	return apply(base, func(key string) (string, bool) {
		v, err := envy.MustGet(key)
		return v, err == nil
	})
}

// LoadFile overrides base with the keys of a .env file.
func LoadFile(path string, base Configuration) (Configuration, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return base, fmt.Errorf("config %v: %w", path, err)
	}
	return apply(base, func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	})
}

// Validate checks the configuration is usable.
func (c Configuration) Validate() error {
	switch c.Renderer.Backend {
	case OpenGL, WebGPU, Software:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Renderer.Backend)
	}
	if c.Renderer.ScreenWidth <= 0 || c.Renderer.ScreenHeight <= 0 {
		return fmt.Errorf("config: screen %vx%v", c.Renderer.ScreenWidth, c.Renderer.ScreenHeight)
	}
	if c.Time.FramesPerSecond < 0 {
		return fmt.Errorf("config: negative frame rate %v", c.Time.FramesPerSecond)
	}
	if _, err := c.BackgroundColor(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Tiles.Capacity < 0 || c.Tiles.MaxInFlight < 0 || c.Tiles.MaxRetries < 0 {
		return fmt.Errorf("config: negative tile setting %+v", c.Tiles)
	}
	return nil
}

// Level returns the log level.
func (c Configuration) Level() (log.Level, error) {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return l, nil
}

// BackgroundColor parses Renderer.Background.
func (c Configuration) BackgroundColor() (color.RGBA, error) {
	s := strings.TrimPrefix(c.Renderer.Background, "#")
	if len(s) != 6 && len(s) != 8 {
		return color.RGBA{}, fmt.Errorf("config: background %q is not #rrggbb[aa]", c.Renderer.Background)
	}
	if len(s) == 6 {
		s += "ff"
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("config: background %q: %w", c.Renderer.Background, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Bounds returns the camera limits.
func (c Configuration) Bounds() view.Bounds {
	v := c.View
	return view.Bounds{
		MinYaw: v.MinYaw, MaxYaw: v.MaxYaw,
		MinPitch: v.MinPitch, MaxPitch: v.MaxPitch,
		MinHFOV: v.MinHFOV, MaxHFOV: v.MaxHFOV,
	}
}

// TileOptions returns tile manager options. Unset fields keep the tiles
// package defaults.
func (c Configuration) TileOptions() tiles.Options {
	t := c.Tiles
	return tiles.Options{
		Capacity:    t.Capacity,
		MaxInFlight: t.MaxInFlight,
		MaxRetries:  t.MaxRetries,
		EvictAfter:  t.EvictAfter,
		BaseBackoff: t.BaseBackoff,
		MaxBackoff:  t.MaxBackoff,
	}
}

// FrameInterval is the delay between frames, zero when unlimited.
func (c Configuration) FrameInterval() time.Duration {
	if c.Time.FramesPerSecond <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Time.FramesPerSecond)
}
