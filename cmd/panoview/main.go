// panoview displays a panorama in a window or renders it offscreen to a
// PNG file.
//
// Usage:
//
//	panoview [flags] <image | scene.json | pano.pvtp | URL>
//
// Settings come from the built in defaults, then the -env file, then
// PANOVIEW_* environment variables, then flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/config"
	"github.com/gmlewis/panoview/loader"
	"github.com/gmlewis/panoview/render"
	"github.com/gmlewis/panoview/render/glrender"
	"github.com/gmlewis/panoview/render/wgpurender"
	"github.com/gmlewis/panoview/view"
)

var (
	envFile  = flag.String("env", "", "Load settings from this .env `file`")
	backend  = flag.String("backend", "", "Renderer: opengl, webgpu or software")
	width    = flag.Int("width", 0, "Viewport width in pixels")
	height   = flag.Int("height", 0, "Viewport height in pixels")
	yaw      = flag.Float64("yaw", 0, "Initial yaw in degrees")
	pitch    = flag.Float64("pitch", 0, "Initial pitch in degrees")
	hfov     = flag.Float64("hfov", 0, "Initial horizontal field of view in degrees")
	snapshot = flag.String("o", "", "Render offscreen and write the frame to this PNG `file`")
	settle   = flag.Duration("settle", 10*time.Second, "With -o, how long to wait for tiles")
	verbose  = flag.Bool("v", false, "Log at debug level")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: panoview [flags] <image | scene.json | pano.pvtp | URL>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := configure()
	if err != nil {
		log.Fatal(err)
	}
	level, _ := cfg.Level()
	log.SetLevel(level)
	logger := log.WithField("app", "panoview")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	scene, err := loader.New(logger).Load(ctx, flag.Arg(0))
	if err != nil {
		log.Fatalf("load %v: %v", flag.Arg(0), err)
	}
	defer scene.Close()

	initial := scene.Initial
	if isSet("yaw") {
		initial.Yaw = *yaw
	}
	if isSet("pitch") {
		initial.Pitch = *pitch
	}
	if isSet("hfov") {
		initial.HFOV = *hfov
	}

	offscreen := *snapshot != ""
	engine, err := newEngine(cfg, logger, offscreen)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	h, err := engine.CreateSession(scene.Source, initial)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}

	if offscreen {
		if err := writeSnapshot(ctx, engine, h, *snapshot, *settle); err != nil {
			log.Fatal(err)
		}
		logger.WithField("file", *snapshot).Info("wrote snapshot")
		return
	}
	if err := run(ctx, engine, h, cfg.FrameInterval()); err != nil {
		log.Fatal(err)
	}
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func configure() (config.Configuration, error) {
	cfg := config.Default()
	var err error
	if *envFile != "" {
		if cfg, err = config.LoadFile(*envFile, cfg); err != nil {
			return cfg, err
		}
	}
	if cfg, err = config.FromEnv(cfg); err != nil {
		return cfg, err
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}
	if *width > 0 {
		cfg.Renderer.ScreenWidth = *width
	}
	if *height > 0 {
		cfg.Renderer.ScreenHeight = *height
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

// newEngine builds the engine for cfg. Offscreen engines never show a
// window.
func newEngine(cfg config.Configuration, logger *log.Entry, offscreen bool) (*render.Engine, error) {
	factory, err := backendFactory(cfg, logger, offscreen)
	if err != nil {
		return nil, err
	}
	bg, err := cfg.BackgroundColor()
	if err != nil {
		return nil, err
	}
	return render.NewEngine(factory,
		render.WithLogger(logger),
		render.WithTileOptions(cfg.TileOptions()),
		render.WithViewport(cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight),
		render.WithBounds(cfg.Bounds()),
		render.WithBackground(bg),
	), nil
}

func backendFactory(cfg config.Configuration, logger *log.Entry, offscreen bool) (render.Factory, error) {
	switch cfg.Renderer.Backend {
	case config.OpenGL:
		return glrender.Factory(glrender.Options{
			Visible: cfg.Renderer.Visible && !offscreen,
			Title:   "panoview",
			Logger:  logger,
		}), nil
	case config.WebGPU:
		if !offscreen {
			return nil, fmt.Errorf("the %v backend only renders offscreen; use -o", config.WebGPU)
		}
		return wgpurender.Factory(wgpurender.Options{Logger: logger}), nil
	case config.Software:
		if !offscreen {
			return nil, fmt.Errorf("the %v backend only renders offscreen; use -o", config.Software)
		}
		return func() render.Backend { return render.NewSoftware() }, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Renderer.Backend)
}

// snapshotter is a backend that can read back its last frame.
type snapshotter interface {
	Snapshot() (*image.RGBA, error)
}

// frame returns the last frame drawn by the session.
func frame(e *render.Engine, h render.SessionHandle) (*image.RGBA, error) {
	s, ok := e.Session(h)
	if !ok {
		return nil, render.ErrUnknownSession
	}
	switch b := s.Backend().(type) {
	case snapshotter:
		return b.Snapshot()
	case *render.Software:
		return b.Frame(), nil
	}
	return nil, fmt.Errorf("backend %T cannot read back frames", s.Backend())
}

// renderSettled renders frames until no tile is pending or in flight, or
// until timeout.
func renderSettled(ctx context.Context, e *render.Engine, h render.SessionHandle, timeout time.Duration) error {
	s, ok := e.Session(h)
	if !ok {
		return render.ErrUnknownSession
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := e.RenderFrame(h); err != nil {
			return err
		}
		m := s.Tiles()
		if m == nil {
			return nil
		}
		st := m.Stats()
		if st.InFlight == 0 && st.Pending == 0 && st.Loading == 0 {
			// One more frame draws what the last completions delivered.
			return e.RenderFrame(h)
		}
		if time.Now().After(deadline) {
			log.WithField("tiles", fmt.Sprintf("%+v", st)).Warn("tiles did not settle")
			return e.RenderFrame(h)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.Inbox().Ready():
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func writeSnapshot(ctx context.Context, e *render.Engine, h render.SessionHandle, file string, timeout time.Duration) error {
	if err := renderSettled(ctx, e, h, timeout); err != nil {
		return err
	}
	img, err := frame(e, h)
	if err != nil {
		return err
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %v: %w", file, err)
	}
	return f.Close()
}

// step moves the camera by a key press.
func step(s view.State, dyaw, dpitch, dhfov float64) view.State {
	// Pan speed follows the zoom so a key press moves a similar share
	// of the view.
	scale := s.HFOV / view.DefaultHFOV
	s.Yaw += dyaw * scale
	s.Pitch += dpitch * scale
	s.HFOV += dhfov
	return s
}
