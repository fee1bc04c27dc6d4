package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/config"
	"github.com/gmlewis/panoview/render"
	"github.com/gmlewis/panoview/tiles"
	"github.com/gmlewis/panoview/view"
)

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(bytes.NewBuffer(nil))
	return log.NewEntry(l)
}

func softwareConfig() config.Configuration {
	cfg := config.Default()
	cfg.Renderer.Backend = config.Software
	cfg.Renderer.ScreenWidth = 64
	cfg.Renderer.ScreenHeight = 48
	cfg.Renderer.Background = "#0000ff"
	return cfg
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestBackendFactory(t *testing.T) {
	cfg := softwareConfig()
	if _, err := backendFactory(cfg, quietLogger(), false); err == nil {
		t.Error("interactive software backend accepted")
	}
	f, err := backendFactory(cfg, quietLogger(), true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f().(*render.Software); !ok {
		t.Errorf("factory made %T", f())
	}
	cfg.Renderer.Backend = "vulkan"
	if _, err := backendFactory(cfg, quietLogger(), true); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestWriteSnapshot(t *testing.T) {
	e, err := newEngine(softwareConfig(), quietLogger(), true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	src := render.Equirectangular{Image: solid(16, 8, color.RGBA{255, 0, 0, 255}), VAOV: 30}
	h, err := e.CreateSession(src, view.State{HFOV: 90})
	if err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "out.png")
	if err := writeSnapshot(context.Background(), e, h, file, time.Second); err != nil {
		t.Fatalf("writeSnapshot: %v", err)
	}
	f, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if sz := img.Bounds().Size(); sz != image.Pt(64, 48) {
		t.Errorf("snapshot size = %v", sz)
	}
	if r, _, b, _ := img.At(32, 24).RGBA(); r>>8 != 255 || b != 0 {
		t.Errorf("center = %v, want red", img.At(32, 24))
	}
	if _, _, b, _ := img.At(32, 0).RGBA(); b>>8 != 255 {
		t.Errorf("top = %v, want background blue", img.At(32, 0))
	}
}

func TestRenderSettledWaitsForTiles(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(8, 8, color.White)); err != nil {
		t.Fatal(err)
	}
	tile := buf.Bytes()
	fetcher := tiles.FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
		time.Sleep(time.Millisecond)
		return tile, nil
	})

	e, err := newEngine(softwareConfig(), quietLogger(), true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	d := &tiles.Descriptor{TileResolution: 8, CubeResolution: 8, Levels: 1, Path: "{face}{y}_{x}"}
	h, err := e.CreateSession(render.Multires{Pyramid: d, Fetcher: fetcher}, view.State{})
	if err != nil {
		t.Fatal(err)
	}
	if err := renderSettled(context.Background(), e, h, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	s, _ := e.Session(h)
	if st := s.Tiles().Stats(); st.Ready != 6 {
		t.Errorf("Stats after settling = %+v, want 6 ready", st)
	}
	img, err := frame(e, h)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(32, 24); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("center = %v, want white tile", c)
	}
}

func TestStep(t *testing.T) {
	s := step(view.State{Yaw: 10, HFOV: view.DefaultHFOV / 2}, 2, -2, 1.5)
	if s.Yaw != 11 || s.Pitch != -1 || s.HFOV != view.DefaultHFOV/2+1.5 {
		t.Errorf("step = %+v", s)
	}
}

func TestFrameUnknownSession(t *testing.T) {
	e := render.NewEngine(func() render.Backend { return render.NewSoftware() }, render.WithLogger(quietLogger()))
	if _, err := frame(e, 42); err != render.ErrUnknownSession {
		t.Errorf("frame = %v", err)
	}
}
