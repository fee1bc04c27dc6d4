package glrender

import (
	"image"
	"image/color"
	"testing"

	"github.com/gmlewis/panoview/projection"
)

func TestFlipRows(t *testing.T) {
	for _, h := range []int{1, 2, 3, 4} {
		img := image.NewRGBA(image.Rect(0, 0, 2, h))
		for y := 0; y < h; y++ {
			img.Set(0, y, color.RGBA{uint8(y), 0, 0, 255})
			img.Set(1, y, color.RGBA{0, uint8(y), 0, 255})
		}
		flipRows(img)
		for y := 0; y < h; y++ {
			want := uint8(h - 1 - y)
			if got := img.RGBAAt(0, y).R; got != want {
				t.Errorf("h=%v: row %v R = %v, want %v", h, y, got, want)
			}
			if got := img.RGBAAt(1, y).G; got != want {
				t.Errorf("h=%v: row %v G = %v, want %v", h, y, got, want)
			}
		}
	}
}

func TestWindowSize(t *testing.T) {
	tests := []struct {
		name                 string
		width, height        int
		fbW, fbH, winW, winH int
		wantW, wantH         int
		wantResize           bool
	}{
		{"user resized on hidpi", 1600, 1200, 1600, 1200, 800, 600, 0, 0, false},
		{"user resized", 640, 480, 640, 480, 640, 480, 0, 0, false},
		{"grow on hidpi", 2000, 1000, 1600, 1200, 800, 600, 1000, 500, true},
		{"shrink", 320, 240, 640, 480, 640, 480, 320, 240, true},
		{"no window yet", 320, 240, 0, 0, 0, 0, 320, 240, true},
		{"tiny stays visible", 1, 1, 1600, 1200, 800, 600, 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, ok := windowSize(tt.width, tt.height, tt.fbW, tt.fbH, tt.winW, tt.winH)
			if ok != tt.wantResize || w != tt.wantW || h != tt.wantH {
				t.Errorf("windowSize = %v, %v, %v; want %v, %v, %v", w, h, ok, tt.wantW, tt.wantH, tt.wantResize)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	b := New(Options{})
	if b.opts.Title != "panoview" {
		t.Errorf("Title = %q, want panoview", b.opts.Title)
	}
	if b.log == nil {
		t.Fatal("nil logger")
	}
	if got := b.log.Data["backend"]; got != "opengl" {
		t.Errorf("backend field = %v", got)
	}
	if f := Factory(Options{Title: "x"}); f() == f() {
		t.Error("Factory returned the same backend twice")
	}
}

func TestUnusedBackendIsInert(t *testing.T) {
	b := New(Options{})
	if _, err := b.UploadTexture(image.NewRGBA(image.Rect(0, 0, 1, 1)), projection.TextureOptions{}); err == nil {
		t.Error("UploadTexture without Init succeeded")
	}
	if err := b.EndFrame(); err == nil {
		t.Error("EndFrame without Init succeeded")
	}
	b.Close()
}
