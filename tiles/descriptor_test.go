package tiles

import (
	"math"
	"strings"
	"testing"
)

func TestSelectLevel(t *testing.T) {
	d := &Descriptor{TileResolution: 512, CubeResolution: 4096, Levels: 4, Path: "{level}/{face}{y}_{x}"}

	tests := []struct {
		hfov  float64 // degrees
		width int
		want  int
	}{
		{hfov: 90, width: 1000, want: 1},
		{hfov: 150, width: 1000, want: 0},
		{hfov: 10, width: 1000, want: 3},
		{hfov: 90, width: 0, want: 0},
	}
	for _, tt := range tests {
		if got := d.SelectLevel(tt.hfov*math.Pi/180, tt.width); got != tt.want {
			t.Errorf("SelectLevel(%v°, %v) = %v, want %v", tt.hfov, tt.width, got, tt.want)
		}
	}
}

func TestSelectLevelMonotonic(t *testing.T) {
	d := &Descriptor{TileResolution: 256, CubeResolution: 8192, Levels: 6, Path: "{level}/{face}{y}_{x}"}
	prev := 0
	for hfov := 170.0; hfov >= 5; hfov-- {
		got := d.SelectLevel(hfov*math.Pi/180, 1280)
		if got < prev {
			t.Fatalf("SelectLevel(%v°) = %v after %v at a wider view", hfov, got, prev)
		}
		prev = got
	}
	if prev != d.MaxLevel() {
		t.Errorf("narrowest view selected %v, want %v", prev, d.MaxLevel())
	}
}

func TestFaceSizeAndGrid(t *testing.T) {
	d := &Descriptor{TileResolution: 8, CubeResolution: 32, Levels: 3, Path: "{level}/{face}{y}_{x}"}
	for level, want := range []int{1, 2, 4} {
		if got := d.Grid(level); got != want {
			t.Errorf("Grid(%v) = %v, want %v", level, got, want)
		}
	}
	if got := d.FaceSize(0); got != 8 {
		t.Errorf("FaceSize(0) = %v, want 8", got)
	}
	if got := d.Tiles(2); got != 16 {
		t.Errorf("Tiles(2) = %v, want 16", got)
	}
}

func TestTilePath(t *testing.T) {
	d := &Descriptor{
		TileResolution: 512,
		CubeResolution: 2048,
		Levels:         3,
		Path:           "/tiles/{level}/{face}{y}_{x}",
		Extension:      "jpg",
		LevelBase:      1,
		FallbackPath:   "/fallback/{face}",
	}
	if got, want := d.TilePath(ID{Level: 2, Face: 0, X: 3, Y: 1}), "/tiles/3/f1_3.jpg"; got != want {
		t.Errorf("TilePath = %q, want %q", got, want)
	}
	if got, want := d.TilePath(ID{Level: PreviewLevel, Face: 5}), "/fallback/r.jpg"; got != want {
		t.Errorf("preview TilePath = %q, want %q", got, want)
	}
}

func TestTileRectPartialEdge(t *testing.T) {
	d := &Descriptor{TileResolution: 8, CubeResolution: 20, Levels: 1, Path: "{face}{y}_{x}"}
	if g := d.Grid(0); g != 3 {
		t.Fatalf("Grid(0) = %v, want 3", g)
	}
	r := d.TileRect(ID{Level: 0, Face: 2, X: 2, Y: 2})
	if math.Abs(r.U0-0.8) > 1e-12 || r.U1 != 1 || math.Abs(r.V0-0.8) > 1e-12 || r.V1 != 1 {
		t.Errorf("TileRect = %+v, want [0.8,1]x[0.8,1]", r)
	}
	if !d.Valid(ID{Level: 0, Face: 2, X: 2, Y: 2}) || d.Valid(ID{Level: 0, Face: 2, X: 3, Y: 0}) {
		t.Error("Valid disagrees with Grid")
	}
	if d.Valid(ID{Level: PreviewLevel, Face: 0}) {
		t.Error("preview valid without a fallback path")
	}
}

func TestParseDescriptor(t *testing.T) {
	const src = `{"tileResolution": 512, "cubeResolution": 2048, "levels": 3,
		"path": "/{level}/{face}{y}_{x}", "extension": "png"}`
	d, err := ParseDescriptor(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if d.TileResolution != 512 || d.CubeResolution != 2048 || d.Levels != 3 || d.Extension != "png" {
		t.Errorf("ParseDescriptor = %+v", d)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
	}{
		{"no tile size", Descriptor{CubeResolution: 8, Levels: 1, Path: "{face}{x}{y}"}},
		{"no cube size", Descriptor{TileResolution: 8, Levels: 1, Path: "{face}{x}{y}"}},
		{"no levels", Descriptor{TileResolution: 8, CubeResolution: 8, Path: "{face}{x}{y}"}},
		{"no face", Descriptor{TileResolution: 8, CubeResolution: 8, Levels: 1, Path: "{x}{y}"}},
		{"no level", Descriptor{TileResolution: 8, CubeResolution: 16, Levels: 2, Path: "{face}{x}{y}"}},
		{"no x", Descriptor{TileResolution: 8, CubeResolution: 8, Levels: 1, Path: "{face}{y}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.d.Validate(); err == nil {
				t.Errorf("Validate(%+v) = nil, want error", tt.d)
			}
		})
	}
}
