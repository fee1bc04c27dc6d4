package view

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const tolerance = 1e-6

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestScreenCenterIsViewDirection(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)
	c.SetOrientation(0, 0, 0, 90)

	got, ok := c.ScreenToPanorama(400, 300)
	if !ok {
		t.Fatal("ScreenToPanorama(400,300) reported outside viewport")
	}
	if !near(got.Yaw, 0) || !near(got.Pitch, 0) {
		t.Errorf("ScreenToPanorama(400,300) = %+v, want (0,0)", got)
	}
}

func TestScreenAxes(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)
	c.SetOrientation(0, 0, 0, 90)

	right, _ := c.ScreenToPanorama(800, 300)
	if !near(right.Yaw, 45) || !near(right.Pitch, 0) {
		t.Errorf("right edge = %+v, want yaw 45", right)
	}
	up, _ := c.ScreenToPanorama(400, 0)
	if up.Pitch <= 0 {
		t.Errorf("top edge pitch = %v, want > 0", up.Pitch)
	}

	c.SetOrientation(90, 0, 0, 90)
	center, _ := c.ScreenToPanorama(400, 300)
	if !near(center.Yaw, 90) {
		t.Errorf("center at yaw 90 = %+v", center)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := NewCamera(DefaultBounds(), 800, 600)

	for i := 0; i < 2000; i++ {
		c.SetOrientation(
			rng.Float64()*360-180,
			rng.Float64()*160-80,
			rng.Float64()*60-30,
			50+rng.Float64()*70,
		)
		x, y := rng.Float64()*800, rng.Float64()*600

		a, ok := c.ScreenToPanorama(x, y)
		if !ok {
			t.Fatalf("ScreenToPanorama(%v,%v) not ok for %+v", x, y, c.Orientation())
		}
		p, ok := c.PanoramaToScreen(a.Yaw, a.Pitch)
		if !ok {
			t.Fatalf("PanoramaToScreen(%+v) not ok for %+v", a, c.Orientation())
		}
		if !near(p.X, x) || !near(p.Y, y) {
			t.Fatalf("round trip (%v,%v) -> %+v -> %+v for %+v", x, y, a, p, c.Orientation())
		}
	}
}

func TestPanoramaToScreenRejectsHiddenPoints(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)
	c.SetOrientation(0, 0, 0, 90)

	if _, ok := c.PanoramaToScreen(180, 0); ok {
		t.Error("point behind the camera reported visible")
	}
	if _, ok := c.PanoramaToScreen(60, 0); ok {
		t.Error("point outside the horizontal frustum reported visible")
	}
	if _, ok := c.ScreenToPanorama(-1, 10); ok {
		t.Error("pixel outside the viewport reported valid")
	}
}

func TestSetOrientationClamps(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)

	tests := []struct {
		name                   string
		yaw, pitch, roll, hfov float64
		want                   State
	}{
		{"zoom in too far", 0, 0, 0, 10, State{HFOV: 50}},
		{"zoom out too far", 0, 0, 0, 500, State{HFOV: 120}},
		{"yaw wraps", 190, 0, 0, 90, State{Yaw: -170, HFOV: 90}},
		{"yaw 180 is -180", 180, 0, 0, 90, State{Yaw: -180, HFOV: 90}},
		{"pitch above zenith", 0, 100, 0, 90, State{Pitch: 90, HFOV: 90}},
		{"pitch below nadir", 0, -135, 0, 90, State{Pitch: -90, HFOV: 90}},
		{"roll wraps", 0, 0, 270, 90, State{Roll: -90, HFOV: 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.SetOrientation(tt.yaw, tt.pitch, tt.roll, tt.hfov)
			got := c.Orientation()
			if !near(got.Yaw, tt.want.Yaw) || !near(got.Pitch, tt.want.Pitch) ||
				!near(got.Roll, tt.want.Roll) || !near(got.HFOV, tt.want.HFOV) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetOrientationIgnoresNonFinite(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)
	c.SetOrientation(10, 20, 0, 80)
	c.SetOrientation(math.NaN(), math.Inf(1), math.NaN(), math.Inf(-1))

	got := c.Orientation()
	if !near(got.Yaw, 10) || !near(got.Pitch, 20) || !near(got.HFOV, 80) {
		t.Errorf("state changed by non-finite input: %+v", got)
	}
}

func TestPitchBoundsKeepViewEdgeInside(t *testing.T) {
	b := DefaultBounds()
	b.MaxPitch = 30
	b.MinPitch = -30
	c := NewCamera(b, 800, 600)
	c.SetOrientation(0, 45, 0, 60)

	got := c.Orientation()
	top := got.Pitch + c.VFOV(got.HFOV)/2
	if top > 30+tolerance {
		t.Errorf("view top edge at %v, want <= 30 (state %+v)", top, got)
	}
}

func TestZoomOnlyBoundsLeaveYawAndPitchFree(t *testing.T) {
	c := NewCamera(Bounds{MinHFOV: 30, MaxHFOV: 100}, 800, 600)
	want := DefaultBounds()
	want.MinHFOV, want.MaxHFOV = 30, 100
	if got := c.Bounds(); got != want {
		t.Errorf("Bounds = %+v, want %+v", got, want)
	}

	c.SetOrientation(90, 45, 0, 60)
	got := c.Orientation()
	if !near(got.Yaw, 90) || !near(got.Pitch, 45) || !near(got.HFOV, 60) {
		t.Errorf("got %+v, want yaw 90 pitch 45 hfov 60", got)
	}
	c.SetOrientation(0, 0, 0, 20)
	if got := c.Orientation(); !near(got.HFOV, 30) {
		t.Errorf("hfov = %v, want 30", got.HFOV)
	}
}

func TestYawBoundsKeepViewEdgeInside(t *testing.T) {
	b := DefaultBounds()
	b.MinYaw, b.MaxYaw = -60, 60
	c := NewCamera(b, 800, 600)
	c.SetOrientation(170, 0, 0, 90)

	got := c.Orientation()
	if got.Yaw+got.HFOV/2 > 60+tolerance || got.Yaw-got.HFOV/2 < -60-tolerance {
		t.Errorf("view edges outside yaw bounds: %+v", got)
	}
}

func TestIntersects(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)
	c.SetOrientation(0, 0, 0, 90)

	ahead := []mgl64.Vec3{{-0.1, -0.1, -1}, {0.1, -0.1, -1}, {0.1, 0.1, -1}, {-0.1, 0.1, -1}}
	if !c.Intersects(ahead) {
		t.Error("quad straight ahead not visible")
	}
	behind := []mgl64.Vec3{{-0.1, -0.1, 1}, {0.1, -0.1, 1}, {0.1, 0.1, 1}, {-0.1, 0.1, 1}}
	if c.Intersects(behind) {
		t.Error("quad behind the camera visible")
	}
	// A quad larger than the frustum with every corner outside it.
	around := []mgl64.Vec3{{-5, -5, -1}, {5, -5, -1}, {5, 5, -1}, {-5, 5, -1}}
	if !c.Intersects(around) {
		t.Error("quad enclosing the frustum not visible")
	}
}

func TestProjectionMatchesTangents(t *testing.T) {
	c := NewCamera(DefaultBounds(), 800, 600)
	c.SetOrientation(30, 10, 5, 90)

	// The projected right-edge direction lands on NDC x = 1.
	a, _ := c.ScreenToPanorama(800, 300)
	clip := c.Projection().Mul4(c.View()).Mul4x1(Direction(a.Yaw, a.Pitch).Vec4(1))
	if ndc := clip.X() / clip.W(); !near(ndc, 1) {
		t.Errorf("right edge NDC x = %v, want 1", ndc)
	}
}
