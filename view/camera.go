package view

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is the view state of one render session.
type Camera struct {
	state  State
	bounds Bounds
	width  int
	height int
	near   float64
	far    float64
}

// NewCamera returns a camera looking at yaw=0, pitch=0 with the default
// field of view clamped to b.
func NewCamera(b Bounds, width, height int) *Camera {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	c := &Camera{
		bounds: b.sanitize(),
		width:  width,
		height: height,
		near:   DefaultNear,
		far:    DefaultFar,
	}
	c.state = c.clamp(State{HFOV: DefaultHFOV})
	return c
}

// SetOrientation moves the camera, clamping every component to the
// camera bounds. Non-finite components leave the current value in place.
func (c *Camera) SetOrientation(yaw, pitch, roll, hfov float64) {
	s := c.state
	if finite(yaw) {
		s.Yaw = yaw
	}
	if finite(pitch) {
		s.Pitch = pitch
	}
	if finite(roll) {
		s.Roll = roll
	}
	if finite(hfov) {
		s.HFOV = hfov
	}
	c.state = c.clamp(s)
}

// SetState is SetOrientation taking a State.
func (c *Camera) SetState(s State) {
	c.SetOrientation(s.Yaw, s.Pitch, s.Roll, s.HFOV)
}

// Orientation returns the current, already clamped, state.
func (c *Camera) Orientation() State {
	return c.state
}

// Bounds returns the limits the camera is clamped to.
func (c *Camera) Bounds() Bounds {
	return c.bounds
}

// SetBounds replaces the limits and re-clamps the current state.
func (c *Camera) SetBounds(b Bounds) {
	c.bounds = b.sanitize()
	c.state = c.clamp(c.state)
}

// Resize changes the viewport. Non-positive sizes are ignored.
func (c *Camera) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.width, c.height = width, height
	// The vertical field of view depends on the aspect ratio.
	c.state = c.clamp(c.state)
}

// Viewport returns the viewport size in pixels.
func (c *Camera) Viewport() (width, height int) {
	return c.width, c.height
}

// Aspect is width over height.
func (c *Camera) Aspect() float64 {
	return float64(c.width) / float64(c.height)
}

// VFOV returns the vertical field of view in degrees for hfov degrees.
func (c *Camera) VFOV(hfov float64) float64 {
	h := mgl64.DegToRad(hfov)
	return mgl64.RadToDeg(2 * math.Atan(math.Tan(h/2)/c.Aspect()))
}

func (c *Camera) hfovFor(vfov float64) float64 {
	v := mgl64.DegToRad(vfov)
	return mgl64.RadToDeg(2 * math.Atan(math.Tan(v/2)*c.Aspect()))
}

func (c *Camera) clamp(s State) State {
	b := c.bounds

	s.HFOV = mgl64.Clamp(s.HFOV, b.MinHFOV, b.MaxHFOV)
	if b.yawBounded() {
		s.HFOV = math.Min(s.HFOV, b.MaxYaw-b.MinYaw)
	}
	if r := b.MaxPitch - b.MinPitch; r < 180 && c.VFOV(s.HFOV) > r {
		s.HFOV = c.hfovFor(r)
	}

	s.Yaw = NormalizeDegrees(s.Yaw)
	if b.yawBounded() {
		s.Yaw = clampRange(s.Yaw, b.MinYaw+s.HFOV/2, b.MaxYaw-s.HFOV/2)
	}

	half := c.VFOV(s.HFOV) / 2
	lo, hi := -90.0, 90.0
	if b.MinPitch > -90 {
		lo = b.MinPitch + half
	}
	if b.MaxPitch < 90 {
		hi = b.MaxPitch - half
	}
	s.Pitch = clampRange(s.Pitch, lo, hi)

	s.Roll = NormalizeDegrees(s.Roll)
	return s
}

// clampRange clamps v to [lo, hi], or returns the midpoint when the range
// is empty.
func clampRange(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return mgl64.Clamp(v, lo, hi)
}

// Rotation returns the camera-to-world rotation: yaw about world up,
// then pitch about the camera right axis, then roll about the camera
// forward axis.
func (c *Camera) Rotation() mgl64.Mat3 {
	yaw := mgl64.DegToRad(c.state.Yaw)
	pitch := mgl64.DegToRad(c.state.Pitch)
	roll := mgl64.DegToRad(c.state.Roll)
	return mgl64.Rotate3DY(-yaw).Mul3(mgl64.Rotate3DX(pitch)).Mul3(mgl64.Rotate3DZ(roll))
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl64.Mat4 {
	return c.Rotation().Transpose().Mat4()
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl64.Mat4 {
	vfov := mgl64.DegToRad(c.VFOV(c.state.HFOV))
	return mgl64.Perspective(vfov, c.Aspect(), c.near, c.far)
}

// tangents returns tan(hfov/2) and tan(vfov/2).
func (c *Camera) tangents() (tx, ty float64) {
	tx = math.Tan(mgl64.DegToRad(c.state.HFOV) / 2)
	return tx, tx / c.Aspect()
}

// ScreenToPanorama returns the panorama direction under viewport pixel
// (x, y). It reports false for points outside the viewport.
func (c *Camera) ScreenToPanorama(x, y float64) (Angles, bool) {
	w, h := float64(c.width), float64(c.height)
	if !finite(x) || !finite(y) || x < 0 || y < 0 || x > w || y > h {
		return Angles{}, false
	}
	tx, ty := c.tangents()
	nx := 2*x/w - 1
	ny := 1 - 2*y/h
	dir := c.Rotation().Mul3x1(mgl64.Vec3{nx * tx, ny * ty, -1})
	return AnglesOf(dir), true
}

// PanoramaToScreen returns the viewport pixel showing the panorama
// direction (yaw, pitch). It reports false when the direction is behind
// the camera or outside the frustum.
func (c *Camera) PanoramaToScreen(yaw, pitch float64) (Point, bool) {
	if !finite(yaw) || !finite(pitch) {
		return Point{}, false
	}
	d := c.Rotation().Transpose().Mul3x1(Direction(yaw, pitch))
	if d.Z() >= 0 {
		return Point{}, false
	}
	tx, ty := c.tangents()
	nx := d.X() / -d.Z() / tx
	ny := d.Y() / -d.Z() / ty
	if math.Abs(nx) > 1+edgeTolerance || math.Abs(ny) > 1+edgeTolerance {
		return Point{}, false
	}
	w, h := float64(c.width), float64(c.height)
	return Point{X: (nx + 1) / 2 * w, Y: (1 - ny) / 2 * h}, true
}

// FieldOfView returns the horizontal field of view in radians.
func (c *Camera) FieldOfView() float64 {
	return mgl64.DegToRad(c.state.HFOV)
}

// ViewportWidth returns the viewport width in pixels.
func (c *Camera) ViewportWidth() int {
	return c.width
}

// Intersects reports whether the convex polygon spanned by points (world
// space, seen from the origin) may overlap the view frustum. The test is
// conservative: it only reports false when every point lies outside the
// same side plane.
func (c *Camera) Intersects(points []mgl64.Vec3) bool {
	if len(points) == 0 {
		return false
	}
	tx, ty := c.tangents()
	planes := [4]mgl64.Vec3{
		{1, 0, -tx},  // left
		{-1, 0, -tx}, // right
		{0, -1, -ty}, // top
		{0, 1, -ty},  // bottom
	}
	toCamera := c.Rotation().Transpose()
	var local [8]mgl64.Vec3
	pts := local[:0]
	if len(points) > len(local) {
		pts = make([]mgl64.Vec3, 0, len(points))
	}
	for _, p := range points {
		pts = append(pts, toCamera.Mul3x1(p))
	}
	for _, n := range planes {
		inside := false
		for _, p := range pts {
			if n.Dot(p) >= 0 {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	return true
}
