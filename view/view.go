// Package view holds the virtual camera over a panorama: its orientation,
// the limits it is clamped to, the matrices built from it, and the
// conversions between screen pixels and panorama angles.
//
// All angles exchanged through this package are in degrees. The world is
// right-handed with the viewer at the origin looking down -Z, +Y up and
// +X to the right at yaw=0, pitch=0.
package view

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Clipping planes used for the perspective projection. Panorama geometry
// lies at distance 1 to sqrt(3) from the viewer.
const (
	DefaultNear = 0.1
	DefaultFar  = 100.0

	// DefaultHFOV is used when an initial state carries no field of view.
	DefaultHFOV = 100.0

	// hfovLimit keeps the perspective projection finite.
	hfovLimit = 179.0

	edgeTolerance = 1e-9
)

// State is the camera orientation.
type State struct {
	Yaw   float64 // [-180, 180)
	Pitch float64 // [-90, 90]
	Roll  float64 // [-180, 180)
	HFOV  float64 // horizontal field of view
}

// Bounds limits the camera. A yaw range narrower than 360 degrees or a
// pitch limit inside (-90, 90) keeps the view edges (not just the view
// center) inside the limit. A Min/Max pair left at zero takes its value
// from DefaultBounds, so Bounds{MinHFOV: 30, MaxHFOV: 100} limits only the
// zoom.
type Bounds struct {
	MinYaw, MaxYaw     float64
	MinPitch, MaxPitch float64
	MinHFOV, MaxHFOV   float64
}

// DefaultBounds returns unrestricted yaw and pitch with a 50..120 degree
// zoom range.
func DefaultBounds() Bounds {
	return Bounds{
		MinYaw:   -180,
		MaxYaw:   180,
		MinPitch: -90,
		MaxPitch: 90,
		MinHFOV:  50,
		MaxHFOV:  120,
	}
}

func (b Bounds) sanitize() Bounds {
	d := DefaultBounds()
	if b.MinYaw == 0 && b.MaxYaw == 0 {
		b.MinYaw, b.MaxYaw = d.MinYaw, d.MaxYaw
	}
	if b.MinPitch == 0 && b.MaxPitch == 0 {
		b.MinPitch, b.MaxPitch = d.MinPitch, d.MaxPitch
	}
	if b.MinHFOV == 0 && b.MaxHFOV == 0 {
		b.MinHFOV, b.MaxHFOV = d.MinHFOV, d.MaxHFOV
	}
	if b.MinYaw < -180 || b.MinYaw >= b.MaxYaw {
		b.MinYaw = d.MinYaw
	}
	if b.MaxYaw > 180 || b.MaxYaw <= b.MinYaw {
		b.MaxYaw = d.MaxYaw
	}
	if b.MinPitch < -90 || b.MinPitch >= b.MaxPitch {
		b.MinPitch = d.MinPitch
	}
	if b.MaxPitch > 90 || b.MaxPitch <= b.MinPitch {
		b.MaxPitch = d.MaxPitch
	}
	if b.MinHFOV <= 0 {
		b.MinHFOV = 1
	}
	if b.MaxHFOV <= 0 || b.MaxHFOV > hfovLimit {
		b.MaxHFOV = hfovLimit
	}
	if b.MinHFOV > b.MaxHFOV {
		b.MinHFOV = b.MaxHFOV
	}
	return b
}

func (b Bounds) yawBounded() bool {
	return b.MaxYaw-b.MinYaw < 360
}

// Angles is a direction on the panorama.
type Angles struct {
	Yaw, Pitch float64
}

// Point is a position in viewport pixels, origin at the top-left corner.
type Point struct {
	X, Y float64
}

// NormalizeDegrees maps a to [-180, 180).
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}

// Direction returns the unit world vector for a panorama direction.
func Direction(yaw, pitch float64) mgl64.Vec3 {
	y, p := mgl64.DegToRad(yaw), mgl64.DegToRad(pitch)
	cp := math.Cos(p)
	return mgl64.Vec3{cp * math.Sin(y), math.Sin(p), -cp * math.Cos(y)}
}

// AnglesOf returns the panorama direction of a world vector.
func AnglesOf(dir mgl64.Vec3) Angles {
	d := dir.Normalize()
	yaw := mgl64.RadToDeg(math.Atan2(d.X(), -d.Z()))
	pitch := mgl64.RadToDeg(math.Asin(mgl64.Clamp(d.Y(), -1, 1)))
	return Angles{Yaw: NormalizeDegrees(yaw), Pitch: pitch}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
