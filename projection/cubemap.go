package projection

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Cube faces, in the order tile trees and cube sources list them.
const (
	FaceFront = iota
	FaceBack
	FaceUp
	FaceDown
	FaceLeft
	FaceRight

	NumFaces = 6
)

// FaceNames are the single-letter face names used in tile paths.
var FaceNames = [NumFaces]string{"f", "b", "u", "d", "l", "r"}

// FaceDirection returns the point on the cube with half-edge 1 at face
// coordinates (s, t), both in [-1, 1], s to the right and t up as seen
// from the center.
func FaceDirection(face int, s, t float64) mgl64.Vec3 {
	switch face {
	case FaceFront:
		return mgl64.Vec3{s, t, -1}
	case FaceBack:
		return mgl64.Vec3{-s, t, 1}
	case FaceUp:
		return mgl64.Vec3{s, 1, t}
	case FaceDown:
		return mgl64.Vec3{s, -1, -t}
	case FaceLeft:
		return mgl64.Vec3{-1, t, -s}
	default:
		return mgl64.Vec3{1, t, s}
	}
}

// CubeFace selects the face a direction hits by its dominant axis and
// returns the face coordinates of the hit. It is the inverse of
// FaceDirection. Ties go to Z, then X.
func CubeFace(dir mgl64.Vec3) (face int, s, t float64) {
	x, y, z := dir.X(), dir.Y(), dir.Z()
	ax, ay, az := math.Abs(x), math.Abs(y), math.Abs(z)
	switch {
	case az >= ax && az >= ay:
		if z < 0 {
			return FaceFront, x / -z, y / -z
		}
		return FaceBack, -x / z, y / z
	case ax >= ay:
		if x < 0 {
			return FaceLeft, z / x, y / -x
		}
		return FaceRight, z / x, y / x
	default:
		if y > 0 {
			return FaceUp, x / y, z / y
		}
		return FaceDown, x / -y, z / y
	}
}

// FaceUV converts face coordinates to image coordinates: u to the right,
// v down from the top row, both in [0, 1].
func FaceUV(s, t float64) (u, v float64) {
	return (s + 1) / 2, (1 - t) / 2
}

// AOV is the angular coverage of an equirectangular image, in radians.
type AOV struct {
	H       float64 // horizontal angle of view
	V       float64 // vertical angle of view
	VOffset float64 // pitch of the image's vertical center
}

// FullAOV covers the whole sphere.
var FullAOV = AOV{H: 2 * math.Pi, V: math.Pi}

// Full reports whether the image covers all 360 degrees horizontally.
func (a AOV) Full() bool {
	return a.H >= 2*math.Pi-1e-6
}

// EquirectUV maps a direction to equirectangular texture coordinates:
// U = atan2(x, -z)/H + 0.5 and V = (asin(y) - VOffset)/V + 0.5 with V=1 on
// the top row. U wraps across the seam of a full panorama. It reports false
// for directions outside a partial panorama.
func EquirectUV(dir mgl64.Vec3, aov AOV) (u, v float64, ok bool) {
	d := dir.Normalize()
	u = math.Atan2(d.X(), -d.Z())/aov.H + 0.5
	v = (math.Asin(mgl64.Clamp(d.Y(), -1, 1))-aov.VOffset)/aov.V + 0.5
	if v < 0 || v > 1 {
		return u, v, false
	}
	if aov.Full() {
		return u - math.Floor(u), v, true
	}
	if u < 0 || u > 1 {
		return u, v, false
	}
	return u, v, true
}
