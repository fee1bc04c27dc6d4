package projection

import (
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// The Sample functions are the CPU counterparts of the fragment shaders.
// They use nearest-texel lookup and report false where the shader would
// show the background or draw nothing.

// Texel returns the texel of img at image coordinates (u, v), v down.
func Texel(img *image.RGBA, u, v float64, wrapU bool) color.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if wrapU {
		u -= math.Floor(u)
	}
	x := clampIndex(int(math.Floor(u*float64(w))), w)
	y := clampIndex(int(math.Floor(v*float64(h))), h)
	return img.RGBAAt(b.Min.X+x, b.Min.Y+y)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// SampleEquirect samples an equirectangular image.
func SampleEquirect(img *image.RGBA, dir mgl64.Vec3, aov AOV) (color.RGBA, bool) {
	u, v, ok := EquirectUV(dir, aov)
	if !ok {
		return color.RGBA{}, false
	}
	return Texel(img, u, 1-v, aov.Full()), true
}

// SampleCube samples six face images by dominant axis.
func SampleCube(faces *[NumFaces]*image.RGBA, dir mgl64.Vec3) (color.RGBA, bool) {
	f, s, t := CubeFace(dir)
	if faces[f] == nil {
		return color.RGBA{}, false
	}
	u, v := FaceUV(s, t)
	return Texel(faces[f], u, v, false), true
}

// SampleFlat samples an image on the z=-1 plane spanning
// [-halfWidth, halfWidth] x [-halfHeight, halfHeight].
func SampleFlat(img *image.RGBA, dir mgl64.Vec3, halfWidth, halfHeight float64) (color.RGBA, bool) {
	if dir.Z() >= 0 || halfWidth <= 0 || halfHeight <= 0 {
		return color.RGBA{}, false
	}
	x := dir.X() / -dir.Z() / halfWidth
	y := dir.Y() / -dir.Z() / halfHeight
	if x < -1 || x > 1 || y < -1 || y > 1 {
		return color.RGBA{}, false
	}
	return Texel(img, (x+1)/2, (1-y)/2, false), true
}

// SampleTile samples a multires tile covering rect (image coordinates of
// the face, v down) on the given face.
func SampleTile(img *image.RGBA, dir mgl64.Vec3, face int, u0, v0, u1, v1 float64) (color.RGBA, bool) {
	f, s, t := CubeFace(dir)
	if f != face {
		return color.RGBA{}, false
	}
	u, v := FaceUV(s, t)
	if u < u0 || u > u1 || v < v0 || v > v1 || u1 <= u0 || v1 <= v0 {
		return color.RGBA{}, false
	}
	return Texel(img, (u-u0)/(u1-u0), (v-v0)/(v1-v0), false), true
}
