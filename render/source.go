package render

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gmlewis/panoview/projection"
	"github.com/gmlewis/panoview/tiles"
)

// Source is a panorama bound to a session. The set of sources is closed:
// Equirectangular, Cube, Multires and Flat.
type Source interface {
	Kind() projection.Kind
	sizes() []image.Point
}

// Equirectangular is a single longitude/latitude image. Angles are in
// degrees; a zero HAOV or VAOV means the image covers the full sphere in
// that direction.
type Equirectangular struct {
	Image   image.Image
	HAOV    float64
	VAOV    float64
	VOffset float64 // pitch of the image center
}

func (Equirectangular) Kind() projection.Kind { return projection.Equirectangular }

func (s Equirectangular) sizes() []image.Point {
	return []image.Point{imageSize(s.Image)}
}

// AOV returns the angular coverage in radians.
func (s Equirectangular) AOV() projection.AOV {
	aov := projection.FullAOV
	if s.HAOV > 0 && s.HAOV < 360 {
		aov.H = mgl64.DegToRad(s.HAOV)
	}
	if s.VAOV > 0 && s.VAOV < 180 {
		aov.V = mgl64.DegToRad(s.VAOV)
	}
	aov.VOffset = mgl64.DegToRad(s.VOffset)
	return aov
}

// Cube is six square faces in the order front, back, up, down, left,
// right.
type Cube struct {
	Faces [projection.NumFaces]image.Image
}

func (Cube) Kind() projection.Kind { return projection.Cube }

func (s Cube) sizes() []image.Point {
	out := make([]image.Point, len(s.Faces))
	for i, f := range s.Faces {
		out[i] = imageSize(f)
	}
	return out
}

// Multires is a tile pyramid streamed through Fetcher.
type Multires struct {
	Pyramid *tiles.Descriptor
	Fetcher tiles.Fetcher
}

func (Multires) Kind() projection.Kind { return projection.Multires }

// sizes holds the tile size only. Preview face sizes are not known until
// the faces are fetched.
func (s Multires) sizes() []image.Point {
	if s.Pyramid == nil {
		return nil
	}
	n := s.Pyramid.TileResolution
	return []image.Point{{n, n}}
}

// Flat is an ordinary photograph shown on a plane in front of the viewer.
// HAOV is its horizontal angle of view in degrees.
type Flat struct {
	Image image.Image
	HAOV  float64
}

func (Flat) Kind() projection.Kind { return projection.Flat }

func (s Flat) sizes() []image.Point {
	return []image.Point{imageSize(s.Image)}
}

// HalfExtent returns the half width and half height of the image plane
// at distance 1.
func (s Flat) HalfExtent() (float64, float64) {
	haov := s.HAOV
	if haov <= 0 || haov >= 180 {
		haov = 90
	}
	w := math.Tan(mgl64.DegToRad(haov) / 2)
	sz := imageSize(s.Image)
	if sz.X <= 0 {
		return w, w
	}
	return w, w * float64(sz.Y) / float64(sz.X)
}

func imageSize(img image.Image) image.Point {
	if img == nil {
		return image.Point{}
	}
	return img.Bounds().Size()
}
