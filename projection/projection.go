// Package projection selects, for each kind of panorama source, the
// geometry and the shader pair that map that geometry onto the source's
// pixel layout.
package projection

import (
	"fmt"
	"image"
)

// Kind is the closed set of panorama source layouts.
type Kind int

const (
	Equirectangular Kind = iota
	Cube
	Multires
	Flat
)

func (k Kind) String() string {
	switch k {
	case Equirectangular:
		return "equirectangular"
	case Cube:
		return "cube"
	case Multires:
		return "multires"
	case Flat:
		return "flat"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Caps describes what the graphics context can do.
type Caps struct {
	MaxTextureSize int
}

// Wrap is a texture addressing mode.
type Wrap int

const (
	ClampToEdge Wrap = iota
	Repeat
)

// TextureOptions is how textures of a projection are sampled.
type TextureOptions struct {
	WrapU Wrap
}

// ShaderSource is one program in both supported shading languages.
type ShaderSource struct {
	Vertex   string // GLSL 330 core
	Fragment string // GLSL 330 core
	WGSL     string // vs_main and fs_main entry points
}

// Strategy is the per-kind contract.
type Strategy interface {
	Kind() Kind
	// Mesh returns the geometry drawn for the projection.
	Mesh() *Mesh
	Shaders() ShaderSource
	TextureOptions() TextureOptions
	// Check reports, as an *UnsupportedSourceError, source textures of
	// the given sizes that the context cannot hold.
	Check(caps Caps, sizes []image.Point) error
}

// For returns the strategy of a kind.
func For(k Kind) (Strategy, error) {
	switch k {
	case Equirectangular:
		return equirectangular{}, nil
	case Cube:
		return cube{}, nil
	case Multires:
		return multires{}, nil
	case Flat:
		return flat{}, nil
	}
	return nil, &UnsupportedSourceError{Kind: k, Reason: "unknown projection"}
}

// UnsupportedSourceError reports a source the graphics context cannot
// display.
type UnsupportedSourceError struct {
	Kind   Kind
	Reason string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported %v source: %v", e.Kind, e.Reason)
}

func checkSize(k Kind, caps Caps, what string, p image.Point) error {
	if p.X <= 0 || p.Y <= 0 {
		return &UnsupportedSourceError{Kind: k, Reason: fmt.Sprintf("%v is empty", what)}
	}
	if caps.MaxTextureSize > 0 && (p.X > caps.MaxTextureSize || p.Y > caps.MaxTextureSize) {
		return &UnsupportedSourceError{
			Kind:   k,
			Reason: fmt.Sprintf("%v is %vx%v, texture limit is %v", what, p.X, p.Y, caps.MaxTextureSize),
		}
	}
	return nil
}

type equirectangular struct{}

func (equirectangular) Kind() Kind                     { return Equirectangular }
func (equirectangular) Mesh() *Mesh                    { return SphereMesh(sphereStacks, sphereSlices) }
func (equirectangular) Shaders() ShaderSource          { return equirectShaders }
func (equirectangular) TextureOptions() TextureOptions { return TextureOptions{WrapU: Repeat} }

func (equirectangular) Check(caps Caps, sizes []image.Point) error {
	if len(sizes) != 1 {
		return &UnsupportedSourceError{Kind: Equirectangular, Reason: fmt.Sprintf("want 1 image, got %v", len(sizes))}
	}
	return checkSize(Equirectangular, caps, "image", sizes[0])
}

type cube struct{}

func (cube) Kind() Kind                     { return Cube }
func (cube) Mesh() *Mesh                    { return SphereMesh(sphereStacks, sphereSlices) }
func (cube) Shaders() ShaderSource          { return cubeShaders }
func (cube) TextureOptions() TextureOptions { return TextureOptions{WrapU: ClampToEdge} }

func (cube) Check(caps Caps, sizes []image.Point) error {
	if len(sizes) != NumFaces {
		return &UnsupportedSourceError{Kind: Cube, Reason: fmt.Sprintf("want %v faces, got %v", NumFaces, len(sizes))}
	}
	for i, p := range sizes {
		what := fmt.Sprintf("face %v", FaceNames[i])
		if err := checkSize(Cube, caps, what, p); err != nil {
			return err
		}
		if p.X != p.Y {
			return &UnsupportedSourceError{Kind: Cube, Reason: fmt.Sprintf("%v is %vx%v, not square", what, p.X, p.Y)}
		}
		if p != sizes[0] {
			return &UnsupportedSourceError{Kind: Cube, Reason: fmt.Sprintf("%v size %v differs from %v", what, p, sizes[0])}
		}
	}
	return nil
}

type multires struct{}

func (multires) Kind() Kind                     { return Multires }
func (multires) Mesh() *Mesh                    { return TileQuadMesh() }
func (multires) Shaders() ShaderSource          { return tileShaders }
func (multires) TextureOptions() TextureOptions { return TextureOptions{WrapU: ClampToEdge} }

// Check takes the tile size. Preview faces are sized only once fetched,
// so one too large for caps fails its upload and is marked failed.
func (multires) Check(caps Caps, sizes []image.Point) error {
	if len(sizes) == 0 {
		return &UnsupportedSourceError{Kind: Multires, Reason: "no tile size"}
	}
	for _, p := range sizes {
		if err := checkSize(Multires, caps, "tile", p); err != nil {
			return err
		}
	}
	return nil
}

type flat struct{}

func (flat) Kind() Kind                     { return Flat }
func (flat) Mesh() *Mesh                    { return QuadMesh() }
func (flat) Shaders() ShaderSource          { return flatShaders }
func (flat) TextureOptions() TextureOptions { return TextureOptions{WrapU: ClampToEdge} }

func (flat) Check(caps Caps, sizes []image.Point) error {
	if len(sizes) != 1 {
		return &UnsupportedSourceError{Kind: Flat, Reason: fmt.Sprintf("want 1 image, got %v", len(sizes))}
	}
	return checkSize(Flat, caps, "image", sizes[0])
}
