package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/draw"

	"github.com/gmlewis/panoview/projection"
)

// DefaultSoftwareTextureSize is the texture limit of a Software backend
// with no MaxTextureSize.
const DefaultSoftwareTextureSize = 8192

// Software is a CPU backend. It traces one view direction per pixel
// through the projection package's reference samplers, so it draws the
// same image the shaders do with nearest-texel filtering. It needs no
// display and is used headless and in tests.
type Software struct {
	// MaxTextureSize is reported through Caps.
	MaxTextureSize int

	frame   *image.RGBA
	dirs    []mgl64.Vec3
	dirsFor mgl32.Mat4
	fresh   bool

	live    int
	uploads int
	closed  bool
}

// NewSoftware returns an uninitialised software backend.
func NewSoftware() *Software {
	return &Software{}
}

type swProgram struct {
	kind projection.Kind
}

func (p *swProgram) Kind() projection.Kind { return p.kind }

type swMesh struct {
	indices int
}

func (m *swMesh) IndexCount() int { return m.indices }

type swTexture struct {
	img      *image.RGBA
	released bool
}

func (t *swTexture) Size() image.Point {
	if t.img == nil {
		return image.Point{}
	}
	return t.img.Bounds().Size()
}

func (s *Software) Init(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("viewport %vx%v", width, height)
	}
	s.closed = false
	s.alloc(width, height)
	return nil
}

func (s *Software) alloc(width, height int) {
	s.frame = image.NewRGBA(image.Rect(0, 0, width, height))
	s.dirs = make([]mgl64.Vec3, width*height)
	s.fresh = false
}

func (s *Software) Caps() projection.Caps {
	n := s.MaxTextureSize
	if n <= 0 {
		n = DefaultSoftwareTextureSize
	}
	return projection.Caps{MaxTextureSize: n}
}

func (s *Software) CompileProgram(kind projection.Kind, src projection.ShaderSource) (Program, error) {
	if src.Vertex == "" || src.Fragment == "" {
		return nil, errors.New("empty shader source")
	}
	return &swProgram{kind: kind}, nil
}

func (s *Software) UploadMesh(m *projection.Mesh) (Mesh, error) {
	if m == nil || len(m.Indices) == 0 {
		return nil, errors.New("empty mesh")
	}
	return &swMesh{indices: len(m.Indices)}, nil
}

func (s *Software) UploadTexture(img image.Image, _ projection.TextureOptions) (Texture, error) {
	if s.closed {
		return nil, errors.New("backend closed")
	}
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	if limit := s.Caps().MaxTextureSize; b.Dx() > limit || b.Dy() > limit {
		return nil, fmt.Errorf("texture %vx%v exceeds %v", b.Dx(), b.Dy(), limit)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	s.live++
	s.uploads++
	return &swTexture{img: rgba}, nil
}

func (s *Software) ReleaseTexture(t Texture) {
	tex, ok := t.(*swTexture)
	if !ok || tex.released {
		return
	}
	tex.released = true
	tex.img = nil
	s.live--
}

func (s *Software) Resize(width, height int) {
	if width <= 0 || height <= 0 || s.frame == nil {
		return
	}
	if sz := s.frame.Bounds().Size(); sz.X == width && sz.Y == height {
		return
	}
	s.alloc(width, height)
}

func (s *Software) BeginFrame(background mgl32.Vec4) {
	if s.frame == nil {
		return
	}
	c := rgba8(background)
	pix := s.frame.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
}

func rgba8(v mgl32.Vec4) color.RGBA {
	q := func(f float32) uint8 {
		return uint8(mgl32.Clamp(f, 0, 1)*255 + 0.5)
	}
	return color.RGBA{q(v[0]), q(v[1]), q(v[2]), q(v[3])}
}

// Draw shades every pixel the draw covers.
func (s *Software) Draw(dc *DrawCall) {
	if dc == nil || dc.Program == nil || s.frame == nil {
		return
	}
	u := &dc.Uniforms
	if m := u.Projection.Mul4(u.Camera); !s.fresh || m != s.dirsFor {
		s.computeDirs(m)
	}

	var tex [projection.NumFaces]*image.RGBA
	for i := 0; i < dc.TextureCount && i < len(tex); i++ {
		if t, ok := dc.Textures[i].(*swTexture); ok && !t.released {
			tex[i] = t.img
		}
	}

	kind := dc.Program.Kind()
	if kind != projection.Cube && tex[0] == nil {
		return
	}
	aov := projection.AOV{H: float64(u.AOV[0]), V: float64(u.AOV[1]), VOffset: float64(u.AOV[2])}
	rect := [4]float64{float64(u.Rect[0]), float64(u.Rect[1]), float64(u.Rect[2]), float64(u.Rect[3])}
	face := int(u.Face)

	pix := s.frame.Pix
	for i, d := range s.dirs {
		var (
			c  color.RGBA
			ok bool
		)
		switch kind {
		case projection.Equirectangular:
			c, ok = projection.SampleEquirect(tex[0], d, aov)
		case projection.Cube:
			c, ok = projection.SampleCube(&tex, d)
		case projection.Multires:
			c, ok = projection.SampleTile(tex[0], d, face, rect[0], rect[1], rect[2], rect[3])
		case projection.Flat:
			c, ok = projection.SampleFlat(tex[0], d, aov.H, aov.V)
		}
		if ok {
			pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3] = c.R, c.G, c.B, c.A
		}
	}
}

// computeDirs unprojects every pixel center onto the far plane of m.
func (s *Software) computeDirs(m mgl32.Mat4) {
	var m64 mgl64.Mat4
	for i, v := range m {
		m64[i] = float64(v)
	}
	inv := m64.Inv()
	b := s.frame.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		ny := 1 - (float64(y)+0.5)/float64(h)*2
		for x := 0; x < w; x++ {
			nx := (float64(x)+0.5)/float64(w)*2 - 1
			p := inv.Mul4x1(mgl64.Vec4{nx, ny, 1, 1})
			s.dirs[y*w+x] = p.Vec3().Mul(1 / p.W())
		}
	}
	s.dirsFor = m
	s.fresh = true
}

func (s *Software) EndFrame() error {
	if s.closed {
		return errors.New("backend closed")
	}
	return nil
}

func (s *Software) Close() {
	s.closed = true
	s.frame = nil
	s.dirs = nil
	s.fresh = false
}

// Frame returns the last drawn frame. It is overwritten by the next one.
func (s *Software) Frame() *image.RGBA {
	return s.frame
}

// LiveTextures returns the number of textures not yet released.
func (s *Software) LiveTextures() int { return s.live }

// Uploads returns the number of textures ever uploaded.
func (s *Software) Uploads() int { return s.uploads }

// Closed reports whether Close was called.
func (s *Software) Closed() bool { return s.closed }
