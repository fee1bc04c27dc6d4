package wgpurender

import (
	"image"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/panoview/projection"
	"github.com/gmlewis/panoview/render"
)

func TestAlignedRow(t *testing.T) {
	tests := []struct {
		width int
		want  uint32
	}{
		{1, 256},
		{64, 256},
		{65, 512},
		{800, 3328},
		{1024, 4096},
	}
	for _, tt := range tests {
		if got := alignedRow(tt.width); got != tt.want {
			t.Errorf("alignedRow(%v) = %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestUnpadRows(t *testing.T) {
	const width, height = 3, 2
	pitch := alignedRow(width)
	data := make([]byte, int(pitch)*height)
	for y := 0; y < height; y++ {
		for i := 0; i < width*4; i++ {
			data[y*int(pitch)+i] = byte(10*y + i)
		}
		data[y*int(pitch)+width*4] = 0xff // padding
	}
	img := unpadRows(data, width, height, pitch)
	if img.Stride != width*4 {
		t.Fatalf("Stride = %v", img.Stride)
	}
	for y := 0; y < height; y++ {
		for i := 0; i < width*4; i++ {
			if got, want := img.Pix[y*img.Stride+i], byte(10*y+i); got != want {
				t.Errorf("row %v byte %v = %v, want %v", y, i, got, want)
			}
		}
	}
}

func TestPackUniforms(t *testing.T) {
	u := render.Uniforms{
		Projection: mgl32.Ident4(),
		Camera:     mgl32.Translate3D(1, 2, 3),
		Rect:       mgl32.Vec4{0, 0.25, 0.5, 1},
		AOV:        mgl32.Vec4{6.28, 3.14, 0, 0},
		Background: mgl32.Vec4{0.1, 0.2, 0.3, 1},
		Face:       4,
	}
	var dst [projection.UniformFloats]float32
	for i := range dst {
		dst[i] = -1
	}
	packUniforms(&dst, &u)

	if dst[0] != 1 || dst[5] != 1 || dst[15] != 1 {
		t.Errorf("projection not packed column-major: %v", dst[0:16])
	}
	if dst[16+12] != 1 || dst[16+13] != 2 || dst[16+14] != 3 {
		t.Errorf("camera translation = %v", dst[28:31])
	}
	if dst[33] != 0.25 || dst[34] != 0.5 {
		t.Errorf("rect = %v", dst[32:36])
	}
	if dst[36] != 6.28 {
		t.Errorf("aov = %v", dst[36:40])
	}
	if dst[42] != 0.3 {
		t.Errorf("background = %v", dst[40:44])
	}
	if dst[44] != 4 || dst[45] != 0 || dst[47] != 0 {
		t.Errorf("params = %v", dst[44:48])
	}
}

func TestUniformsFitSlot(t *testing.T) {
	if projection.UniformFloats*4 > uniformSlot {
		t.Fatalf("uniform block of %v bytes exceeds slot of %v", projection.UniformFloats*4, uniformSlot)
	}
}

func TestNewDefaults(t *testing.T) {
	b := New(Options{})
	if b.opts.MaxDraws != DefaultMaxDraws {
		t.Errorf("MaxDraws = %v", b.opts.MaxDraws)
	}
	if b.Caps().MaxTextureSize != 0 {
		t.Errorf("Caps before Init = %+v", b.Caps())
	}
	if err := b.EndFrame(); err == nil {
		t.Error("EndFrame without a frame succeeded")
	}
	b.Draw(&render.DrawCall{})
	b.Close()
}

// otherTexture is a texture of some other backend.
type otherTexture struct{}

func (otherTexture) Size() image.Point { return image.Point{} }

func TestCubeKey(t *testing.T) {
	faces := make([]render.Texture, projection.NumFaces)
	for i := range faces {
		faces[i] = &texture{}
	}
	key, ok := cubeKey(faces)
	if !ok {
		t.Fatal("cubeKey rejected six textures")
	}
	for i := range key {
		if key[i] != faces[i] {
			t.Errorf("face %v out of order", i)
		}
	}
	if again, _ := cubeKey(faces); again != key {
		t.Error("same faces gave a different key")
	}

	if _, ok := cubeKey(faces[:5]); ok {
		t.Error("cubeKey accepted five textures")
	}
	foreign := append([]render.Texture(nil), faces...)
	foreign[3] = otherTexture{}
	if _, ok := cubeKey(foreign); ok {
		t.Error("cubeKey accepted a texture of another backend")
	}
}

func TestBindTexturesNeedsDevice(t *testing.T) {
	b := New(Options{})
	if err := b.BindTextures(projection.Equirectangular, nil); err != nil {
		t.Errorf("BindTextures(equirectangular) = %v", err)
	}
	if err := b.BindTextures(projection.Cube, nil); err == nil {
		t.Error("BindTextures(cube) without Init succeeded")
	}
}
