package render

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/panoview/projection"
)

// Program is a linked shader program for one projection kind.
type Program interface {
	Kind() projection.Kind
}

// Mesh is geometry resident on the graphics context.
type Mesh interface {
	IndexCount() int
}

// Texture is an image resident on the graphics context.
type Texture interface {
	Size() image.Point
}

// Uniforms are the per-draw shader inputs shared by every program.
type Uniforms struct {
	Projection mgl32.Mat4
	Camera     mgl32.Mat4
	// Rect is the face rectangle (u0, v0, u1, v1) of a multires tile.
	Rect mgl32.Vec4
	// AOV is (h, v, vOffset, 0) in radians for equirectangular sources
	// and (halfWidth, halfHeight, 0, 0) for flat ones.
	AOV        mgl32.Vec4
	Background mgl32.Vec4
	// Face is the cube face of a multires tile.
	Face int32
}

// DrawCall is one draw of a mesh with a program. Sessions reuse a single
// DrawCall across frames; backends must not retain it.
type DrawCall struct {
	Program      Program
	Mesh         Mesh
	Textures     [projection.NumFaces]Texture
	TextureCount int
	Uniforms     Uniforms
}

// Backend is a graphics context. Every method is called from the render
// loop. Allocation happens in Init, CompileProgram, UploadMesh,
// UploadTexture and Resize only.
type Backend interface {
	// Init creates the context with a viewport of width x height.
	Init(width, height int) error
	Caps() projection.Caps
	CompileProgram(kind projection.Kind, src projection.ShaderSource) (Program, error)
	UploadMesh(m *projection.Mesh) (Mesh, error)
	UploadTexture(img image.Image, opts projection.TextureOptions) (Texture, error)
	ReleaseTexture(t Texture)
	Resize(width, height int)
	// BeginFrame clears the target to background.
	BeginFrame(background mgl32.Vec4)
	Draw(dc *DrawCall)
	// EndFrame presents or finishes the frame.
	EndFrame() error
	// Close releases every resource of the context.
	Close()
}

// TextureBinder is implemented by backends that bind several textures of
// one draw as a group. Sessions call BindTextures at bind time, after the
// textures are uploaded, so Draw never allocates the group.
type TextureBinder interface {
	BindTextures(kind projection.Kind, textures []Texture) error
}

// Factory creates the backend of a new session.
type Factory func() Backend
