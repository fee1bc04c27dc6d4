// Package glrender is an OpenGL 4.1 core backend drawing into a GLFW
// window. The window is hidden unless Options.Visible is set, so the
// backend also serves offscreen rendering with Snapshot.
package glrender

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/gmlewis/panoview/projection"
	"github.com/gmlewis/panoview/render"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

// Attribute locations shared by every program and mesh.
const (
	vertAttrib     = 0
	texCoordAttrib = 1
)

// glfw is initialised once for all backends of the process.
var (
	glfwMu    sync.Mutex
	glfwUsers int
)

func acquireGLFW() error {
	glfwMu.Lock()
	defer glfwMu.Unlock()
	if glfwUsers == 0 {
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("glfw.Init: %v", err)
		}
	}
	glfwUsers++
	return nil
}

func releaseGLFW() {
	glfwMu.Lock()
	defer glfwMu.Unlock()
	glfwUsers--
	if glfwUsers == 0 {
		glfw.Terminate()
	}
}

// Options configures a Backend.
type Options struct {
	Visible bool
	Title   string
	Logger  *log.Entry
}

// Backend is a render.Backend on OpenGL.
type Backend struct {
	opts   Options
	log    *log.Entry
	window *glfw.Window
	caps   projection.Caps

	programs []*program
	meshes   []*mesh
	textures map[*texture]struct{}
	bound    *program
}

var _ render.Backend = (*Backend)(nil)

// New returns an uninitialised backend.
func New(opts Options) *Backend {
	if opts.Title == "" {
		opts.Title = "panoview"
	}
	l := opts.Logger
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Backend{opts: opts, log: l.WithField("backend", "opengl"), textures: map[*texture]struct{}{}}
}

// Factory returns a render.Factory creating backends with opts.
func Factory(opts Options) render.Factory {
	return func() render.Backend { return New(opts) }
}

type program struct {
	kind       projection.Kind
	id         uint32
	projection int32
	camera     int32
	rect       int32
	aov        int32
	background int32
	face       int32
}

func (p *program) Kind() projection.Kind { return p.kind }

type mesh struct {
	vao, vbo, ebo uint32
	count         int32
}

func (m *mesh) IndexCount() int { return int(m.count) }

type texture struct {
	id   uint32
	size image.Point
}

func (t *texture) Size() image.Point { return t.size }

func (b *Backend) Init(width, height int) error {
	if err := acquireGLFW(); err != nil {
		return err
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	if b.opts.Visible {
		glfw.WindowHint(glfw.Visible, glfw.True)
	} else {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}
	window, err := glfw.CreateWindow(width, height, b.opts.Title, nil, nil)
	if err != nil {
		releaseGLFW()
		return fmt.Errorf("CreateWindow(%v,%v): %v", width, height, err)
	}
	b.window = window
	b.window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		b.window.Destroy()
		b.window = nil
		releaseGLFW()
		return fmt.Errorf("gl.Init: %v", err)
	}

	var maxSize int32
	gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &maxSize)
	b.caps = projection.Caps{MaxTextureSize: int(maxSize)}

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)

	b.log.WithFields(log.Fields{
		"version":          gl.GoStr(gl.GetString(gl.VERSION)),
		"max_texture_size": maxSize,
	}).Info("OpenGL context created")
	return nil
}

// Window returns the GLFW window for input handling by the host.
func (b *Backend) Window() *glfw.Window {
	return b.window
}

func (b *Backend) Caps() projection.Caps {
	return b.caps
}

func (b *Backend) current() bool {
	if b.window == nil {
		return false
	}
	if glfw.GetCurrentContext() != b.window {
		b.window.MakeContextCurrent()
		b.bound = nil
	}
	return true
}

func (b *Backend) CompileProgram(kind projection.Kind, src projection.ShaderSource) (render.Program, error) {
	if !b.current() {
		return nil, errors.New("no context")
	}
	id, err := newProgram(src.Vertex, src.Fragment)
	if err != nil {
		return nil, fmt.Errorf("newProgram: %v", err)
	}
	p := &program{
		kind:       kind,
		id:         id,
		projection: gl.GetUniformLocation(id, gl.Str("projection\x00")),
		camera:     gl.GetUniformLocation(id, gl.Str("camera\x00")),
		rect:       gl.GetUniformLocation(id, gl.Str("u_rect\x00")),
		aov:        gl.GetUniformLocation(id, gl.Str("u_aov\x00")),
		background: gl.GetUniformLocation(id, gl.Str("u_background\x00")),
		face:       gl.GetUniformLocation(id, gl.Str("u_face\x00")),
	}
	gl.UseProgram(id)
	for unit, name := range projection.TextureUniforms(kind) {
		gl.Uniform1i(gl.GetUniformLocation(id, gl.Str(name)), int32(unit))
	}
	b.bound = p
	b.programs = append(b.programs, p)
	return p, nil
}

func (b *Backend) UploadMesh(m *projection.Mesh) (render.Mesh, error) {
	if !b.current() {
		return nil, errors.New("no context")
	}
	if m == nil || len(m.Indices) == 0 {
		return nil, errors.New("empty mesh")
	}
	out := &mesh{count: int32(len(m.Indices))}

	gl.GenVertexArrays(1, &out.vao)
	gl.BindVertexArray(out.vao)

	gl.GenBuffers(1, &out.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, out.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(m.Vertices)*4, gl.Ptr(m.Vertices), gl.STATIC_DRAW)

	gl.GenBuffers(1, &out.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, out.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(m.Indices)*4, gl.Ptr(m.Indices), gl.STATIC_DRAW)

	stride := int32(projection.VertexStride * 4)
	gl.EnableVertexAttribArray(vertAttrib)
	gl.VertexAttribPointer(vertAttrib, 3, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(texCoordAttrib)
	gl.VertexAttribPointer(texCoordAttrib, 2, gl.FLOAT, false, stride, gl.PtrOffset(3*4))

	gl.BindVertexArray(0)
	b.meshes = append(b.meshes, out)
	return out, nil
}

func (b *Backend) UploadTexture(img image.Image, opts projection.TextureOptions) (render.Texture, error) {
	if !b.current() {
		return nil, errors.New("no context")
	}
	if img == nil {
		return nil, errors.New("nil image")
	}
	bounds := img.Bounds()
	if n := b.caps.MaxTextureSize; n > 0 && (bounds.Dx() > n || bounds.Dy() > n) {
		return nil, fmt.Errorf("texture %vx%v exceeds %v", bounds.Dx(), bounds.Dy(), n)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	t := &texture{size: bounds.Size()}
	gl.GenTextures(1, &t.id)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	wrapS := int32(gl.CLAMP_TO_EDGE)
	if opts.WrapU == projection.Repeat {
		wrapS = gl.REPEAT
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, wrapS)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	// Row 0 of the image is the top; texture coordinate v=0 samples it.
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(t.size.X), int32(t.size.Y), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))

	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteTextures(1, &t.id)
		return nil, fmt.Errorf("glTexImage2D: GL error %v", e)
	}
	b.textures[t] = struct{}{}
	return t, nil
}

func (b *Backend) ReleaseTexture(rt render.Texture) {
	t, ok := rt.(*texture)
	if !ok {
		return
	}
	if _, live := b.textures[t]; !live {
		return
	}
	delete(b.textures, t)
	if b.current() {
		gl.DeleteTextures(1, &t.id)
	}
}

// Resize sets the framebuffer to width x height pixels. A framebuffer
// already that size, as after the user resizes the window, is left alone.
func (b *Backend) Resize(width, height int) {
	if b.window == nil || width <= 0 || height <= 0 {
		return
	}
	fw, fh := b.window.GetFramebufferSize()
	ww, wh := b.window.GetSize()
	if w, h, ok := windowSize(width, height, fw, fh, ww, wh); ok {
		b.window.SetSize(w, h)
	}
}

// windowSize converts a framebuffer size in pixels to the window size in
// screen coordinates, using the current framebuffer to window ratio. It
// reports false when the framebuffer already has the requested size.
func windowSize(width, height, fbWidth, fbHeight, winWidth, winHeight int) (int, int, bool) {
	if fbWidth == width && fbHeight == height {
		return 0, 0, false
	}
	if fbWidth <= 0 || fbHeight <= 0 || winWidth <= 0 || winHeight <= 0 {
		return width, height, true
	}
	scale := func(n, win, fb int) int {
		return max(1, int(math.Round(float64(n)*float64(win)/float64(fb))))
	}
	return scale(width, winWidth, fbWidth), scale(height, winHeight, fbHeight), true
}

func (b *Backend) BeginFrame(background mgl32.Vec4) {
	if !b.current() {
		return
	}
	if e := gl.GetError(); e != gl.NO_ERROR {
		b.log.Warnf("BeginFrame, before gl.Clear: GL ERROR: %v", e)
	}
	w, h := b.window.GetFramebufferSize()
	gl.Viewport(0, 0, int32(w), int32(h))
	gl.ClearColor(background[0], background[1], background[2], background[3])
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (b *Backend) Draw(dc *render.DrawCall) {
	p, ok := dc.Program.(*program)
	if !ok {
		return
	}
	m, ok := dc.Mesh.(*mesh)
	if !ok {
		return
	}
	if b.bound != p {
		gl.UseProgram(p.id)
		b.bound = p
	}
	u := &dc.Uniforms
	gl.UniformMatrix4fv(p.projection, 1, false, &u.Projection[0])
	gl.UniformMatrix4fv(p.camera, 1, false, &u.Camera[0])
	gl.Uniform4fv(p.rect, 1, &u.Rect[0])
	gl.Uniform4fv(p.aov, 1, &u.AOV[0])
	gl.Uniform4fv(p.background, 1, &u.Background[0])
	gl.Uniform1i(p.face, u.Face)

	for i := 0; i < dc.TextureCount; i++ {
		t, ok := dc.Textures[i].(*texture)
		if !ok {
			return
		}
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, t.id)
	}

	gl.BindVertexArray(m.vao)
	gl.DrawElements(gl.TRIANGLES, m.count, gl.UNSIGNED_INT, nil)
}

func (b *Backend) EndFrame() error {
	if !b.current() {
		return errors.New("no context")
	}
	if e := gl.GetError(); e != gl.NO_ERROR {
		b.log.Warnf("EndFrame, after draw: GL ERROR: %v", e)
	}
	b.window.SwapBuffers()
	glfw.PollEvents()
	return nil
}

// Snapshot reads back the last frame, top row first.
func (b *Backend) Snapshot() (*image.RGBA, error) {
	if !b.current() {
		return nil, errors.New("no context")
	}
	width, height := b.window.GetFramebufferSize()
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	gl.ReadBuffer(gl.BACK)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&rgba.Pix[0]))
	if e := gl.GetError(); e != gl.NO_ERROR {
		return nil, fmt.Errorf("glReadPixels: GL error %v", e)
	}
	flipRows(rgba)
	return rgba, nil
}

// flipRows turns a bottom-up read back into a top-down image.
func flipRows(img *image.RGBA) {
	h := img.Rect.Dy()
	row := make([]uint8, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}

func (b *Backend) Close() {
	if b.window == nil {
		return
	}
	b.current()
	for t := range b.textures {
		gl.DeleteTextures(1, &t.id)
	}
	clear(b.textures)
	for _, m := range b.meshes {
		gl.DeleteVertexArrays(1, &m.vao)
		gl.DeleteBuffers(1, &m.vbo)
		gl.DeleteBuffers(1, &m.ebo)
	}
	b.meshes = nil
	for _, p := range b.programs {
		gl.DeleteProgram(p.id)
	}
	b.programs = nil
	b.bound = nil
	b.window.Destroy()
	b.window = nil
	releaseGLFW()
}

func newProgram(vertexShaderSource, fragmentShaderSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}

	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vertexShader)
		return 0, err
	}

	program := gl.CreateProgram()

	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.BindAttribLocation(program, vertAttrib, gl.Str("vert\x00"))
	gl.BindAttribLocation(program, texCoordAttrib, gl.Str("vertTexCoord\x00"))
	gl.BindFragDataLocation(program, 0, gl.Str("outputColor\x00"))
	gl.LinkProgram(program)

	gl.DeleteShader(vertexShader)
	gl.DeleteShader(fragmentShader)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)

		return 0, fmt.Errorf("failed to link program: %v", log)
	}

	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)

		return 0, fmt.Errorf("failed to compile %v: %v", source, log)
	}

	return shader, nil
}
