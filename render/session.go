package render

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/projection"
	"github.com/gmlewis/panoview/tiles"
	"github.com/gmlewis/panoview/view"
)

// SessionHandle identifies a session. Handles are never reused by an
// engine, so a handle also serves as the session identity token carried
// by tile fetch completions.
type SessionHandle uint64

// Session is one source bound to one graphics context and one camera.
type Session struct {
	handle  SessionHandle
	source  Source
	kind    projection.Kind
	camera  *view.Camera
	backend Backend
	log     *log.Entry

	texOpts  projection.TextureOptions
	textures []Texture
	tiles    *tiles.Manager[Texture]
	call     DrawCall
	frame    uint64

	destroyed bool
}

// newSession creates the context and binds src. On failure every
// resource created so far is released.
func newSession(e *Engine, h SessionHandle, src Source, initial view.State, be Backend) (*Session, error) {
	if be == nil {
		return nil, &ContextCreationError{Backend: "nil", Err: fmt.Errorf("factory returned no backend")}
	}
	if err := be.Init(e.width, e.height); err != nil {
		be.Close()
		return nil, &ContextCreationError{Backend: fmt.Sprintf("%T", be), Err: err}
	}
	if src == nil {
		be.Close()
		return nil, &UnsupportedSourceError{Kind: -1, Reason: "no source"}
	}

	s := &Session{
		handle:  h,
		source:  src,
		kind:    src.Kind(),
		camera:  view.NewCamera(e.bounds, e.width, e.height),
		backend: be,
		log:     e.log.WithFields(log.Fields{"session": uint64(h), "kind": src.Kind()}),
	}
	if initial.HFOV == 0 {
		initial.HFOV = view.DefaultHFOV
	}
	s.camera.SetState(initial)
	s.call.Uniforms.Background = e.background

	if err := s.bind(e); err != nil {
		s.destroy()
		return nil, err
	}
	s.log.Info("session created")
	return s, nil
}

func (s *Session) bind(e *Engine) error {
	strategy, err := projection.For(s.kind)
	if err != nil {
		return err
	}
	if err := strategy.Check(s.backend.Caps(), s.source.sizes()); err != nil {
		return err
	}
	s.texOpts = strategy.TextureOptions()

	prog, err := s.backend.CompileProgram(s.kind, strategy.Shaders())
	if err != nil {
		return fmt.Errorf("compile %v program: %w", s.kind, err)
	}
	mesh, err := s.backend.UploadMesh(strategy.Mesh())
	if err != nil {
		return fmt.Errorf("upload %v mesh: %w", s.kind, err)
	}
	s.call.Program = prog
	s.call.Mesh = mesh

	switch src := s.source.(type) {
	case Equirectangular:
		aov := src.AOV()
		s.call.Uniforms.AOV = mgl32.Vec4{float32(aov.H), float32(aov.V), float32(aov.VOffset), 0}
		return s.uploadStatic(src.Image)
	case Cube:
		if err := s.uploadStatic(src.Faces[:]...); err != nil {
			return err
		}
		if tb, ok := s.backend.(TextureBinder); ok {
			if err := tb.BindTextures(s.kind, s.call.Textures[:s.call.TextureCount]); err != nil {
				return fmt.Errorf("bind %v textures: %w", s.kind, err)
			}
		}
		return nil
	case Flat:
		w, h := src.HalfExtent()
		s.call.Uniforms.AOV = mgl32.Vec4{float32(w), float32(h), 0, 0}
		return s.uploadStatic(src.Image)
	case Multires:
		return s.bindTiles(e, src)
	}
	return &UnsupportedSourceError{Kind: s.kind, Reason: fmt.Sprintf("unknown source %T", s.source)}
}

func (s *Session) uploadStatic(images ...image.Image) error {
	for i, img := range images {
		tex, err := s.backend.UploadTexture(img, s.texOpts)
		if err != nil {
			return fmt.Errorf("upload %v texture %v: %w", s.kind, i, err)
		}
		s.textures = append(s.textures, tex)
		s.call.Textures[i] = tex
	}
	s.call.TextureCount = len(images)
	return nil
}

func (s *Session) bindTiles(e *Engine, src Multires) error {
	if src.Fetcher == nil {
		return &UnsupportedSourceError{Kind: projection.Multires, Reason: "no tile fetcher"}
	}
	if err := src.Pyramid.Validate(); err != nil {
		return &UnsupportedSourceError{Kind: projection.Multires, Reason: err.Error()}
	}
	opts := e.tileOpts
	opts.Session = uint64(s.handle)
	opts.Inbox = e.inbox
	if e.dispatch != nil {
		opts.Dispatch = e.dispatch
	}
	opts.Logger = s.log
	m, err := tiles.NewManager[Texture](src.Pyramid, src.Fetcher, tileUploader{s}, opts)
	if err != nil {
		return &UnsupportedSourceError{Kind: projection.Multires, Reason: err.Error()}
	}
	s.tiles = m
	s.call.TextureCount = 1
	return nil
}

// tileUploader hands decoded tiles to the session's backend.
type tileUploader struct {
	s *Session
}

func (u tileUploader) Upload(id tiles.ID, img image.Image) (Texture, error) {
	tex, err := u.s.backend.UploadTexture(img, u.s.texOpts)
	if err != nil {
		return nil, fmt.Errorf("upload tile %v: %w", id, err)
	}
	return tex, nil
}

func (u tileUploader) Release(t Texture) {
	u.s.backend.ReleaseTexture(t)
}

// render draws one frame with whatever is Ready. It changes GPU state
// only.
func (s *Session) render() error {
	s.frame++
	setMat4(&s.call.Uniforms.Projection, s.camera.Projection())
	setMat4(&s.call.Uniforms.Camera, s.camera.View())

	s.backend.BeginFrame(s.call.Uniforms.Background)
	if s.tiles == nil {
		s.backend.Draw(&s.call)
		return s.backend.EndFrame()
	}
	for _, item := range s.tiles.Update(s.frame, s.camera) {
		r := item.Rect
		s.call.Textures[0] = item.Texture
		s.call.Uniforms.Face = int32(item.ID.Face)
		s.call.Uniforms.Rect = mgl32.Vec4{float32(r.U0), float32(r.V0), float32(r.U1), float32(r.V1)}
		s.backend.Draw(&s.call)
	}
	s.call.Textures[0] = nil
	return s.backend.EndFrame()
}

func setMat4(dst *mgl32.Mat4, m mgl64.Mat4) {
	for i, v := range m {
		dst[i] = float32(v)
	}
}

func (s *Session) resize(width, height int) {
	s.camera.Resize(width, height)
	s.backend.Resize(width, height)
}

// destroy releases every resource of the session. It is idempotent.
func (s *Session) destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if s.tiles != nil {
		s.tiles.Close()
	}
	for _, t := range s.textures {
		s.backend.ReleaseTexture(t)
	}
	s.textures = nil
	s.call = DrawCall{}
	s.backend.Close()
	s.log.Debug("session destroyed")
}

// Handle returns the session's handle.
func (s *Session) Handle() SessionHandle { return s.handle }

// Kind returns the projection of the bound source.
func (s *Session) Kind() projection.Kind { return s.kind }

// Camera returns the session camera.
func (s *Session) Camera() *view.Camera { return s.camera }

// Backend returns the graphics context of the session.
func (s *Session) Backend() Backend { return s.backend }

// Tiles returns the tile manager of a multires session, or nil.
func (s *Session) Tiles() *tiles.Manager[Texture] { return s.tiles }

// Frame returns the number of frames rendered.
func (s *Session) Frame() uint64 { return s.frame }
