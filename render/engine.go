// Package render binds panorama sources to graphics contexts and draws
// them every frame.
//
// An Engine owns any number of independent sessions. All Engine methods
// must be called from one render loop goroutine; tile fetches run
// elsewhere and hand their results back through the engine's inbox,
// which RenderFrame and Poll drain on the loop.
package render

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/tiles"
	"github.com/gmlewis/panoview/view"
)

// Default viewport of new sessions.
const (
	DefaultWidth  = 1024
	DefaultHeight = 768
)

// Engine is the renderer.
type Engine struct {
	factory    Factory
	log        *log.Entry
	tileOpts   tiles.Options
	dispatch   func(func())
	width      int
	height     int
	bounds     view.Bounds
	background mgl32.Vec4

	inbox    *tiles.Inbox
	drained  []tiles.Completion
	sessions map[SessionHandle]*Session
	last     SessionHandle
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *log.Entry) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTileOptions sets the tile manager options of multires sessions.
// Session, Inbox and Logger are always set by the engine.
func WithTileOptions(o tiles.Options) Option {
	return func(e *Engine) { e.tileOpts = o }
}

// WithDispatcher runs tile fetches through dispatch instead of one
// goroutine per fetch.
func WithDispatcher(dispatch func(func())) Option {
	return func(e *Engine) { e.dispatch = dispatch }
}

// WithViewport sets the initial viewport of new sessions.
func WithViewport(width, height int) Option {
	return func(e *Engine) {
		if width > 0 && height > 0 {
			e.width, e.height = width, height
		}
	}
}

// WithBounds sets the camera limits of new sessions. Min/Max pairs left
// at zero keep their view.DefaultBounds values.
func WithBounds(b view.Bounds) Option {
	return func(e *Engine) { e.bounds = b }
}

// WithBackground sets the color shown where the source has no data.
func WithBackground(c color.Color) Option {
	return func(e *Engine) { e.background = colorVec(c) }
}

func colorVec(c color.Color) mgl32.Vec4 {
	r, g, b, a := c.RGBA()
	return mgl32.Vec4{float32(r) / 0xffff, float32(g) / 0xffff, float32(b) / 0xffff, float32(a) / 0xffff}
}

// NewEngine returns an engine creating backends with factory.
func NewEngine(factory Factory, opts ...Option) *Engine {
	e := &Engine{
		factory:    factory,
		log:        log.NewEntry(log.StandardLogger()),
		width:      DefaultWidth,
		height:     DefaultHeight,
		bounds:     view.DefaultBounds(),
		background: mgl32.Vec4{0, 0, 0, 1},
		inbox:      tiles.NewInbox(),
		sessions:   make(map[SessionHandle]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Inbox returns the inbox tile completions are posted to. A host that
// idles between frames can wait on its Ready channel.
func (e *Engine) Inbox() *tiles.Inbox {
	return e.inbox
}

// CreateSession binds src to a new graphics context. It fails with
// *UnsupportedSourceError or *ContextCreationError.
func (e *Engine) CreateSession(src Source, initial view.State) (SessionHandle, error) {
	if e.closed {
		return 0, ErrClosed
	}
	e.last++
	h := e.last
	s, err := newSession(e, h, src, initial, e.factory())
	if err != nil {
		e.log.WithField("session", uint64(h)).WithError(err).Warn("create session")
		return 0, err
	}
	e.sessions[h] = s
	return h, nil
}

// DestroySession releases the session's resources and cancels its tile
// fetches. Completions still queued for it are dropped. Destroying an
// unknown or already destroyed handle does nothing.
func (e *Engine) DestroySession(h SessionHandle) {
	s, ok := e.sessions[h]
	if !ok {
		return
	}
	delete(e.sessions, h)
	s.destroy()
}

// Session returns a live session.
func (e *Engine) Session(h SessionHandle) (*Session, bool) {
	s, ok := e.sessions[h]
	return s, ok
}

// Sessions returns the number of live sessions.
func (e *Engine) Sessions() int {
	return len(e.sessions)
}

// SetOrientation moves the session camera, clamping to its bounds.
func (e *Engine) SetOrientation(h SessionHandle, yaw, pitch, roll, hfov float64) error {
	s, ok := e.sessions[h]
	if !ok {
		return ErrUnknownSession
	}
	s.camera.SetOrientation(yaw, pitch, roll, hfov)
	return nil
}

// Orientation returns the session's clamped camera state.
func (e *Engine) Orientation(h SessionHandle) (view.State, error) {
	s, ok := e.sessions[h]
	if !ok {
		return view.State{}, ErrUnknownSession
	}
	return s.camera.Orientation(), nil
}

// RenderFrame applies pending tile completions and draws one frame of
// the session. It never waits for tiles; tile failures only lower the
// detail drawn.
func (e *Engine) RenderFrame(h SessionHandle) error {
	e.Poll()
	s, ok := e.sessions[h]
	if !ok {
		return ErrUnknownSession
	}
	return s.render()
}

// Poll applies pending tile completions to their sessions. Completions
// of destroyed sessions are dropped.
func (e *Engine) Poll() {
	e.drained = e.inbox.Drain(e.drained)
	for i := range e.drained {
		c := &e.drained[i]
		var err error
		if s, ok := e.sessions[SessionHandle(c.Session)]; ok && s.tiles != nil {
			err = s.tiles.Apply(*c)
		} else {
			err = &tiles.StaleSessionError{Session: c.Session, ID: c.ID}
		}
		if err != nil {
			e.log.WithField("session", c.Session).Debug(err)
		}
		e.drained[i] = tiles.Completion{}
	}
}

// ScreenToPanorama returns the panorama direction under a viewport pixel.
func (e *Engine) ScreenToPanorama(h SessionHandle, x, y float64) (view.Angles, bool) {
	s, ok := e.sessions[h]
	if !ok {
		return view.Angles{}, false
	}
	return s.camera.ScreenToPanorama(x, y)
}

// PanoramaToScreen returns the viewport pixel of a panorama direction.
func (e *Engine) PanoramaToScreen(h SessionHandle, yaw, pitch float64) (view.Point, bool) {
	s, ok := e.sessions[h]
	if !ok {
		return view.Point{}, false
	}
	return s.camera.PanoramaToScreen(yaw, pitch)
}

// Resize changes the session viewport. The tile level follows on the
// next frame.
func (e *Engine) Resize(h SessionHandle, width, height int) error {
	s, ok := e.sessions[h]
	if !ok {
		return ErrUnknownSession
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	s.resize(width, height)
	return nil
}

// Close destroys every session. Close is idempotent.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	for h := range e.sessions {
		e.DestroySession(h)
	}
	e.Poll()
}
