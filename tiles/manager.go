package tiles

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/projection"
)

// visitedLimit bounds the footprint bookkeeping map.
const visitedLimit = 1 << 16

// Frustum is the part of the camera the manager needs.
type Frustum interface {
	// FieldOfView is the horizontal field of view in radians.
	FieldOfView() float64
	ViewportWidth() int
	// Intersects conservatively tests a convex polygon given by its
	// corners on the cube against the view frustum.
	Intersects(points []mgl64.Vec3) bool
}

// Uploader turns decoded tiles into textures and releases them.
type Uploader[T any] interface {
	Upload(id ID, img image.Image) (T, error)
	Release(tex T)
}

// Options configures a Manager.
type Options struct {
	// Session tags every completion so a completion for a destroyed
	// session can be recognised and dropped.
	Session uint64
	// Inbox receives completions. A private inbox is created when nil.
	Inbox *Inbox
	// Dispatch runs a fetch asynchronously. It defaults to a goroutine.
	Dispatch func(func())
	// Clock returns the current time for retry backoff.
	Clock func() time.Time

	// EvictAfter is how many frames an unused tile survives.
	EvictAfter uint64
	// Capacity is the number of Ready textures kept before unused tiles
	// are evicted early, oldest first.
	Capacity int
	// MaxInFlight bounds concurrent fetches.
	MaxInFlight int
	// MaxRetries is the number of retries after a transient failure.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	Logger *log.Entry
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Dispatch:    func(f func()) { go f() },
		Clock:       time.Now,
		EvictAfter:  120,
		Capacity:    256,
		MaxInFlight: 8,
		MaxRetries:  3,
		BaseBackoff: 250 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
		Logger:      log.NewEntry(log.StandardLogger()),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Dispatch == nil {
		o.Dispatch = d.Dispatch
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	if o.EvictAfter == 0 {
		o.EvictAfter = d.EvictAfter
	}
	if o.Capacity <= 0 {
		o.Capacity = d.Capacity
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = d.BaseBackoff
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = o.BaseBackoff
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Inbox == nil {
		o.Inbox = NewInbox()
	}
	return o
}

// Manager owns the tiles of one multires session. All methods must be
// called from the render loop; only the fetches run elsewhere.
type Manager[T any] struct {
	desc    *Descriptor
	fetcher Fetcher
	up      Uploader[T]
	opts    Options
	log     *log.Entry

	ctx    context.Context
	cancel context.CancelFunc

	tiles    map[ID]*Tile[T]
	lru      lruList
	queue    []ID // tiles waiting for a fetch slot
	retries  []ID // tiles waiting for their backoff to expire
	inflight int
	ready    int
	gen      uint64

	frame   uint64
	level   int
	stamp   uint64
	visited map[ID]uint64
	corners [4]mgl64.Vec3
	layers  [][]DrawItem[T] // Ready tiles by level, preview first
	draw    []DrawItem[T]

	closed bool
}

// NewManager returns a manager for the pyramid d and starts fetching its
// coarsest level.
func NewManager[T any](d *Descriptor, fetcher Fetcher, up Uploader[T], opts Options) (*Manager[T], error) {
	if d == nil {
		return nil, errors.New("tiles: nil descriptor")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || up == nil {
		return nil, errors.New("tiles: fetcher and uploader are required")
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager[T]{
		desc:    d,
		fetcher: fetcher,
		up:      up,
		opts:    opts,
		log:     opts.Logger.WithField("session", opts.Session),
		ctx:     ctx,
		cancel:  cancel,
		tiles:   make(map[ID]*Tile[T]),
		visited: make(map[ID]uint64),
		layers:  make([][]DrawItem[T], d.Levels+1),
	}
	m.prime()
	m.dispatch()
	return m, nil
}

// prime requests the preview faces and every level 0 tile. They are
// pinned so the whole sphere always has a fallback.
func (m *Manager[T]) prime() {
	g := m.desc.Grid(0)
	for face := 0; face < projection.NumFaces; face++ {
		if m.desc.FallbackPath != "" {
			m.request(ID{Level: PreviewLevel, Face: face}, true)
		}
		for y := 0; y < g; y++ {
			for x := 0; x < g; x++ {
				m.request(ID{Level: 0, Face: face, X: x, Y: y}, true)
			}
		}
	}
}

// Descriptor returns the pyramid being streamed.
func (m *Manager[T]) Descriptor() *Descriptor {
	return m.desc
}

// Inbox returns the inbox completions are posted to.
func (m *Manager[T]) Inbox() *Inbox {
	return m.opts.Inbox
}

// Level returns the level selected by the last Update.
func (m *Manager[T]) Level() int {
	return m.level
}

// Closed reports whether Close was called.
func (m *Manager[T]) Closed() bool {
	return m.closed
}

// Tile returns a snapshot of a cache entry.
func (m *Manager[T]) Tile(id ID) (Tile[T], bool) {
	t, ok := m.tiles[id]
	if !ok {
		return Tile[T]{}, false
	}
	return *t, true
}

// Stats counts cache entries by state.
func (m *Manager[T]) Stats() Stats {
	s := Stats{InFlight: m.inflight}
	for _, t := range m.tiles {
		switch t.State {
		case Pending:
			s.Pending++
		case Loading:
			s.Loading++
		case Ready:
			s.Ready++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// Request asks for a tile outside of the footprint walk. A tile already
// cached or in flight is not fetched again. It reports false for IDs
// outside the pyramid.
func (m *Manager[T]) Request(id ID) bool {
	if m.closed || !m.desc.Valid(id) {
		return false
	}
	m.touch(m.request(id, false))
	m.dispatch()
	return true
}

func (m *Manager[T]) request(id ID, pinned bool) *Tile[T] {
	if t, ok := m.tiles[id]; ok {
		return t
	}
	t := &Tile[T]{ID: id, State: Pending, LastUsed: m.frame, pinned: pinned}
	if !pinned {
		t.node = m.lru.PushFront(id)
	}
	m.tiles[id] = t
	m.queue = append(m.queue, id)
	return t
}

func (m *Manager[T]) touch(t *Tile[T]) {
	t.LastUsed = m.frame
	m.lru.MoveToFront(t.node)
}

// Update computes the footprint of the view for frame, requests missing
// tiles, evicts stale ones and returns the Ready tiles to draw ordered
// coarse to fine. Drawing them in order puts the finest available tile
// on top of every region. The returned slice is reused by the next call.
func (m *Manager[T]) Update(frame uint64, f Frustum) []DrawItem[T] {
	if m.closed {
		return nil
	}
	m.frame = frame
	m.stamp++
	m.level = m.desc.SelectLevel(f.FieldOfView(), f.ViewportWidth())
	for i := range m.layers {
		m.layers[i] = m.layers[i][:0]
	}
	if len(m.visited) > visitedLimit {
		clear(m.visited)
	}

	g := m.desc.Grid(0)
	for face := 0; face < projection.NumFaces; face++ {
		if m.desc.FallbackPath != "" {
			m.visit(ID{Level: PreviewLevel, Face: face}, f)
		}
		for y := 0; y < g; y++ {
			for x := 0; x < g; x++ {
				m.visit(ID{Level: 0, Face: face, X: x, Y: y}, f)
			}
		}
	}

	m.scheduleRetries(m.opts.Clock())
	m.dispatch()
	m.evict()

	m.draw = m.draw[:0]
	for _, layer := range m.layers {
		m.draw = append(m.draw, layer...)
	}
	return m.draw
}

func (m *Manager[T]) needed(level int) bool {
	return level == 0 || level == m.level || level == m.level-1
}

// visit walks the pyramid below id, descending only through tiles that
// intersect the frustum.
func (m *Manager[T]) visit(id ID, f Frustum) {
	if m.visited[id] == m.stamp {
		return
	}
	m.visited[id] = m.stamp

	r := m.desc.TileRect(id)
	m.corners[0] = projection.FaceDirection(id.Face, 2*r.U0-1, 1-2*r.V0)
	m.corners[1] = projection.FaceDirection(id.Face, 2*r.U1-1, 1-2*r.V0)
	m.corners[2] = projection.FaceDirection(id.Face, 2*r.U1-1, 1-2*r.V1)
	m.corners[3] = projection.FaceDirection(id.Face, 2*r.U0-1, 1-2*r.V1)
	if !f.Intersects(m.corners[:]) {
		return
	}

	t := m.tiles[id]
	if t == nil && m.needed(id.Level) {
		t = m.request(id, false)
	}
	if t != nil {
		m.touch(t)
		if t.State == Ready {
			layer := id.Level + 1
			m.layers[layer] = append(m.layers[layer], DrawItem[T]{ID: id, Rect: r, Texture: t.Texture})
		}
	}

	if id.Level == PreviewLevel || id.Level >= m.level {
		return
	}
	next := id.Level + 1
	scale := float64(m.desc.FaceSize(next)) / float64(m.desc.TileResolution)
	g := m.desc.Grid(next)
	x0, x1 := span(r.U0*scale, r.U1*scale, g)
	y0, y1 := span(r.V0*scale, r.V1*scale, g)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.visit(ID{Level: next, Face: id.Face, X: x, Y: y}, f)
		}
	}
}

// span returns the tile indices covering [lo, hi) in tile units.
func span(lo, hi float64, n int) (int, int) {
	a := int(math.Floor(lo + 1e-9))
	b := int(math.Ceil(hi-1e-9)) - 1
	a = min(max(a, 0), n-1)
	b = min(max(b, a), n-1)
	return a, b
}

func (m *Manager[T]) scheduleRetries(now time.Time) {
	n := 0
	for _, id := range m.retries {
		t, ok := m.tiles[id]
		if !ok || t.State != Loading || t.inFlight {
			continue
		}
		if now.Before(t.retryAt) {
			m.retries[n] = id
			n++
			continue
		}
		m.queue = append(m.queue, id)
	}
	m.retries = m.retries[:n]
}

// dispatch starts queued fetches, coarse levels first, while slots are
// free.
func (m *Manager[T]) dispatch() {
	if len(m.queue) == 0 || m.inflight >= m.opts.MaxInFlight {
		return
	}
	slices.SortStableFunc(m.queue, func(a, b ID) int {
		return cmp.Compare(a.Level, b.Level)
	})
	n := 0
	for _, id := range m.queue {
		t, ok := m.tiles[id]
		if !ok || t.inFlight || (t.State != Pending && t.State != Loading) {
			continue
		}
		if m.inflight >= m.opts.MaxInFlight {
			m.queue[n] = id
			n++
			continue
		}
		m.start(t)
	}
	m.queue = m.queue[:n]
}

func (m *Manager[T]) start(t *Tile[T]) {
	m.gen++
	ctx, cancel := context.WithCancel(m.ctx)
	t.State = Loading
	t.gen = m.gen
	t.inFlight = true
	t.cancel = cancel
	m.inflight++

	var (
		fetcher = m.fetcher
		inbox   = m.opts.Inbox
		path    = m.desc.TilePath(t.ID)
		c       = Completion{Session: m.opts.Session, ID: t.ID, Gen: t.gen}
	)
	m.opts.Dispatch(func() {
		data, err := fetcher.Fetch(ctx, path)
		if err == nil {
			c.Image, err = Decode(data)
		}
		c.Err = err
		inbox.Post(c)
	})
}

// Apply applies a fetch completion. Completions of evicted tiles are
// dropped; completions for another or a closed session are reported as
// *StaleSessionError and change nothing.
func (m *Manager[T]) Apply(c Completion) error {
	if m.closed || c.Session != m.opts.Session {
		return &StaleSessionError{Session: c.Session, ID: c.ID}
	}
	t, ok := m.tiles[c.ID]
	if !ok || !t.inFlight || t.gen != c.Gen {
		m.log.WithField("tile", c.ID).Debug("dropping completion of evicted tile")
		return nil
	}
	t.inFlight = false
	t.cancel()
	t.cancel = nil
	m.inflight--
	defer m.dispatch()

	if c.Err != nil {
		m.fail(t, c.Err)
		return nil
	}
	tex, err := m.up.Upload(t.ID, c.Image)
	if err != nil {
		m.markFailed(t, &TileFetchError{
			ID:      t.ID,
			Path:    m.desc.TilePath(t.ID),
			Attempt: t.Attempts + 1,
			Err:     fmt.Errorf("upload: %w", err),
		})
		return nil
	}
	t.Texture = tex
	t.State = Ready
	m.ready++
	return nil
}

func (m *Manager[T]) fail(t *Tile[T], err error) {
	t.Attempts++
	ferr := &TileFetchError{ID: t.ID, Path: m.desc.TilePath(t.ID), Attempt: t.Attempts, Err: err}
	if permanent(err) || t.Attempts > m.opts.MaxRetries {
		m.markFailed(t, ferr)
		return
	}
	delay := m.backoff(t.Attempts)
	t.retryAt = m.opts.Clock().Add(delay)
	m.retries = append(m.retries, t.ID)
	m.log.WithFields(log.Fields{"tile": t.ID, "retry_in": delay}).Debug(ferr)
}

// backoff doubles from BaseBackoff up to MaxBackoff.
func (m *Manager[T]) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return m.opts.MaxBackoff
	}
	d := m.opts.BaseBackoff << (attempt - 1)
	if d <= 0 || d > m.opts.MaxBackoff {
		return m.opts.MaxBackoff
	}
	return d
}

func (m *Manager[T]) markFailed(t *Tile[T], err error) {
	t.State = Failed
	if t.node != nil {
		m.lru.Remove(t.node)
		t.node = nil
	}
	m.log.WithField("tile", t.ID).Warn(err)
}

// evict drops tiles unused for more than EvictAfter frames and, while
// more than Capacity textures are Ready, any tile not used this frame,
// oldest first.
func (m *Manager[T]) evict() {
	for {
		id, ok := m.lru.Oldest()
		if !ok {
			return
		}
		t := m.tiles[id]
		stale := m.frame > t.LastUsed+m.opts.EvictAfter
		over := m.ready > m.opts.Capacity && t.LastUsed < m.frame
		if !stale && !over {
			return
		}
		m.remove(t)
	}
}

func (m *Manager[T]) remove(t *Tile[T]) {
	if t.inFlight {
		t.cancel()
		t.inFlight = false
		m.inflight--
	}
	if t.State == Ready {
		m.up.Release(t.Texture)
		m.ready--
	}
	m.lru.Remove(t.node)
	t.node = nil
	delete(m.tiles, t.ID)
	m.log.WithField("tile", t.ID).Debug("evicted")
}

// Coverage returns the tile drawn on top at face image coordinates
// (u, v) in the last Update.
func (m *Manager[T]) Coverage(face int, u, v float64) (ID, bool) {
	for i := len(m.draw) - 1; i >= 0; i-- {
		item := m.draw[i]
		if item.ID.Face == face && item.Rect.Contains(u, v) {
			return item.ID, true
		}
	}
	return ID{}, false
}

// Close cancels every in-flight fetch and releases every texture. Later
// completions are ignored. Close is idempotent.
func (m *Manager[T]) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.cancel()
	for _, t := range m.tiles {
		if t.State == Ready {
			m.up.Release(t.Texture)
		}
	}
	clear(m.tiles)
	m.lru.Clear()
	m.queue = nil
	m.retries = nil
	m.inflight = 0
	m.ready = 0
	m.draw = nil
	for i := range m.layers {
		m.layers[i] = nil
	}
}
