package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/projection"
)

// recorder is a dispatcher that holds fetches until the test runs them.
type recorder struct {
	funcs []func()
	ran   int
}

func (r *recorder) dispatch(f func()) { r.funcs = append(r.funcs, f) }

// runAll runs every fetch not run yet.
func (r *recorder) runAll() {
	for ; r.ran < len(r.funcs); r.ran++ {
		r.funcs[r.ran]()
	}
}

type fakeFetcher struct {
	mu       sync.Mutex
	data     []byte
	errs     map[string]error
	calls    map[string]int
	canceled int
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	return &fakeFetcher{
		data:  encodePNG(t, 8, 8, color.RGBA{R: 255, A: 255}),
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if err := ctx.Err(); err != nil {
		f.canceled++
		return nil, err
	}
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return f.data, nil
}

type fakeUploader struct {
	next     int
	live     map[int]ID
	uploads  int
	releases int
}

func (u *fakeUploader) Upload(id ID, img image.Image) (int, error) {
	u.next++
	u.uploads++
	u.live[u.next] = id
	return u.next, nil
}

func (u *fakeUploader) Release(tex int) {
	u.releases++
	delete(u.live, tex)
}

// faceFrustum sees the tiles of one cube face; -1 sees everything and
// any other value nothing.
type faceFrustum struct {
	hfov  float64 // degrees
	width int
	face  int
}

func (f faceFrustum) FieldOfView() float64 { return f.hfov * math.Pi / 180 }
func (f faceFrustum) ViewportWidth() int   { return f.width }
func (f faceFrustum) Intersects(points []mgl64.Vec3) bool {
	if f.face == -1 {
		return true
	}
	var c mgl64.Vec3
	for _, p := range points {
		c = c.Add(p)
	}
	face, _, _ := projection.CubeFace(c)
	return face == f.face
}

func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func quietLogger() *log.Entry {
	l := log.New()
	l.Out = io.Discard
	return log.NewEntry(l)
}

// threeLevels has 1, 4 and 16 tiles per face.
func threeLevels() *Descriptor {
	return &Descriptor{TileResolution: 8, CubeResolution: 32, Levels: 3, Path: "{level}/{face}{y}_{x}"}
}

type harness struct {
	m   *Manager[int]
	rec *recorder
	f   *fakeFetcher
	up  *fakeUploader
	now time.Time
}

func newHarness(t *testing.T, d *Descriptor, opts Options) *harness {
	t.Helper()
	h := &harness{
		rec: &recorder{},
		f:   newFakeFetcher(t),
		up:  &fakeUploader{live: map[int]ID{}},
		now: time.Unix(1000, 0),
	}
	opts.Dispatch = h.rec.dispatch
	opts.Clock = func() time.Time { return h.now }
	opts.Logger = quietLogger()
	m, err := NewManager[int](d, h.f, h.up, opts)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h.m = m
	return h
}

// completions runs every dispatched fetch and returns the completions by
// tile ID.
func (h *harness) completions() map[ID]Completion {
	h.rec.runAll()
	out := map[ID]Completion{}
	for _, c := range h.m.Inbox().Drain(nil) {
		out[c.ID] = c
	}
	return out
}

// settle runs and applies every dispatched fetch.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	for _, c := range h.completions() {
		if err := h.m.Apply(c); err != nil {
			t.Fatalf("Apply(%v): %v", c.ID, err)
		}
	}
}

func TestNewManagerPrimesLevelZero(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{})
	if got := len(h.rec.funcs); got != projection.NumFaces {
		t.Fatalf("dispatched %v fetches, want %v", got, projection.NumFaces)
	}
	s := h.m.Stats()
	if s.Loading != 6 || s.InFlight != 6 {
		t.Errorf("Stats = %+v, want 6 loading in flight", s)
	}
	tile, ok := h.m.Tile(ID{Level: 0, Face: 3})
	if !ok || !tile.Pinned() {
		t.Errorf("level 0 tile = %+v, %v; want pinned", tile, ok)
	}
}

func TestPreviewFaces(t *testing.T) {
	d := threeLevels()
	d.FallbackPath = "fallback/{face}"
	h := newHarness(t, d, Options{MaxInFlight: 64})
	if got := len(h.rec.funcs); got != 12 {
		t.Fatalf("dispatched %v fetches, want 12", got)
	}
	h.settle(t)
	items := h.m.Update(1, faceFrustum{hfov: 90, width: 64, face: 0})
	if len(items) != 2 || items[0].ID.Level != PreviewLevel || items[1].ID.Level != 0 {
		t.Errorf("draw items = %+v, want preview then level 0", items)
	}
}

func TestRequestDeduplicates(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{})
	id := ID{Level: 2, Face: 0, X: 1, Y: 1}

	if !h.m.Request(id) {
		t.Fatal("Request reported an invalid ID")
	}
	if !h.m.Request(id) {
		t.Fatal("second Request reported an invalid ID")
	}
	if got := len(h.rec.funcs); got != 7 {
		t.Errorf("dispatched %v fetches, want 7", got)
	}
	if tile, _ := h.m.Tile(id); tile.State != Loading {
		t.Errorf("state = %v, want loading", tile.State)
	}
	if h.m.Request(ID{Level: 3, Face: 0}) {
		t.Error("Request accepted a level outside the pyramid")
	}
	h.rec.runAll()
	if got := h.f.calls["2/f1_1"]; got != 1 {
		t.Errorf("fetched %v times, want 1", got)
	}
}

func TestMaxInFlight(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{MaxInFlight: 4})
	if got := len(h.rec.funcs); got != 4 {
		t.Fatalf("dispatched %v fetches, want 4", got)
	}
	h.settle(t)
	if got := len(h.rec.funcs); got != 6 {
		t.Errorf("dispatched %v fetches after completions, want 6", got)
	}
	if s := h.m.Stats(); s.InFlight > 4 {
		t.Errorf("%v fetches in flight, want at most 4", s.InFlight)
	}
}

func TestOutOfOrderCompletions(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{MaxInFlight: 64})
	front := faceFrustum{hfov: 90, width: 64, face: projection.FaceFront}

	h.m.Update(1, front)
	if got := h.m.Level(); got != 2 {
		t.Fatalf("selected level %v, want 2", got)
	}
	done := h.completions()
	if got, want := len(done), 6+4+16; got != want {
		t.Fatalf("%v completions, want %v", got, want)
	}
	if _, ok := h.m.Coverage(projection.FaceFront, 0.1, 0.1); ok {
		t.Error("coverage before any tile is ready")
	}

	apply := func(id ID) {
		t.Helper()
		if err := h.m.Apply(done[id]); err != nil {
			t.Fatalf("Apply(%v): %v", id, err)
		}
	}
	check := func(frame uint64, u, v float64, want ID, wantOK bool) {
		t.Helper()
		h.m.Update(frame, front)
		got, ok := h.m.Coverage(projection.FaceFront, u, v)
		if ok != wantOK || got != want {
			t.Errorf("frame %v: Coverage(%v,%v) = %v, %v; want %v, %v", frame, u, v, got, ok, want, wantOK)
		}
	}

	fine := ID{Level: 2, Face: 0, X: 0, Y: 0}
	apply(fine)
	check(2, 0.1, 0.1, fine, true)
	check(2, 0.9, 0.9, ID{}, false)

	coarse := ID{Level: 0, Face: 0}
	apply(coarse)
	check(3, 0.9, 0.9, coarse, true)
	check(3, 0.1, 0.1, fine, true)

	mid := ID{Level: 1, Face: 0, X: 1, Y: 1}
	apply(mid)
	check(4, 0.9, 0.9, mid, true)

	apply(ID{Level: 1, Face: 0, X: 0, Y: 0})
	check(5, 0.1, 0.1, fine, true)

	items := h.m.Update(6, front)
	for i := 1; i < len(items); i++ {
		if items[i].ID.Level < items[i-1].ID.Level {
			t.Fatalf("draw items not ordered coarse to fine: %v before %v", items[i-1].ID, items[i].ID)
		}
	}
}

func TestEvictionReleasesTextures(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{MaxInFlight: 64, EvictAfter: 2})
	h.m.Update(1, faceFrustum{hfov: 90, width: 64, face: projection.FaceFront})
	h.settle(t)
	if got := len(h.up.live); got != 26 {
		t.Fatalf("%v live textures, want 26", got)
	}

	back := faceFrustum{hfov: 90, width: 64, face: projection.FaceBack}
	for frame := uint64(2); frame <= 4; frame++ {
		h.m.Update(frame, back)
	}
	if got := len(h.up.live); got != 6 {
		t.Errorf("%v live textures after eviction, want the 6 pinned", got)
	}
	if h.up.releases != 20 {
		t.Errorf("%v releases, want 20", h.up.releases)
	}
	if _, ok := h.m.Tile(ID{Level: 2, Face: 0, X: 0, Y: 0}); ok {
		t.Error("evicted tile still cached")
	}
	if _, ok := h.m.Tile(ID{Level: 0, Face: 0}); !ok {
		t.Error("pinned tile evicted")
	}
}

func TestEvictionCancelsInFlight(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{MaxInFlight: 64, EvictAfter: 2})
	h.m.Update(1, faceFrustum{hfov: 90, width: 64, face: projection.FaceFront})
	if got := h.m.Stats().InFlight; got != 26 {
		t.Fatalf("%v in flight, want 26", got)
	}

	back := faceFrustum{hfov: 90, width: 64, face: projection.FaceBack}
	for frame := uint64(2); frame <= 4; frame++ {
		h.m.Update(frame, back)
	}
	if got := h.m.Stats().InFlight; got != 26 {
		t.Errorf("%v in flight after eviction, want 26", got)
	}

	h.settle(t)
	if h.f.canceled != 20 {
		t.Errorf("%v canceled fetches, want 20", h.f.canceled)
	}
	if h.up.uploads != 26 {
		t.Errorf("%v uploads, want 26", h.up.uploads)
	}
}

func TestReRequestAfterEvictionIsNewEntry(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{EvictAfter: 1})
	id := ID{Level: 2, Face: 0, X: 2, Y: 2}
	h.m.Request(id)
	h.rec.runAll()
	stale := h.m.Inbox().Drain(nil)

	none := faceFrustum{hfov: 90, width: 64, face: 99}
	h.m.Update(5, none)
	if _, ok := h.m.Tile(id); ok {
		t.Fatal("tile not evicted")
	}

	h.m.Request(id)
	for _, c := range stale {
		if err := h.m.Apply(c); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if tile, _ := h.m.Tile(id); tile.State != Loading {
		t.Errorf("old completion changed the new entry to %v", tile.State)
	}
	h.settle(t)
	if tile, _ := h.m.Tile(id); tile.State != Ready {
		t.Errorf("state = %v, want ready", tile.State)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{MaxRetries: 2, BaseBackoff: time.Second, MaxBackoff: time.Minute, EvictAfter: 1000})
	h.settle(t)
	id := ID{Level: 2, Face: 4, X: 0, Y: 3}
	path := "2/l3_0"
	h.f.errs[path] = errors.New("connection reset")
	none := faceFrustum{hfov: 90, width: 64, face: 99}

	h.m.Request(id)
	h.settle(t)
	tile, _ := h.m.Tile(id)
	if tile.State != Loading || tile.Attempts != 1 {
		t.Fatalf("after first failure %v attempts %v, want loading 1", tile.State, tile.Attempts)
	}

	dispatched := len(h.rec.funcs)
	h.m.Update(1, none)
	if len(h.rec.funcs) != dispatched {
		t.Fatal("retried before the backoff expired")
	}

	h.now = h.now.Add(time.Second)
	h.m.Update(2, none)
	if len(h.rec.funcs) != dispatched+1 {
		t.Fatal("no retry after the backoff expired")
	}
	h.settle(t)

	h.now = h.now.Add(time.Second)
	h.m.Update(3, none)
	if len(h.rec.funcs) != dispatched+1 {
		t.Fatal("second backoff did not double")
	}
	h.now = h.now.Add(time.Second)
	h.m.Update(4, none)
	h.settle(t)

	tile, _ = h.m.Tile(id)
	if tile.State != Failed || tile.Attempts != 3 {
		t.Fatalf("state %v attempts %v, want failed 3", tile.State, tile.Attempts)
	}
	h.now = h.now.Add(time.Hour)
	h.m.Update(5, none)
	h.m.Request(id)
	if got := h.f.calls[path]; got != 3 {
		t.Errorf("fetched %v times, want 3", got)
	}
}

func TestPermanentFailures(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{})
	h.settle(t)
	missing := ID{Level: 1, Face: 2, X: 0, Y: 0}
	h.f.errs["1/u0_0"] = fmt.Errorf("GET 1/u0_0: %w", ErrNotFound)
	garbled := ID{Level: 1, Face: 2, X: 1, Y: 0}

	h.m.Request(missing)
	h.m.Request(garbled)
	h.rec.runAll()
	for _, c := range h.m.Inbox().Drain(nil) {
		if c.ID == garbled {
			c.Image, c.Err = Decode([]byte("not an image"))
		}
		if err := h.m.Apply(c); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []ID{missing, garbled} {
		if tile, _ := h.m.Tile(id); tile.State != Failed || tile.Attempts != 1 {
			t.Errorf("%v: state %v attempts %v, want failed after 1", id, tile.State, tile.Attempts)
		}
	}
}

func TestCloseIgnoresLateCompletions(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{MaxInFlight: 64})
	h.m.Update(1, faceFrustum{hfov: 90, width: 64, face: -1})
	h.m.Close()
	h.m.Close()

	for _, c := range h.completions() {
		var stale *StaleSessionError
		if err := h.m.Apply(c); !errors.As(err, &stale) {
			t.Fatalf("Apply after Close = %v, want StaleSessionError", err)
		}
	}
	if h.up.uploads != 0 {
		t.Errorf("%v uploads after Close", h.up.uploads)
	}
	if s := h.m.Stats(); s != (Stats{}) {
		t.Errorf("Stats after Close = %+v", s)
	}
	if items := h.m.Update(2, faceFrustum{hfov: 90, width: 64, face: -1}); items != nil {
		t.Errorf("Update after Close = %v", items)
	}
}

func TestCloseReleasesTextures(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{})
	h.settle(t)
	h.m.Close()
	if len(h.up.live) != 0 {
		t.Errorf("%v textures live after Close", len(h.up.live))
	}
}

func TestForeignSession(t *testing.T) {
	h := newHarness(t, threeLevels(), Options{Session: 7})
	c := Completion{Session: 8, ID: ID{Level: 0, Face: 0}}
	var stale *StaleSessionError
	if err := h.m.Apply(c); !errors.As(err, &stale) || stale.Session != 8 {
		t.Errorf("Apply = %v, want StaleSessionError for session 8", err)
	}
}
