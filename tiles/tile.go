package tiles

import (
	"context"
	"fmt"
	"time"

	"github.com/gmlewis/panoview/projection"
)

// ID identifies a tile. At most one tile per ID is ever cached or in
// flight.
type ID struct {
	Level int
	Face  int
	X, Y  int
}

func (id ID) String() string {
	face := "?"
	if id.Face >= 0 && id.Face < projection.NumFaces {
		face = projection.FaceNames[id.Face]
	}
	if id.Level == PreviewLevel {
		return "preview/" + face
	}
	return fmt.Sprintf("%v/%v/%v_%v", id.Level, face, id.X, id.Y)
}

// State is the load state of a tile. A tile only moves forward:
// Pending, Loading, then Ready or Failed.
type State int

const (
	Pending State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Tile is a cache entry. Texture is set once the tile is Ready and never
// changes afterwards.
type Tile[T any] struct {
	ID       ID
	State    State
	Texture  T
	LastUsed uint64 // frame the tile was last part of a footprint
	Attempts int    // failed fetch attempts

	pinned   bool
	gen      uint64
	inFlight bool
	cancel   context.CancelFunc
	retryAt  time.Time
	node     *lruNode
}

// Pinned reports whether the tile is exempt from eviction.
func (t *Tile[T]) Pinned() bool {
	return t.pinned
}

// DrawItem is a Ready tile to draw this frame.
type DrawItem[T any] struct {
	ID      ID
	Rect    Rect
	Texture T
}

// Stats counts cache entries by state.
type Stats struct {
	Pending, Loading, Ready, Failed int
	InFlight                        int
}
