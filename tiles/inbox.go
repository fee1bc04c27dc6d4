package tiles

import (
	"image"
	"sync"
)

// Completion is the outcome of one fetch, posted from the fetch goroutine
// and applied on the render loop.
type Completion struct {
	Session uint64
	ID      ID
	Gen     uint64
	Image   image.Image
	Err     error
}

// Inbox collects completions until the render loop drains them. Post
// never blocks.
type Inbox struct {
	mu     sync.Mutex
	items  []Completion
	notify chan struct{}
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{notify: make(chan struct{}, 1)}
}

// Post queues a completion.
func (b *Inbox) Post(c Completion) {
	b.mu.Lock()
	b.items = append(b.items, c)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Drain moves every queued completion into dst, reusing its storage, and
// returns it.
func (b *Inbox) Drain(dst []Completion) []Completion {
	dst = dst[:0]
	b.mu.Lock()
	dst = append(dst, b.items...)
	clear(b.items)
	b.items = b.items[:0]
	b.mu.Unlock()
	return dst
}

// Len returns the number of queued completions.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Ready is signalled after a Post. A host loop that idles between frames
// can wait on it.
func (b *Inbox) Ready() <-chan struct{} {
	return b.notify
}
