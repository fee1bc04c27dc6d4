package tiles

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by fetchers for tiles that do not exist.
	// Such tiles fail without retry.
	ErrNotFound = errors.New("tile not found")

	// ErrMalformed marks tile data that cannot be decoded.
	ErrMalformed = errors.New("malformed tile image")
)

// TileFetchError is a failed attempt to load one tile.
type TileFetchError struct {
	ID      ID
	Path    string
	Attempt int
	Err     error
}

func (e *TileFetchError) Error() string {
	return fmt.Sprintf("fetch tile %v (%v), attempt %v: %v", e.ID, e.Path, e.Attempt, e.Err)
}

func (e *TileFetchError) Unwrap() error { return e.Err }

// StaleSessionError is a completion that arrived for a session that no
// longer exists. It is dropped, never surfaced to callers.
type StaleSessionError struct {
	Session uint64
	ID      ID
}

func (e *StaleSessionError) Error() string {
	return fmt.Sprintf("stale completion of tile %v for session %v", e.ID, e.Session)
}

func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed)
}
