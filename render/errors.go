package render

import (
	"errors"
	"fmt"

	"github.com/gmlewis/panoview/projection"
)

var (
	// ErrUnknownSession is returned for handles that were never created
	// or were already destroyed.
	ErrUnknownSession = errors.New("render: unknown session")

	// ErrClosed is returned by CreateSession after Close.
	ErrClosed = errors.New("render: engine closed")
)

// UnsupportedSourceError is a source the graphics context cannot display.
// It is only returned when a session is created.
type UnsupportedSourceError = projection.UnsupportedSourceError

// ContextCreationError reports a backend that could not create a usable
// graphics context.
type ContextCreationError struct {
	Backend string
	Err     error
}

func (e *ContextCreationError) Error() string {
	return fmt.Sprintf("create %v context: %v", e.Backend, e.Err)
}

func (e *ContextCreationError) Unwrap() error { return e.Err }
