package cecp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned by Process when no complete line is pending.
	// It is not a failure.
	ErrNoData = errors.New("cecp: no data available")
	// ErrDiscarded is returned by Process when the engine sent a line longer
	// than MaxLineLen; the line was thrown away.
	ErrDiscarded = errors.New("cecp: oversized line discarded")
	// ErrCallback is returned by Process when the callback rejected parsed data.
	ErrCallback = errors.New("cecp: callback returned an error")
	// ErrPipeClosed is returned by Process once the engine closed its output
	// and every buffered line has been consumed.
	ErrPipeClosed = errors.New("cecp: engine closed its output")

	ErrNotOpen     = errors.New("cecp: session is not open")
	ErrAlreadyOpen = errors.New("cecp: session is already open")
	ErrEmpty       = errors.New("cecp: refusing to send an empty command")
)

// IOError wraps a read failure on the engine's output stream.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("cecp: read from engine: %v", e.Err) }

func (e *IOError) Unwrap() error { return e.Err }
