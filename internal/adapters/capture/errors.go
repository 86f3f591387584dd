package capture

import "errors"

// Sentinel kinds for capture errors.
var (
	// ErrDevice wraps every failure to open or read a capture source.
	ErrDevice = errors.New("capture device error")
	// ErrClosed is returned by Read on a source that is not open.
	ErrClosed = errors.New("capture source closed")
)
