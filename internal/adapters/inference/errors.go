package inference

import "errors"

// Sentinel kinds for inference errors.
var (
	// ErrUnavailable means the backend could not be reached or failed
	// server-side. Fatal at startup, a skipped cycle afterwards.
	ErrUnavailable = errors.New("inference backend unavailable")
	// ErrBadResponse means the backend answered with something unusable.
	ErrBadResponse = errors.New("inference backend bad response")
)
