package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	// ErrCycleSkipped marks an analysis cycle that published nothing because
	// the detector or classifier failed as a whole.
	ErrCycleSkipped = errors.New("analysis cycle skipped")
	// ErrAlreadyStopped is returned by Shutdown on a stopped loop.
	ErrAlreadyStopped = errors.New("worker already stopped")
)
