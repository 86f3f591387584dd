// Package capture provides frame sources: a V4L2 webcam and a directory of
// images replayed in a loop.
package capture

import (
	"context"
	"image"
)

// Source produces frames. Implementations are used from a single goroutine.
type Source interface {
	// Open acquires the device. Open on an open source is a no-op.
	Open(ctx context.Context) error
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (image.Image, error)
	// Close releases the device. Close on a closed source is a no-op.
	Close() error
	// Name identifies the source in logs.
	Name() string
}
