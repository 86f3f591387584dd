//go:build !linux

package capture

import (
	"context"
	"fmt"
	"image"
)

// Webcam is only available on Linux (V4L2).
type Webcam struct {
	device string
}

var _ Source = (*Webcam)(nil)

// NewWebcam creates a source that always fails to open on this platform.
func NewWebcam(device string, _, _ int) *Webcam {
	return &Webcam{device: device}
}

// Name implements Source.
func (c *Webcam) Name() string {
	return "webcam:" + c.device
}

// Open always fails: V4L2 is Linux only.
func (c *Webcam) Open(_ context.Context) error {
	return fmt.Errorf("%w: webcam capture requires linux (V4L2)", ErrDevice)
}

// Read always fails.
func (c *Webcam) Read(_ context.Context) (image.Image, error) {
	return nil, ErrClosed
}

// Close is a no-op.
func (c *Webcam) Close() error {
	return nil
}
