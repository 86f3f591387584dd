//go:build linux

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// V4L2 fourcc codes.
const (
	formatMJPEG webcam.PixelFormat = 0x47504A4D // MJPG
	formatYUYV  webcam.PixelFormat = 0x56595559 // YUYV
)

const frameWaitSeconds = 1

// Webcam reads frames from a V4L2 device, preferring MJPEG and falling back
// to YUYV.
type Webcam struct {
	device string
	width  uint32
	height uint32

	cam    *webcam.Webcam
	format webcam.PixelFormat
	w, h   int
}

var _ Source = (*Webcam)(nil)

// NewWebcam creates a source for device requesting width x height.
func NewWebcam(device string, width, height int) *Webcam {
	return &Webcam{device: device, width: uint32(max(width, 0)), height: uint32(max(height, 0))}
}

// Name implements Source.
func (c *Webcam) Name() string {
	return "webcam:" + c.device
}

func deviceError(err error, msg string) error {
	return fmt.Errorf("%w: %w", ErrDevice, errors.Wrap(err, msg))
}

// Open opens the device, negotiates a format and starts streaming.
func (c *Webcam) Open(_ context.Context) error {
	if c.cam != nil {
		return nil
	}
	cam, err := webcam.Open(c.device)
	if err != nil {
		return deviceError(err, "can not open device "+c.device)
	}

	supported := cam.GetSupportedFormats()
	var want webcam.PixelFormat
	switch {
	case supported[formatMJPEG] != "":
		want = formatMJPEG
	case supported[formatYUYV] != "":
		want = formatYUYV
	default:
		_ = cam.Close()
		return fmt.Errorf("%w: %s supports neither MJPEG nor YUYV", ErrDevice, c.device)
	}

	got, w, h, err := cam.SetImageFormat(want, c.width, c.height)
	if err != nil {
		_ = cam.Close()
		return deviceError(err, "can not set image format")
	}
	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return deviceError(err, "can not start streaming")
	}

	c.cam, c.format, c.w, c.h = cam, got, int(w), int(h)
	return nil
}

// Read waits for the next frame and decodes it.
func (c *Webcam) Read(ctx context.Context) (image.Image, error) {
	if c.cam == nil {
		return nil, ErrClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.cam.WaitForFrame(frameWaitSeconds)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, deviceError(err, "frame wait failed")
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			return nil, deviceError(err, "read frame failed")
		}
		if len(frame) == 0 {
			continue
		}
		return c.decode(frame)
	}
}

func (c *Webcam) decode(frame []byte) (image.Image, error) {
	switch c.format {
	case formatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, deviceError(err, "decode mjpeg frame")
		}
		return img, nil
	case formatYUYV:
		return yuyvToImage(frame, c.w, c.h)
	default:
		return nil, fmt.Errorf("%w: unsupported pixel format %#x", ErrDevice, uint32(c.format))
	}
}

// Close stops streaming and releases the device.
func (c *Webcam) Close() error {
	if c.cam == nil {
		return nil
	}
	_ = c.cam.StopStreaming()
	err := c.cam.Close()
	c.cam = nil
	if err != nil {
		return deviceError(err, "close device")
	}
	return nil
}
