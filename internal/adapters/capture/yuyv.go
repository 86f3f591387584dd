package capture

import (
	"fmt"
	"image"
)

// yuyvToImage wraps a packed YUYV 4:2:2 frame as an image.YCbCr.
func yuyvToImage(frame []byte, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 || len(frame) < w*h*2 {
		return nil, fmt.Errorf("%w: short yuyv frame: %d bytes for %dx%d", ErrDevice, len(frame), w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := 0; y < h; y++ {
		row := frame[y*w*2 : (y+1)*w*2]
		for x := 0; x+1 < w; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = row[i+1]
			img.Cr[ci] = row[i+3]
		}
	}
	return img, nil
}
