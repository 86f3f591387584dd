package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/moodcam/pkg/imaging"
)

// Directory replays the images of a folder in filename order, looping forever.
type Directory struct {
	dir    string
	files  []string
	next   int
	opened bool
}

var _ Source = (*Directory)(nil)

// NewDirectory creates a replay source for dir.
func NewDirectory(dir string) *Directory {
	return &Directory{dir: dir}
}

// Name implements Source.
func (d *Directory) Name() string {
	return "directory:" + d.dir
}

// Open lists the images in the folder.
func (d *Directory) Open(_ context.Context) error {
	if d.opened {
		return nil
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDevice, d.dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp":
			files = append(files, filepath.Join(d.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s: no images", ErrDevice, d.dir)
	}
	sort.Strings(files)
	d.files = files
	d.next = 0
	d.opened = true
	return nil
}

// Read decodes the next image, wrapping around at the end.
func (d *Directory) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.opened {
		return nil, ErrClosed
	}
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	defer f.Close()
	img, _, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDevice, path, err)
	}
	return img, nil
}

// Close forgets the listing; the next Open rescans the folder.
func (d *Directory) Close() error {
	d.opened = false
	d.files = nil
	return nil
}
