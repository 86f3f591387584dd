// Package galleryfs maps a folder of named face images onto gallery images.
// Each file is one identity; the filename stem is the name.
package galleryfs

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/okian/moodcam/internal/domain/gallery"
	"github.com/okian/moodcam/pkg/imaging"
)

// InstructionsFile is written into a freshly created gallery folder.
const InstructionsFile = "INSTRUCTIONS.txt"

const instructions = `HOW TO ADD PEOPLE TO RECOGNIZE:

1. Place clear face photos in this folder
2. Name files like: john_doe.jpg, jane_smith.png, alex_johnson.jpeg
3. Use underscores for spaces in names
4. Supported formats: .jpg, .jpeg, .png, .bmp
5. One face per image works best
6. Good lighting and frontal face preferred

After adding images, refresh the gallery:
  POST /gallery/refresh   (or wait for the folder watcher)
`

// EnsureDir creates dir and its instructions file when dir does not exist yet.
// It reports whether the folder was created.
func EnsureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return false, nil
	case err == nil:
		return false, fmt.Errorf("gallery path %s is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat gallery dir: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create gallery dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, InstructionsFile), []byte(instructions), 0o644); err != nil { //nolint:gosec // readable by the user
		return true, fmt.Errorf("write instructions: %w", err)
	}
	return true, nil
}

// Scan lists the supported images in dir in filename order and decodes them.
// Undecodable files are skipped and reported in the returned error, which
// wraps ErrSkipped; the decodable ones are still returned.
func Scan(dir string) ([]gallery.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	images := make([]gallery.Image, 0, len(names))
	var errs []error
	for _, n := range names {
		path := filepath.Join(dir, n)
		img, err := decodeFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrSkipped, n, err))
			continue
		}
		name := NameFromFile(n)
		key := KeyFromName(name)
		if key == "" {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrSkipped, n, ErrInvalidName))
			continue
		}
		images = append(images, gallery.Image{
			Key:    key,
			Name:   name,
			Source: path,
			Image:  img,
		})
	}
	return images, errors.Join(errs...)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := imaging.Decode(f)
	return img, err
}

// ReplacedSuffix is appended to gallery images superseded by SaveFace. Scan
// ignores them.
const ReplacedSuffix = ".replaced"

// SaveFace writes img as <name_with_underscores>.png in dir and returns the
// gallery image for it. Any other image in dir with the same identity key,
// e.g. jane.jpg when saving "Jane", is renamed with ReplacedSuffix so the new
// face is the only one a rescan finds for that key.
func SaveFace(dir, name string, img image.Image) (gallery.Image, error) {
	file, err := FileNameFor(name)
	if err != nil {
		return gallery.Image{}, fmt.Errorf("%w: %q", err, name)
	}
	if _, err := EnsureDir(dir); err != nil {
		return gallery.Image{}, err
	}

	tmp, err := os.CreateTemp(dir, ".face-*.tmp")
	if err != nil {
		return gallery.Image{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return gallery.Image{}, fmt.Errorf("encode face: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return gallery.Image{}, fmt.Errorf("close temp file: %w", err)
	}
	display := NameFromFile(file)
	key := KeyFromName(display)
	if err := retire(dir, key, file); err != nil {
		return gallery.Image{}, err
	}
	path := filepath.Join(dir, file)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return gallery.Image{}, fmt.Errorf("save face: %w", err)
	}
	return gallery.Image{Key: key, Name: display, Source: path, Image: img}, nil
}

// retire renames every image in dir whose key is key, except keep.
func retire(dir, key, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read gallery dir: %w", err)
	}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || n == keep || !IsImage(n) || KeyFromName(NameFromFile(n)) != key {
			continue
		}
		if err := os.Rename(filepath.Join(dir, n), filepath.Join(dir, n+ReplacedSuffix)); err != nil {
			return fmt.Errorf("replace %s: %w", n, err)
		}
	}
	return nil
}
