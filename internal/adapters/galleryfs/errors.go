package galleryfs

import "errors"

// Sentinel kinds for gallery folder errors.
var (
	ErrInvalidName = errors.New("invalid face name")
	ErrSkipped     = errors.New("gallery file skipped")
)
