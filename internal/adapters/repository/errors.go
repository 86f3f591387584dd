package repository

import "errors"

// Sentinel kinds for history errors.
var (
	ErrNotFound   = errors.New("no history for key")
	ErrInvalidKey = errors.New("invalid history key")
)
