package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrInvalidWindow = errors.New("invalid window")
	ErrNoFrame       = errors.New("no frame captured yet")
)
