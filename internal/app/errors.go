package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrNoOverlay        = errors.New("no analyzed frame yet")
	ErrDetectionIndex   = errors.New("detection index out of range")
	ErrInvalidName      = errors.New("invalid name")
	ErrBackendUnhealthy = errors.New("inference backend unhealthy")
)
