package gallery

import "errors"

// Sentinel errors for gallery operations.
var (
	ErrGalleryLoad        = errors.New("gallery image skipped")
	ErrNoEmbedder         = errors.New("no embedder configured")
	ErrEmptyEmbedding     = errors.New("empty embedding")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrInvalidIdentityKey = errors.New("invalid identity key")
)
