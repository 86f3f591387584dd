// Package inference is the boundary to the face detection, emotion
// classification and embedding models. The models themselves are black boxes
// behind Backend.
package inference

import (
	"context"
	"image"

	"github.com/okian/moodcam/internal/domain/model"
)

// Operation names used in metrics and logs.
const (
	OpDetect  = "detect"
	OpAnalyze = "analyze"
	OpEmbed   = "embed"
	OpPing    = "ping"
)

// Detector finds face regions in a frame.
type Detector interface {
	// Detect returns zero or more regions. No faces is an empty slice, not an error.
	Detect(ctx context.Context, frame image.Image) ([]model.Region, error)
}

// Analyzer classifies a face crop and optionally embeds it.
type Analyzer interface {
	Analyze(ctx context.Context, face image.Image) (model.Analysis, error)
}

// Embedder computes an identity embedding from a face image.
type Embedder interface {
	Embed(ctx context.Context, face image.Image) ([]float32, error)
}

// Backend is everything the pipeline needs from the models.
type Backend interface {
	Detector
	Analyzer
	Embedder
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
