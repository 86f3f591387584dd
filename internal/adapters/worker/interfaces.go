// Package worker runs the two periodic loops of the pipeline: a fast capture
// loop feeding the latest-frame mailbox and a throttled analysis loop turning
// frames into identity-keyed mood and affect samples.
package worker

import (
	"context"
	"image"

	"github.com/okian/moodcam/internal/domain/emotion"
	"github.com/okian/moodcam/internal/domain/gallery"
	"github.com/okian/moodcam/internal/domain/model"
)

// Inference detects and classifies faces.
type Inference interface {
	Detect(ctx context.Context, frame image.Image) ([]model.Region, error)
	Analyze(ctx context.Context, face image.Image) (model.Analysis, error)
}

// Matcher resolves an embedding to a known identity.
type Matcher interface {
	Match(probe []float32) (*gallery.Identity, float64)
}

// Tracker assigns transient keys to unknown faces.
type Tracker interface {
	Assign(boxes []image.Rectangle) []string
	Len() int
}

// Scorer computes the mood score of a distribution.
type Scorer interface {
	Score(d emotion.Distribution) float64
}

// Mapper computes the valence/arousal of a distribution.
type Mapper interface {
	Map(d emotion.Distribution) (valence, arousal float64)
}

// History receives one batch of samples per analysis cycle.
type History interface {
	Commit(ctx context.Context, b model.Batch) error
}

// Loop is a periodic worker.
type Loop interface {
	// Run blocks until ctx is cancelled or Shutdown is called.
	Run(ctx context.Context)
	// Shutdown stops the loop at its next cycle boundary and waits for it.
	Shutdown(ctx context.Context) error
}
