// Package scoring converts emotion distributions into a bounded mood score.
package scoring

import (
	"math"

	"github.com/okian/moodcam/internal/domain/emotion"
)

// Mood score bounds and scale.
const (
	MinScore   = -100
	MaxScore   = 100
	scoreScale = 100
)

// DefaultWeights are the per-label mood weights used when none are configured.
func DefaultWeights() map[emotion.Label]float64 {
	return map[emotion.Label]float64{
		emotion.Happy:    1.0,
		emotion.Surprise: 0.3,
		emotion.Neutral:  0,
		emotion.Sad:      -1.0,
		emotion.Angry:    -0.9,
		emotion.Fear:     -0.6,
		emotion.Disgust:  -0.7,
	}
}

// Option applies a configuration option to the MoodScorer.
type Option func(*MoodScorer)

// WithWeight overrides the weight of a single label.
func WithWeight(l emotion.Label, weight float64) Option {
	return func(s *MoodScorer) {
		if l >= 0 && int(l) < emotion.Count && !math.IsNaN(weight) {
			s.weights[l] = weight
		}
	}
}

// WithWeightsFromConfig overrides weights from a label-name map. Unknown
// labels are ignored; config validation rejects them earlier.
func WithWeightsFromConfig(weights map[string]float64) Option {
	return func(s *MoodScorer) {
		for name, w := range weights {
			l, err := emotion.ParseLabel(name)
			if err != nil || math.IsNaN(w) {
				continue
			}
			s.weights[l] = w
		}
	}
}

// Scorer computes a mood score from an emotion distribution.
type Scorer interface {
	Score(d emotion.Distribution) float64
}

// MoodScorer is a pure weighted-sum scorer. It holds no state beyond its
// weight table, which is fixed after construction.
type MoodScorer struct {
	weights [emotion.Count]float64
}

// NewMoodScorer creates a scorer with the default weights and applies opts.
func NewMoodScorer(opts ...Option) *MoodScorer {
	s := &MoodScorer{}
	for l, w := range DefaultWeights() {
		s.weights[l] = w
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns clamp(100 * Σ weight[e]·p[e], -100, 100).
func (s *MoodScorer) Score(d emotion.Distribution) float64 {
	var raw float64
	for i, p := range d {
		if math.IsNaN(p) {
			continue
		}
		raw += s.weights[i] * p
	}
	score := raw * scoreScale
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(MinScore, math.Min(MaxScore, score))
}

// Weight returns the configured weight for l.
func (s *MoodScorer) Weight(l emotion.Label) float64 {
	if l < 0 || int(l) >= emotion.Count {
		return 0
	}
	return s.weights[l]
}
