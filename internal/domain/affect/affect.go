// Package affect maps emotion distributions onto the valence/arousal plane.
package affect

import (
	"math"

	"github.com/okian/moodcam/internal/domain/emotion"
)

// Point is a position on the valence/arousal plane.
type Point struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

// DefaultPositions returns the fixed per-label positions used when none are configured.
func DefaultPositions() map[emotion.Label]Point {
	return map[emotion.Label]Point{
		emotion.Happy:    {Valence: 0.8, Arousal: 0.5},
		emotion.Angry:    {Valence: -0.4, Arousal: 0.8},
		emotion.Sad:      {Valence: -0.6, Arousal: -0.3},
		emotion.Fear:     {Valence: -0.5, Arousal: 0.6},
		emotion.Surprise: {Valence: 0.3, Arousal: 0.8},
		emotion.Disgust:  {Valence: -0.6, Arousal: 0.2},
		emotion.Neutral:  {Valence: 0, Arousal: 0},
	}
}

// Option applies a configuration option to the Mapper.
type Option func(*Mapper)

// WithPosition overrides the position of a single label.
func WithPosition(l emotion.Label, p Point) Option {
	return func(m *Mapper) {
		if l >= 0 && int(l) < emotion.Count {
			m.positions[l] = p
		}
	}
}

// WithPositionsFromConfig overrides positions from a label -> [valence, arousal] map.
// Entries with an unknown label or a length other than two are ignored.
func WithPositionsFromConfig(positions map[string][]float64) Option {
	return func(m *Mapper) {
		for name, xy := range positions {
			l, err := emotion.ParseLabel(name)
			if err != nil || len(xy) != 2 {
				continue
			}
			m.positions[l] = Point{Valence: xy[0], Arousal: xy[1]}
		}
	}
}

// Mapper computes the probability-weighted centroid of label positions.
type Mapper struct {
	positions [emotion.Count]Point
}

// NewMapper creates a Mapper with the default positions and applies opts.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{}
	for l, p := range DefaultPositions() {
		m.positions[l] = p
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map returns (valence, arousal), each clamped to [-1, 1].
func (m *Mapper) Map(d emotion.Distribution) (valence, arousal float64) {
	for i, p := range d {
		if math.IsNaN(p) {
			continue
		}
		valence += m.positions[i].Valence * p
		arousal += m.positions[i].Arousal * p
	}
	return clampUnit(valence), clampUnit(arousal)
}

// Position returns the configured position of l.
func (m *Mapper) Position(l emotion.Label) Point {
	if l < 0 || int(l) >= emotion.Count {
		return Point{}
	}
	return m.positions[l]
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
