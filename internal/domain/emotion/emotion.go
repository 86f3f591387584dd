// Package emotion defines the fixed emotion label set and probability distributions over it.
package emotion

import (
	"fmt"
	"math"
	"strings"
)

// Label is one of the seven recognized emotions.
type Label int

// The fixed label set. Order is stable and used for array indexing.
const (
	Angry Label = iota
	Disgust
	Fear
	Happy
	Sad
	Surprise
	Neutral

	// Count is the number of labels.
	Count = 7
)

// percentScaleSum is the total above which a distribution is taken to be in percent.
const percentScaleSum = 1.5

var labelNames = [Count]string{
	Angry:    "angry",
	Disgust:  "disgust",
	Fear:     "fear",
	Happy:    "happy",
	Sad:      "sad",
	Surprise: "surprise",
	Neutral:  "neutral",
}

// Labels returns all labels in index order.
func Labels() []Label {
	out := make([]Label, Count)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// String implements fmt.Stringer.
func (l Label) String() string {
	if l < 0 || int(l) >= Count {
		return fmt.Sprintf("label(%d)", int(l))
	}
	return labelNames[l]
}

// MarshalText renders the label name, so maps keyed by Label encode as JSON objects.
func (l Label) MarshalText() ([]byte, error) {
	if l < 0 || int(l) >= Count {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLabel, int(l))
	}
	return []byte(labelNames[l]), nil
}

// ParseLabel resolves a label name, case-insensitively.
func ParseLabel(name string) (Label, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range labelNames {
		if candidate == n {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, name)
}

// Distribution holds a probability per label. Missing labels are zero.
type Distribution [Count]float64

// Parse converts a loosely-typed label->probability mapping into a Distribution.
// Unrecognized labels are an error. Negative and NaN entries become zero; a
// mapping in percent (sum well above one) is rescaled to [0, 1].
func Parse(raw map[string]float64) (Distribution, error) {
	var d Distribution
	for name, p := range raw {
		l, err := ParseLabel(name)
		if err != nil {
			return Distribution{}, err
		}
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			p = 0
		}
		d[l] = p
	}
	if d.Sum() > percentScaleSum {
		for i := range d {
			d[i] /= 100
		}
	}
	return d, nil
}

// Of builds a Distribution from explicit label/probability pairs.
func Of(pairs map[Label]float64) Distribution {
	var d Distribution
	for l, p := range pairs {
		if l >= 0 && int(l) < Count {
			d[l] = p
		}
	}
	return d
}

// Get returns the probability of l.
func (d Distribution) Get(l Label) float64 {
	if l < 0 || int(l) >= Count {
		return 0
	}
	return d[l]
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var s float64
	for _, p := range d {
		s += p
	}
	return s
}

// Dominant returns the most probable label and its probability.
// Ties resolve to the lowest label index.
func (d Distribution) Dominant() (Label, float64) {
	best := Neutral
	bestP := -1.0
	for i, p := range d {
		if p > bestP {
			best, bestP = Label(i), p
		}
	}
	return best, bestP
}

// Map returns the distribution as a name->probability map.
func (d Distribution) Map() map[string]float64 {
	out := make(map[string]float64, Count)
	for i, p := range d {
		out[labelNames[i]] = p
	}
	return out
}
