package inference

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/moodcam/internal/domain/emotion"
	"github.com/okian/moodcam/internal/domain/model"
)

// Default simulation constants.
const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 60 * time.Millisecond
	defaultRandomSeed = 42
	defaultFaces      = 1
	signatureGrid     = 8
	simDetScore       = 0.95
	driftStep         = 0.15
)

// SimOption applies a configuration option to the Simulated backend.
type SimOption func(*Simulated)

// WithLatencyRange sets the simulated per-call latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimOption {
	return func(s *Simulated) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSeed sets the random seed.
func WithSeed(seed int64) SimOption {
	return func(s *Simulated) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible simulation
	}
}

// WithFaces sets how many faces Detect reports per frame.
func WithFaces(n int) SimOption {
	return func(s *Simulated) {
		if n >= 0 {
			s.faces = n
		}
	}
}

// Simulated is an in-process Backend for demos and tests. Detect lays out a
// fixed number of boxes across the frame; Analyze returns a slowly drifting
// emotion distribution and an appearance signature of the crop, so the same
// face image always embeds to the same vector.
type Simulated struct {
	minLatency time.Duration
	maxLatency time.Duration
	faces      int

	mu    sync.Mutex
	rng   *rand.Rand
	state emotion.Distribution
}

var _ Backend = (*Simulated)(nil)

// NewSimulated creates a simulated backend.
func NewSimulated(opts ...SimOption) *Simulated {
	s := &Simulated{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		faces:      defaultFaces,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // reproducible simulation
	}
	s.state[emotion.Neutral] = 1
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) wait(ctx context.Context) error {
	s.mu.Lock()
	latency := s.minLatency
	if s.maxLatency > s.minLatency {
		latency += time.Duration(s.rng.Int63n(int64(s.maxLatency - s.minLatency)))
	}
	s.mu.Unlock()

	if latency == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
		return nil
	}
}

// Detect returns s.faces square regions spread horizontally across the frame.
func (s *Simulated) Detect(ctx context.Context, frame image.Image) ([]model.Region, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if s.faces == 0 || b.Empty() {
		return []model.Region{}, nil
	}
	slot := b.Dx() / s.faces
	side := min(slot, b.Dy()) / 2
	regions := make([]model.Region, 0, s.faces)
	for i := 0; i < s.faces; i++ {
		cx := b.Min.X + slot*i + slot/2
		cy := b.Min.Y + b.Dy()/2
		r := image.Rect(cx-side/2, cy-side/2, cx+side/2, cy+side/2)
		regions = append(regions, model.Region{BBox: r, Score: simDetScore})
	}
	return regions, nil
}

// Analyze returns the next drifting distribution and the crop signature.
func (s *Simulated) Analyze(ctx context.Context, face image.Image) (model.Analysis, error) {
	if err := s.wait(ctx); err != nil {
		return model.Analysis{}, err
	}
	return model.Analysis{Emotions: s.drift(), Embedding: Signature(face)}, nil
}

// Embed returns the appearance signature of face.
func (s *Simulated) Embed(ctx context.Context, face image.Image) ([]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return Signature(face), nil
}

// Ping always succeeds.
func (s *Simulated) Ping(_ context.Context) error {
	return nil
}

// drift moves the distribution a small random step and renormalizes it.
func (s *Simulated) drift() emotion.Distribution {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum float64
	for i := range s.state {
		s.state[i] = math.Max(0, s.state[i]+(s.rng.Float64()*2-1)*driftStep)
		sum += s.state[i]
	}
	if sum == 0 {
		s.state[emotion.Neutral] = 1
		sum = 1
	}
	for i := range s.state {
		s.state[i] /= sum
	}
	return s.state
}

// Signature summarizes an image as a mean-centered 8x8 grayscale grid plus
// its mean brightness.
func Signature(img image.Image) []float32 {
	b := img.Bounds()
	out := make([]float32, signatureGrid*signatureGrid+1)
	if b.Empty() {
		return out
	}

	var sums [signatureGrid * signatureGrid]float64
	var counts [signatureGrid * signatureGrid]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		gy := (y - b.Min.Y) * signatureGrid / b.Dy()
		for x := b.Min.X; x < b.Max.X; x++ {
			gx := (x - b.Min.X) * signatureGrid / b.Dx()
			r, g, bl, _ := img.At(x, y).RGBA()
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 0xffff
			sums[gy*signatureGrid+gx] += lum
			counts[gy*signatureGrid+gx]++
		}
	}

	var mean float64
	cells := 0
	for i := range sums {
		if counts[i] > 0 {
			sums[i] /= float64(counts[i])
			mean += sums[i]
			cells++
		}
	}
	mean /= float64(cells)
	for i := range sums {
		if counts[i] > 0 {
			out[i] = float32(sums[i] - mean)
		}
	}
	out[len(out)-1] = float32(mean)
	return out
}
