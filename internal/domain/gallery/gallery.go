// Package gallery holds the known identities and answers nearest-match queries
// against their reference embeddings.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultThreshold is the maximum accepted cosine distance.
const DefaultThreshold = 0.40

// Identity is an enrolled person. Records are never mutated once enrolled;
// re-enrollment replaces the record.
type Identity struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Embedding  []float32 `json:"-"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Source     string    `json:"source,omitempty"`
}

// Image is a reference image offered for enrollment. When Embedding is set it
// is used as-is; otherwise the Embedder computes it from Image.
type Image struct {
	Key       string
	Name      string
	Source    string
	Image     image.Image
	Embedding []float32
}

// Embedder computes a face embedding from a reference image.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Option applies a configuration option to the Gallery.
type Option func(*Gallery)

// WithEmbedder sets the embedder used for images without a precomputed embedding.
func WithEmbedder(e Embedder) Option {
	return func(g *Gallery) {
		if e != nil {
			g.embedder = e
		}
	}
}

// WithMetric sets the distance metric.
func WithMetric(m Metric) Option {
	return func(g *Gallery) {
		g.metric = m
	}
}

// WithThreshold sets the maximum accepted distance.
func WithThreshold(threshold float64) Option {
	return func(g *Gallery) {
		if threshold >= 0 && !math.IsNaN(threshold) {
			g.threshold = threshold
		}
	}
}

// WithClock overrides the enrollment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gallery) {
		if now != nil {
			g.now = now
		}
	}
}

// snapshot is an immutable identity set. Readers load it without locking.
type snapshot struct {
	identities []*Identity
	byKey      map[string]int
	dim        int
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		identities: make([]*Identity, len(s.identities)),
		byKey:      make(map[string]int, len(s.byKey)),
		dim:        s.dim,
	}
	copy(out.identities, s.identities)
	for k, v := range s.byKey {
		out.byKey[k] = v
	}
	return out
}

// put adds or replaces id, keeping the enrollment position of a replaced key.
func (s *snapshot) put(id *Identity) {
	if s.dim == 0 {
		s.dim = len(id.Embedding)
	}
	if i, ok := s.byKey[id.Key]; ok {
		s.identities[i] = id
		return
	}
	s.byKey[id.Key] = len(s.identities)
	s.identities = append(s.identities, id)
}

// Gallery is safe for concurrent use. Writers serialize on a mutex and publish
// a new snapshot; Match reads the current snapshot without blocking writers.
type Gallery struct {
	embedder  Embedder
	metric    Metric
	threshold float64
	now       func() time.Time

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// New creates an empty gallery.
func New(opts ...Option) *Gallery {
	g := &Gallery{
		metric:    Cosine,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.current.Store(&snapshot{byKey: map[string]int{}})
	return g
}

// Load replaces the identity set with images. Later images with a duplicate key
// overwrite earlier ones. Images that cannot be embedded or whose embedding
// dimension disagrees with the rest are skipped; each skip is reported in the
// returned error, which wraps ErrGalleryLoad. The count of loaded identities is
// returned in all cases.
func (g *Gallery) Load(ctx context.Context, images []Image) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := &snapshot{byKey: make(map[string]int, len(images))}
	var errs []error
	for i := range images {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		id, err := g.identityFor(ctx, &images[i], next.dim)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrGalleryLoad, describe(&images[i]), err))
			continue
		}
		next.put(id)
	}

	g.current.Store(next)
	return len(next.identities), errors.Join(errs...)
}

// Enroll adds or replaces a single identity without touching the others.
func (g *Gallery) Enroll(ctx context.Context, img Image) (*Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.current.Load()
	next := cur.clone()
	if _, ok := cur.byKey[strings.TrimSpace(img.Key)]; ok && len(cur.identities) == 1 {
		// replacing the only identity may change the dimension
		next.dim = 0
	}
	id, err := g.identityFor(ctx, &img, next.dim)
	if err != nil {
		return nil, fmt.Errorf("enroll %s: %w", describe(&img), err)
	}
	next.put(id)
	g.current.Store(next)
	return id, nil
}

func (g *Gallery) identityFor(ctx context.Context, img *Image, dim int) (*Identity, error) {
	key := strings.TrimSpace(img.Key)
	if key == "" {
		return nil, ErrInvalidIdentityKey
	}

	emb := img.Embedding
	if len(emb) == 0 {
		if g.embedder == nil {
			return nil, ErrNoEmbedder
		}
		if img.Image == nil {
			return nil, ErrEmptyEmbedding
		}
		var err error
		emb, err = g.embedder.Embed(ctx, img.Image)
		if err != nil {
			return nil, err
		}
	}
	if len(emb) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if dim != 0 && len(emb) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), dim)
	}

	name := img.Name
	if name == "" {
		name = key
	}
	return &Identity{
		Key:        key,
		Name:       name,
		Embedding:  append([]float32(nil), emb...),
		EnrolledAt: g.now(),
		Source:     img.Source,
	}, nil
}

// Match returns the nearest identity and its distance. It returns nil when the
// gallery is empty, the probe is empty, or the nearest distance exceeds the
// threshold. On exact ties the earliest enrolled identity wins.
func (g *Gallery) Match(probe []float32) (*Identity, float64) {
	snap := g.current.Load()
	if len(snap.identities) == 0 || len(probe) == 0 {
		return nil, math.Inf(1)
	}

	var best *Identity
	bestDist := math.Inf(1)
	for _, id := range snap.identities {
		d := g.metric.Distance(probe, id.Embedding)
		if d < bestDist {
			best, bestDist = id, d
		}
	}
	if best == nil || bestDist > g.threshold {
		return nil, bestDist
	}
	return best, bestDist
}

// Identities returns the enrolled identities in enrollment order.
func (g *Gallery) Identities() []*Identity {
	snap := g.current.Load()
	out := make([]*Identity, len(snap.identities))
	copy(out, snap.identities)
	return out
}

// Get returns the identity with key, if enrolled.
func (g *Gallery) Get(key string) (*Identity, bool) {
	snap := g.current.Load()
	i, ok := snap.byKey[key]
	if !ok {
		return nil, false
	}
	return snap.identities[i], true
}

// Len returns the number of enrolled identities.
func (g *Gallery) Len() int {
	return len(g.current.Load().identities)
}

// Threshold returns the acceptance threshold.
func (g *Gallery) Threshold() float64 {
	return g.threshold
}

func describe(img *Image) string {
	if img.Source != "" {
		return img.Source
	}
	return img.Key
}
