// Package tracking assigns transient keys to unknown faces so that their
// samples form a stable series across analysis cycles without ever being
// merged into a named identity.
package tracking

import (
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

// Default tracking configuration constants.
const (
	DefaultTTL       = 10 * time.Second
	DefaultMinIoU    = 0.3
	keyPrefix        = "unknown-"
	keyHexLen        = 8
	cleanupIntervals = 2 // janitor runs every ttl*cleanupIntervals
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithTTL sets how long a track survives without being seen.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithMinIoU sets the minimum overlap for continuing a track.
func WithMinIoU(iou float64) Option {
	return func(t *Tracker) {
		if iou > 0 && iou <= 1 {
			t.minIoU = iou
		}
	}
}

// Tracker associates unknown face boxes across cycles by overlap.
type Tracker struct {
	ttl    time.Duration
	minIoU float64

	mu     sync.Mutex
	tracks *cache.Cache // key -> image.Rectangle of the last hit
}

// New creates a Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		ttl:    DefaultTTL,
		minIoU: DefaultMinIoU,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.tracks = cache.New(t.ttl, t.ttl*cleanupIntervals)
	return t
}

// Assign returns one key per box, in order. Each box continues the live track
// it overlaps most (at least the minimum IoU) unless an earlier box in the same
// call already claimed that track; otherwise a new track is started.
func (t *Tracker) Assign(boxes []image.Rectangle) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := t.tracks.Items()
	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	claimed := make(map[string]bool, len(boxes))
	out := make([]string, len(boxes))
	for i, box := range boxes {
		bestKey := ""
		bestIoU := t.minIoU
		for _, k := range keys {
			if claimed[k] {
				continue
			}
			prev, ok := live[k].Object.(image.Rectangle)
			if !ok {
				continue
			}
			if iou := IoU(box, prev); iou >= bestIoU {
				bestKey, bestIoU = k, iou
			}
		}
		if bestKey == "" {
			bestKey = newKey()
		}
		claimed[bestKey] = true
		t.tracks.SetDefault(bestKey, box)
		out[i] = bestKey
	}
	return out
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	return len(t.tracks.Items())
}

// Forget drops a track, e.g. after the face was enrolled under a name.
func (t *Tracker) Forget(key string) {
	t.tracks.Delete(key)
}

// IsTransient reports whether key was issued by a Tracker.
func IsTransient(key string) bool {
	return len(key) == len(keyPrefix)+keyHexLen && key[:len(keyPrefix)] == keyPrefix
}

func newKey() string {
	return keyPrefix + uuid.NewString()[:keyHexLen]
}

// IoU returns the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

func area(r image.Rectangle) float64 {
	return float64(r.Dx()) * float64(r.Dy())
}
