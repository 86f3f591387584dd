package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/pkg/metrics"
)

// Default history configuration constants.
const (
	DefaultRetention = 60 * time.Second
	DefaultCapacity  = 4096
)

const (
	signalMood   = "mood"
	signalAffect = "affect"
)

func moodTS(s model.MoodSample) time.Time     { return s.Timestamp }
func affectTS(s model.AffectSample) time.Time { return s.Timestamp }

type series struct {
	mood   *ring[model.MoodSample]
	affect *ring[model.AffectSample]
}

func (s *series) empty() bool {
	return s.mood.len() == 0 && s.affect.len() == 0
}

// HistoryStore is an in-memory Store. Eviction is lazy: it runs on every
// append and read, relative to the later of the clock and the newest
// timestamp ever appended, so replayed or simulated time behaves like
// wall time.
type HistoryStore struct {
	retention time.Duration
	capacity  int
	now       func() time.Time

	mu     sync.Mutex
	series map[string]*series
	latest time.Time
}

var _ Store = (*HistoryStore)(nil)

// NewHistoryStore creates an empty store.
func NewHistoryStore(opts ...Option) *HistoryStore {
	s := &HistoryStore{
		retention: DefaultRetention,
		capacity:  DefaultCapacity,
		now:       time.Now,
		series:    make(map[string]*series),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retention returns the configured retention window.
func (s *HistoryStore) Retention() time.Duration {
	return s.retention
}

// Commit appends every sample in b under one critical section. A batch with
// an empty key is rejected whole.
func (s *HistoryStore) Commit(_ context.Context, b model.Batch) error {
	for i := range b.Mood {
		if b.Mood[i].Key == "" {
			return fmt.Errorf("%w: mood sample %d", ErrInvalidKey, i)
		}
	}
	for i := range b.Affect {
		if b.Affect[i].Key == "" {
			return fmt.Errorf("%w: affect sample %d", ErrInvalidKey, i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mood, affect := 0, 0
	for _, m := range b.Mood {
		if s.appendMoodLocked(m) {
			mood++
		}
	}
	for _, a := range b.Affect {
		if s.appendAffectLocked(a) {
			affect++
		}
	}
	s.evictLocked(s.retention)
	metrics.RecordHistorySamples(signalMood, mood)
	metrics.RecordHistorySamples(signalAffect, affect)
	metrics.UpdateHistoryIdentities(len(s.series))
	return nil
}

// AppendMood appends a single mood sample.
func (s *HistoryStore) AppendMood(ctx context.Context, m model.MoodSample) error {
	return s.Commit(ctx, model.Batch{Mood: []model.MoodSample{m}})
}

// AppendAffect appends a single affect sample.
func (s *HistoryStore) AppendAffect(ctx context.Context, a model.AffectSample) error {
	return s.Commit(ctx, model.Batch{Affect: []model.AffectSample{a}})
}

func (s *HistoryStore) seriesLocked(key string) *series {
	ser, ok := s.series[key]
	if !ok {
		ser = &series{
			mood:   newRing[model.MoodSample](s.capacity),
			affect: newRing[model.AffectSample](s.capacity),
		}
		s.series[key] = ser
	}
	return ser
}

func (s *HistoryStore) observe(ts time.Time) {
	if ts.After(s.latest) {
		s.latest = ts
	}
}

func (s *HistoryStore) appendMoodLocked(m model.MoodSample) bool {
	if math.IsNaN(m.Score) {
		return false
	}
	s.observe(m.Timestamp)
	if s.seriesLocked(m.Key).mood.push(m) {
		metrics.RecordHistoryEvicted(signalMood, 1)
	}
	return true
}

func (s *HistoryStore) appendAffectLocked(a model.AffectSample) bool {
	if math.IsNaN(a.Valence) || math.IsNaN(a.Arousal) {
		return false
	}
	s.observe(a.Timestamp)
	if s.seriesLocked(a.Key).affect.push(a) {
		metrics.RecordHistoryEvicted(signalAffect, 1)
	}
	return true
}

func (s *HistoryStore) reference() time.Time {
	now := s.now()
	if s.latest.After(now) {
		return s.latest
	}
	return now
}

// evictLocked drops samples older than d and removes empty keys.
func (s *HistoryStore) evictLocked(d time.Duration) int {
	cutoff := s.reference().Add(-d)
	total := 0
	for key, ser := range s.series {
		m := ser.mood.evictBefore(cutoff, moodTS)
		a := ser.affect.evictBefore(cutoff, affectTS)
		metrics.RecordHistoryEvicted(signalMood, m)
		metrics.RecordHistoryEvicted(signalAffect, a)
		total += m + a
		if ser.empty() {
			delete(s.series, key)
		}
	}
	return total
}

func (s *HistoryStore) window(d time.Duration) time.Duration {
	if d <= 0 || d > s.retention {
		return s.retention
	}
	return d
}

// MoodWindow returns a copy of key's mood samples within min(d, retention).
func (s *HistoryStore) MoodWindow(_ context.Context, key string, d time.Duration) []model.MoodSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.retention)
	ser, ok := s.series[key]
	if !ok {
		return []model.MoodSample{}
	}
	return ser.mood.since(s.reference().Add(-s.window(d)), moodTS)
}

// AffectWindow returns a copy of key's affect samples within min(d, retention).
func (s *HistoryStore) AffectWindow(_ context.Context, key string, d time.Duration) []model.AffectSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.retention)
	ser, ok := s.series[key]
	if !ok {
		return []model.AffectSample{}
	}
	return ser.affect.since(s.reference().Add(-s.window(d)), affectTS)
}

// Latest returns key's newest mood and affect samples.
func (s *HistoryStore) Latest(_ context.Context, key string) (model.MoodSample, model.AffectSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.retention)
	ser, ok := s.series[key]
	if !ok {
		return model.MoodSample{}, model.AffectSample{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	m, _ := ser.mood.back()
	a, _ := ser.affect.back()
	return m, a, nil
}

// EvictOlderThan drops samples older than d (capped at the retention window)
// and returns how many were removed.
func (s *HistoryStore) EvictOlderThan(_ context.Context, d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.evictLocked(s.window(d))
	metrics.UpdateHistoryIdentities(len(s.series))
	return n
}

// Keys returns the keys that still hold samples, sorted.
func (s *HistoryStore) Keys(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.retention)
	keys := make([]string, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of keys and the total mood and affect samples held.
// It does not evict, so it may include samples that the next read or append
// will drop.
func (s *HistoryStore) Size(_ context.Context) (keys, samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ser := range s.series {
		samples += ser.mood.len() + ser.affect.len()
	}
	return len(s.series), samples
}
