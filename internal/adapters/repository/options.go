package repository

import "time"

// Option applies a configuration option to the HistoryStore.
type Option func(*HistoryStore)

// WithRetention sets how long samples are kept.
func WithRetention(d time.Duration) Option {
	return func(s *HistoryStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithCapacity bounds the number of samples kept per key and signal.
func WithCapacity(n int) Option {
	return func(s *HistoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides the wall clock used as the eviction reference.
func WithClock(now func() time.Time) Option {
	return func(s *HistoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
