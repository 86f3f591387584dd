// Package repository holds the time-windowed per-identity signal history.
package repository

import (
	"context"
	"time"

	"github.com/okian/moodcam/internal/domain/model"
)

// Store provides read/write access to per-key mood and affect series.
//
// Every read returns a copy; callers may keep or modify it freely. Samples
// older than the retention window are never returned.
type Store interface {
	// Commit appends every sample of one analysis cycle atomically.
	Commit(ctx context.Context, b model.Batch) error
	AppendMood(ctx context.Context, s model.MoodSample) error
	AppendAffect(ctx context.Context, s model.AffectSample) error

	// MoodWindow returns the mood series of key within the last d, oldest first.
	MoodWindow(ctx context.Context, key string, d time.Duration) []model.MoodSample
	// AffectWindow returns the affect series of key within the last d, oldest first.
	AffectWindow(ctx context.Context, key string, d time.Duration) []model.AffectSample

	// Latest returns the newest samples of key. Returns ErrNotFound if key has no history.
	Latest(ctx context.Context, key string) (model.MoodSample, model.AffectSample, error)

	// EvictOlderThan drops samples older than d and keys left empty.
	EvictOlderThan(ctx context.Context, d time.Duration) int

	// Keys returns the keys with retained history, sorted.
	Keys(ctx context.Context) []string
}
