package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/moodcam/internal/domain/emotion"
)

const (
	envPrefix     = "MOODCAM_"
	envConfigPath = "MOODCAM_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MOODCAM_CONFIG is set
//  3. env (prefix MOODCAM_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// MOODCAM_ANALYSIS_INTERVAL_MS -> analysis_interval_ms; underscores are kept
	// to match the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The config path itself is not a config key.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.AnalysisIntervalMS <= 0:
		return fmt.Errorf("%w: analysis_interval_ms must be positive", ErrInvalidConfig)
	case c.CaptureFPS <= 0:
		return fmt.Errorf("%w: capture_fps must be positive", ErrInvalidConfig)
	case c.RetentionSeconds <= 0:
		return fmt.Errorf("%w: retention_seconds must be positive", ErrInvalidConfig)
	case c.MatchThreshold < 0:
		return fmt.Errorf("%w: match_threshold must not be negative", ErrInvalidConfig)
	case strings.TrimSpace(c.GalleryDir) == "":
		return fmt.Errorf("%w: gallery_dir must not be empty", ErrInvalidConfig)
	}

	switch c.CaptureSource {
	case "webcam", "directory":
	default:
		return fmt.Errorf("%w: unknown capture_source %q", ErrInvalidConfig, c.CaptureSource)
	}
	switch c.InferenceBackend {
	case "http", "simulated":
	default:
		return fmt.Errorf("%w: unknown inference_backend %q", ErrInvalidConfig, c.InferenceBackend)
	}
	switch c.MatchMetric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("%w: unknown match_metric %q", ErrInvalidConfig, c.MatchMetric)
	}

	for label := range c.MoodWeights {
		if _, err := emotion.ParseLabel(label); err != nil {
			return fmt.Errorf("%w: mood_weights: %w", ErrInvalidConfig, err)
		}
	}
	for label, pos := range c.AffectPositions {
		if _, err := emotion.ParseLabel(label); err != nil {
			return fmt.Errorf("%w: affect_positions: %w", ErrInvalidConfig, err)
		}
		if len(pos) != 2 {
			return fmt.Errorf("%w: affect_positions.%s must be [valence, arousal]", ErrInvalidConfig, label)
		}
	}
	return nil
}
