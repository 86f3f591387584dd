package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/moodcam/internal/config"
)

var configEnvVars = []string{
	"MOODCAM_CONFIG",
	"MOODCAM_ADDR",
	"MOODCAM_ANALYSIS_INTERVAL_MS",
	"MOODCAM_MATCH_THRESHOLD",
	"MOODCAM_CAPTURE_SOURCE",
	"MOODCAM_WATCH_GALLERY",
	"MOODCAM_RETENTION_SECONDS",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moodcam.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.AnalysisIntervalMS, convey.ShouldEqual, 1500)
				convey.So(cfg.CaptureSource, convey.ShouldEqual, "webcam")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("MOODCAM_ADDR", ":8080")
			_ = os.Setenv("MOODCAM_ANALYSIS_INTERVAL_MS", "500")
			_ = os.Setenv("MOODCAM_MATCH_THRESHOLD", "0.35")
			_ = os.Setenv("MOODCAM_WATCH_GALLERY", "false")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.AnalysisIntervalMS, convey.ShouldEqual, 500)
				convey.So(cfg.MatchThreshold, convey.ShouldEqual, 0.35)
				convey.So(cfg.WatchGallery, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, `
addr: ":9090"
capture_source: directory
replay_dir: /tmp/frames
retention_seconds: 120
mood_weights:
  surprise: 0.5
affect_positions:
  neutral: [0.1, -0.1]
`)
			_ = os.Setenv("MOODCAM_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.CaptureSource, convey.ShouldEqual, "directory")
				convey.So(cfg.ReplayDir, convey.ShouldEqual, "/tmp/frames")
				convey.So(cfg.RetentionSeconds, convey.ShouldEqual, 120)
				convey.So(cfg.MoodWeights["surprise"], convey.ShouldEqual, 0.5)
				convey.So(cfg.MoodWeights["happy"], convey.ShouldEqual, 1.0)
				convey.So(cfg.AffectPositions["neutral"], convey.ShouldResemble, []float64{0.1, -0.1})
				convey.So(cfg.AnalysisIntervalMS, convey.ShouldEqual, 1500)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, `
addr: ":9090"
retention_seconds: 120
`)
			_ = os.Setenv("MOODCAM_CONFIG", path)
			_ = os.Setenv("MOODCAM_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.RetentionSeconds, convey.ShouldEqual, 120)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("MOODCAM_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value is invalid", func() {
			_ = os.Setenv("MOODCAM_CAPTURE_SOURCE", "telescope")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New()

		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"an empty addr", func(c *config.Config) { c.Addr = " " }},
			{"a zero interval", func(c *config.Config) { c.AnalysisIntervalMS = 0 }},
			{"a zero fps", func(c *config.Config) { c.CaptureFPS = 0 }},
			{"a zero retention", func(c *config.Config) { c.RetentionSeconds = 0 }},
			{"a negative threshold", func(c *config.Config) { c.MatchThreshold = -1 }},
			{"an empty gallery dir", func(c *config.Config) { c.GalleryDir = "" }},
			{"an unknown backend", func(c *config.Config) { c.InferenceBackend = "magic" }},
			{"an unknown metric", func(c *config.Config) { c.MatchMetric = "manhattan" }},
			{"an unknown weight label", func(c *config.Config) { c.MoodWeights["bored"] = 0.1 }},
			{"an unknown position label", func(c *config.Config) { c.AffectPositions["bored"] = []float64{0, 0} }},
			{"a short position", func(c *config.Config) { c.AffectPositions["happy"] = []float64{1} }},
		}
		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate(cfg)

				convey.Convey("Then validation fails", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
