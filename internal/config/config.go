// Package config defines moodcam configuration and its layered loading.
//
// Conventions:
// - Keys are flat snake_case so that env vars map 1:1 (MOODCAM_ANALYSIS_INTERVAL_MS -> analysis_interval_ms).
// - New() returns defaults; Load() layers file and env on top and validates.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CaptureSource is "webcam" or "directory".
	CaptureSource string `koanf:"capture_source"`
	// CameraDevice is the V4L2 device path used by the webcam source.
	CameraDevice string `koanf:"camera_device"`
	// CaptureWidth and CaptureHeight request a webcam frame size.
	CaptureWidth  int `koanf:"capture_width"`
	CaptureHeight int `koanf:"capture_height"`
	// ReplayDir is the image folder played back by the directory source.
	ReplayDir string `koanf:"replay_dir"`
	// CaptureFPS bounds the capture loop rate.
	CaptureFPS float64 `koanf:"capture_fps"`
	// CaptureFailureThreshold is the number of consecutive read failures
	// after which the capture loop reports a persistent failure.
	CaptureFailureThreshold int `koanf:"capture_failure_threshold"`

	// AnalysisIntervalMS is the pause between the end of one analysis cycle and the start of the next.
	AnalysisIntervalMS int `koanf:"analysis_interval_ms"`
	// MinDetectionScore drops detector regions below this confidence.
	MinDetectionScore float64 `koanf:"min_detection_score"`
	// MinFaceSize drops regions whose shorter side is below this many pixels.
	MinFaceSize int `koanf:"min_face_size"`

	// InferenceBackend is "http" or "simulated".
	InferenceBackend string `koanf:"inference_backend"`
	// InferenceURL is the base URL of the HTTP inference service.
	InferenceURL string `koanf:"inference_url"`
	// InferenceTimeoutMS bounds each inference request.
	InferenceTimeoutMS int `koanf:"inference_timeout_ms"`

	// GalleryDir holds one named image per known identity.
	GalleryDir string `koanf:"gallery_dir"`
	// WatchGallery reloads the gallery when files change.
	WatchGallery bool `koanf:"watch_gallery"`
	// MatchMetric is "cosine" or "euclidean".
	MatchMetric string `koanf:"match_metric"`
	// MatchThreshold is the maximum accepted embedding distance.
	MatchThreshold float64 `koanf:"match_threshold"`

	// RetentionSeconds is the history window kept per identity.
	RetentionSeconds int `koanf:"retention_seconds"`
	// HistoryCapacity bounds samples kept per identity and signal.
	HistoryCapacity int `koanf:"history_capacity"`
	// TrackTTLSeconds expires transient tracks of unknown faces.
	TrackTTLSeconds int `koanf:"track_ttl_seconds"`
	// TrackIoU is the minimum overlap that continues an unknown-face track.
	TrackIoU float64 `koanf:"track_iou"`

	// MoodWeights maps emotion labels to mood weights.
	MoodWeights map[string]float64 `koanf:"mood_weights"`
	// AffectPositions maps emotion labels to [valence, arousal].
	AffectPositions map[string][]float64 `koanf:"affect_positions"`

	// StreamIntervalMS is the websocket push period.
	StreamIntervalMS int `koanf:"stream_interval_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		CaptureSource:           "webcam",
		CameraDevice:            "/dev/video0",
		CaptureWidth:            640,
		CaptureHeight:           480,
		ReplayDir:               "replay",
		CaptureFPS:              20,
		CaptureFailureThreshold: 10,
		AnalysisIntervalMS:      1500,
		MinDetectionScore:       0.5,
		MinFaceSize:             32,
		InferenceBackend:        "http",
		InferenceURL:            "http://localhost:8000",
		InferenceTimeoutMS:      5000,
		GalleryDir:              "local_images",
		WatchGallery:            true,
		MatchMetric:             "cosine",
		MatchThreshold:          0.40,
		RetentionSeconds:        60,
		HistoryCapacity:         4096,
		TrackTTLSeconds:         10,
		TrackIoU:                0.3,
		MoodWeights: map[string]float64{
			"happy":    1.0,
			"surprise": 0.3,
			"neutral":  0,
			"sad":      -1.0,
			"angry":    -0.9,
			"fear":     -0.6,
			"disgust":  -0.7,
		},
		AffectPositions: map[string][]float64{
			"happy":    {0.8, 0.5},
			"angry":    {-0.4, 0.8},
			"sad":      {-0.6, -0.3},
			"fear":     {-0.5, 0.6},
			"surprise": {0.3, 0.8},
			"disgust":  {-0.6, 0.2},
			"neutral":  {0, 0},
		},
		StreamIntervalMS: 500,
	}
}

// AnalysisInterval returns AnalysisIntervalMS as a duration.
func (c *Config) AnalysisInterval() time.Duration {
	return time.Duration(c.AnalysisIntervalMS) * time.Millisecond
}

// InferenceTimeout returns InferenceTimeoutMS as a duration.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutMS) * time.Millisecond
}

// Retention returns RetentionSeconds as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// TrackTTL returns TrackTTLSeconds as a duration.
func (c *Config) TrackTTL() time.Duration {
	return time.Duration(c.TrackTTLSeconds) * time.Second
}

// StreamInterval returns StreamIntervalMS as a duration.
func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMS) * time.Millisecond
}
