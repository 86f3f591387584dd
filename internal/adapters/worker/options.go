package worker

import (
	"time"

	"github.com/okian/moodcam/pkg/logger"
)

// AnalysisOption applies a configuration option to the AnalysisLoop.
type AnalysisOption func(*AnalysisLoop)

// WithInterval sets the pause between the end of one cycle and the start of the next.
func WithInterval(d time.Duration) AnalysisOption {
	return func(a *AnalysisLoop) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithMinDetectionScore drops regions the detector is less sure about.
func WithMinDetectionScore(score float64) AnalysisOption {
	return func(a *AnalysisLoop) {
		if score >= 0 {
			a.minScore = score
		}
	}
}

// WithMinFaceSize drops regions whose shorter side is smaller than px.
func WithMinFaceSize(px int) AnalysisOption {
	return func(a *AnalysisLoop) {
		if px >= 0 {
			a.minFace = px
		}
	}
}

// WithAnalysisClock overrides the sample timestamp source.
func WithAnalysisClock(now func() time.Time) AnalysisOption {
	return func(a *AnalysisLoop) {
		if now != nil {
			a.now = now
		}
	}
}

// WithAnalysisLogger sets a custom logger.
func WithAnalysisLogger(l logger.Logger) AnalysisOption {
	return func(a *AnalysisLoop) {
		if l != nil {
			a.logger = l
		}
	}
}

// CaptureOption applies a configuration option to the CaptureLoop.
type CaptureOption func(*CaptureLoop)

// WithFPS bounds the capture rate.
func WithFPS(fps float64) CaptureOption {
	return func(c *CaptureLoop) {
		if fps > 0 {
			c.fps = fps
		}
	}
}

// WithFailureThreshold sets the consecutive failures that mark the source as failed.
func WithFailureThreshold(n int) CaptureOption {
	return func(c *CaptureLoop) {
		if n > 0 {
			c.failureThreshold = n
		}
	}
}

// WithBackoff sets the reopen delay range. The delay doubles per consecutive failure.
func WithBackoff(minDelay, maxDelay time.Duration) CaptureOption {
	return func(c *CaptureLoop) {
		if minDelay > 0 && maxDelay >= minDelay {
			c.minBackoff = minDelay
			c.maxBackoff = maxDelay
		}
	}
}

// WithCaptureClock overrides the frame timestamp source.
func WithCaptureClock(now func() time.Time) CaptureOption {
	return func(c *CaptureLoop) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCaptureLogger sets a custom logger.
func WithCaptureLogger(l logger.Logger) CaptureOption {
	return func(c *CaptureLoop) {
		if l != nil {
			c.logger = l
		}
	}
}
