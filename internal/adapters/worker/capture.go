package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/moodcam/internal/adapters/capture"
	"github.com/okian/moodcam/internal/adapters/mailbox"
	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/pkg/logger"
	"github.com/okian/moodcam/pkg/metrics"
)

const (
	defaultCaptureFPS       = 20
	defaultFailureThreshold = 10
	defaultMinBackoff       = 100 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
)

// CaptureState is the health of the frame source.
type CaptureState int32

// Capture states, matching the capture_state gauge.
const (
	CaptureStopped    CaptureState = metrics.CaptureStateStopped
	CaptureRunning    CaptureState = metrics.CaptureStateRunning
	CaptureRecovering CaptureState = metrics.CaptureStateRecovering
	CaptureFailed     CaptureState = metrics.CaptureStateFailed
)

func (s CaptureState) String() string {
	switch s {
	case CaptureStopped:
		return "stopped"
	case CaptureRunning:
		return "running"
	case CaptureRecovering:
		return "recovering"
	case CaptureFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CaptureStats is a point-in-time view of the capture loop.
type CaptureStats struct {
	State               string    `json:"state"`
	Source              string    `json:"source"`
	Frames              uint64    `json:"frames"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFrameAt         time.Time `json:"last_frame_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// CaptureLoop reads frames from a source at a bounded rate and publishes each
// into the frame mailbox, together with the latest overlay for rendering.
type CaptureLoop struct {
	source   capture.Source
	frames   *mailbox.Mailbox[model.Frame]
	overlays *mailbox.Mailbox[model.Overlay]
	renders  *mailbox.Mailbox[model.RenderFrame]

	fps              float64
	failureThreshold int
	minBackoff       time.Duration
	maxBackoff       time.Duration
	now              func() time.Time
	logger           logger.Logger
	limiter          *rate.Limiter

	opened   bool
	state    atomic.Int32
	frameSeq atomic.Uint64

	mu        sync.RWMutex
	failures  int
	lastFrame time.Time
	lastErr   error

	started      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

var _ Loop = (*CaptureLoop)(nil)

// NewCaptureLoop creates a capture loop. renders may be nil when nothing displays frames.
func NewCaptureLoop(
	source capture.Source,
	frames *mailbox.Mailbox[model.Frame],
	overlays *mailbox.Mailbox[model.Overlay],
	renders *mailbox.Mailbox[model.RenderFrame],
	opts ...CaptureOption,
) *CaptureLoop {
	c := &CaptureLoop{
		source:           source,
		frames:           frames,
		overlays:         overlays,
		renders:          renders,
		fps:              defaultCaptureFPS,
		failureThreshold: defaultFailureThreshold,
		minBackoff:       defaultMinBackoff,
		maxBackoff:       defaultMaxBackoff,
		now:              time.Now,
		logger:           logger.Get().Named("capture"),
		shutdown:         make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = rate.NewLimiter(rate.Limit(c.fps), 1)
	c.logger = c.logger.With(logger.String("source", source.Name()))
	return c
}

// State returns the source health.
func (c *CaptureLoop) State() CaptureState {
	return CaptureState(c.state.Load())
}

func (c *CaptureLoop) setState(s CaptureState) {
	c.state.Store(int32(s))
	metrics.UpdateCaptureState(int(s))
}

// Run captures frames until ctx is cancelled or Shutdown is called. Read
// failures close the source and reopen it after an exponential backoff.
func (c *CaptureLoop) Run(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	defer close(c.done)
	defer c.setState(CaptureStopped)
	defer c.closeSource(ctx)

	c.logger.Info(ctx, "capture loop started", logger.Float64("fps", c.fps))
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		if err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !c.sleep(ctx, c.backoff()) {
				return
			}
		}
	}
}

// Step opens the source if needed and captures one frame, waiting on the rate
// limiter first.
func (c *CaptureLoop) Step(ctx context.Context) error {
	if !c.opened {
		if c.failureCount() > 0 {
			metrics.RecordCaptureReopen()
		}
		if err := c.source.Open(ctx); err != nil {
			c.fail(ctx, err)
			return err
		}
		c.opened = true
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	img, err := c.source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.closeSource(ctx)
		c.fail(ctx, err)
		return err
	}

	frame := &model.Frame{
		Seq:        c.frameSeq.Add(1),
		CapturedAt: c.now(),
		Image:      img,
	}
	c.frames.Put(frame)
	if c.renders != nil {
		overlay, _, _ := c.overlays.Peek()
		c.renders.Put(&model.RenderFrame{Frame: frame, Overlay: overlay})
	}
	metrics.RecordFrameCaptured()
	c.succeed(ctx, frame.CapturedAt)
	return nil
}

// Shutdown stops the loop and waits for the source to close.
func (c *CaptureLoop) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
	if !c.started.Load() {
		c.closeSource(ctx)
		c.setState(CaptureStopped)
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (c *CaptureLoop) closeSource(ctx context.Context) {
	if !c.opened {
		return
	}
	c.opened = false
	if err := c.source.Close(); err != nil && !errors.Is(err, capture.ErrClosed) {
		c.logger.Warn(ctx, "failed to close source", logger.Error(err))
	}
}

func (c *CaptureLoop) fail(ctx context.Context, err error) {
	metrics.RecordCaptureError()

	c.mu.Lock()
	c.failures++
	n := c.failures
	c.lastErr = err
	c.mu.Unlock()

	switch {
	case n == c.failureThreshold:
		c.setState(CaptureFailed)
		c.logger.Error(ctx, "capture source failing persistently", logger.Int("failures", n), logger.Error(err))
		metrics.RecordErrorByComponent("capture", "persistent_failure")
	case n > c.failureThreshold:
		c.logger.Debug(ctx, "capture still failing", logger.Int("failures", n), logger.Error(err))
	default:
		c.setState(CaptureRecovering)
		c.logger.Warn(ctx, "capture read failed", logger.Int("failures", n), logger.Error(err))
	}
}

func (c *CaptureLoop) succeed(ctx context.Context, at time.Time) {
	c.mu.Lock()
	recovered := c.failures > 0
	c.failures = 0
	c.lastFrame = at
	c.lastErr = nil
	c.mu.Unlock()

	if c.State() != CaptureRunning {
		c.setState(CaptureRunning)
		if recovered {
			c.logger.Info(ctx, "capture source recovered")
		}
	}
}

func (c *CaptureLoop) failureCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failures
}

func (c *CaptureLoop) backoff() time.Duration {
	d := c.minBackoff
	for i := 1; i < c.failureCount() && d < c.maxBackoff; i++ {
		d *= 2
	}
	return min(d, c.maxBackoff)
}

func (c *CaptureLoop) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.shutdown:
		return false
	case <-t.C:
		return true
	}
}

// Stats returns a snapshot of the capture loop.
func (c *CaptureLoop) Stats() CaptureStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CaptureStats{
		State:               c.State().String(),
		Source:              c.source.Name(),
		Frames:              c.frameSeq.Load(),
		ConsecutiveFailures: c.failures,
		LastFrameAt:         c.lastFrame,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
