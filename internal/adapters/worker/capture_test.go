package worker

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/moodcam/internal/adapters/mailbox"
	"github.com/okian/moodcam/internal/domain/model"
)

var errRead = errors.New("read failed")

type fakeSource struct {
	mu      sync.Mutex
	failing bool
	opens   int
	closes  int
	reads   int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return nil
}

func (s *fakeSource) Read(_ context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failing {
		return nil, errRead
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func TestCaptureLoop_Step(t *testing.T) {
	Convey("Given a capture loop over a fake source", t, func() {
		src := &fakeSource{}
		frames := mailbox.New[model.Frame]()
		overlays := mailbox.New[model.Overlay]()
		renders := mailbox.New[model.RenderFrame]()
		loop := NewCaptureLoop(src, frames, overlays, renders, WithFPS(1000), WithFailureThreshold(3))
		ctx := context.Background()

		Convey("When a frame is read", func() {
			overlays.Put(&model.Overlay{Seq: 7})
			So(loop.Step(ctx), ShouldBeNil)

			Convey("Then it is published with the latest overlay", func() {
				f, _, ok := frames.Peek()
				So(ok, ShouldBeTrue)
				So(f.Seq, ShouldEqual, 1)
				r, _, ok := renders.Peek()
				So(ok, ShouldBeTrue)
				So(r.Frame, ShouldEqual, f)
				So(r.Overlay.Seq, ShouldEqual, 7)
				So(loop.State(), ShouldEqual, CaptureRunning)
			})
		})

		Convey("When reads fail up to the threshold", func() {
			src.setFailing(true)
			for i := 0; i < 2; i++ {
				So(errors.Is(loop.Step(ctx), errRead), ShouldBeTrue)
			}
			So(loop.State(), ShouldEqual, CaptureRecovering)
			So(errors.Is(loop.Step(ctx), errRead), ShouldBeTrue)

			Convey("Then the source is reported as failed and reopened each time", func() {
				So(loop.State(), ShouldEqual, CaptureFailed)
				s := loop.Stats()
				So(s.ConsecutiveFailures, ShouldEqual, 3)
				So(s.LastError, ShouldContainSubstring, "read failed")
				So(src.opens, ShouldEqual, 3)
				So(src.closes, ShouldEqual, 3)
				_, _, ok := frames.Peek()
				So(ok, ShouldBeFalse)
			})

			Convey("Then a successful read recovers", func() {
				src.setFailing(false)
				So(loop.Step(ctx), ShouldBeNil)
				So(loop.State(), ShouldEqual, CaptureRunning)
				So(loop.Stats().ConsecutiveFailures, ShouldEqual, 0)
			})
		})

		Convey("When failures accumulate", func() {
			loop.minBackoff, loop.maxBackoff = 10*time.Millisecond, 40*time.Millisecond
			src.setFailing(true)
			for i := 0; i < 5; i++ {
				_ = loop.Step(ctx)
			}

			Convey("Then the backoff is capped", func() {
				So(loop.backoff(), ShouldEqual, 40*time.Millisecond)
			})
		})
	})
}

func TestCaptureLoop_RunShutdown(t *testing.T) {
	Convey("Given a running capture loop", t, func() {
		src := &fakeSource{}
		frames := mailbox.New[model.Frame]()
		loop := NewCaptureLoop(src, frames, mailbox.New[model.Overlay](), nil, WithFPS(200))
		go loop.Run(context.Background())

		So(waitFor(func() bool { return frames.Seq() >= 3 }), ShouldBeTrue)

		Convey("When shut down", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			Convey("Then the source is closed and the loop stopped", func() {
				So(loop.Shutdown(ctx), ShouldBeNil)
				So(loop.State(), ShouldEqual, CaptureStopped)
				src.mu.Lock()
				defer src.mu.Unlock()
				So(src.closes, ShouldEqual, 1)
			})
		})
	})
}

func TestCaptureLoop_ShutdownWithoutRun(t *testing.T) {
	Convey("Given a capture loop stepped by hand but never run", t, func() {
		src := &fakeSource{}
		loop := NewCaptureLoop(src, mailbox.New[model.Frame](), mailbox.New[model.Overlay](), nil, WithFPS(1000))
		So(loop.Step(context.Background()), ShouldBeNil)

		Convey("When shut down", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			start := time.Now()

			Convey("Then it returns at once and closes the source", func() {
				So(loop.Shutdown(ctx), ShouldBeNil)
				So(time.Since(start), ShouldBeLessThan, 500*time.Millisecond)
				So(loop.State(), ShouldEqual, CaptureStopped)
				src.mu.Lock()
				defer src.mu.Unlock()
				So(src.closes, ShouldEqual, 1)
			})
		})
	})
}
