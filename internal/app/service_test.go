package service_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/moodcam/internal/adapters/inference"
	service "github.com/okian/moodcam/internal/app"
	"github.com/okian/moodcam/internal/config"
	"github.com/okian/moodcam/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func writeFrame(t *testing.T, dir string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y * 2), B: uint8((x + y) % 256), A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "frame_001.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	replay := t.TempDir()
	writeFrame(t, replay)

	cfg := config.New()
	cfg.CaptureSource = "directory"
	cfg.ReplayDir = replay
	cfg.CaptureFPS = 100
	cfg.InferenceBackend = "simulated"
	cfg.AnalysisIntervalMS = 20
	cfg.GalleryDir = filepath.Join(t.TempDir(), "local_images")
	cfg.WatchGallery = false
	return cfg
}

func fastBackend() inference.Backend {
	return inference.NewSimulated(inference.WithLatencyRange(0, 0))
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

type downBackend struct{ inference.Backend }

func (downBackend) Ping(context.Context) error { return inference.ErrUnavailable }

func TestService_Start(t *testing.T) {
	Convey("Given a service configured with a replay source", t, func() {
		cfg := testConfig(t)

		Convey("When the inference backend is unreachable", func() {
			svc := service.New(cfg, service.WithBackend(downBackend{fastBackend()}))
			err := svc.Start(context.Background())

			Convey("Then start fails", func() {
				So(errors.Is(err, service.ErrBackendUnhealthy), ShouldBeTrue)
				So(errors.Is(err, inference.ErrUnavailable), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When started", func() {
			svc := service.New(cfg, service.WithBackend(fastBackend()))
			So(svc.Start(context.Background()), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the gallery folder is created with instructions", func() {
				_, err := os.Stat(filepath.Join(cfg.GalleryDir, "INSTRUCTIONS.txt"))
				So(err, ShouldBeNil)
				So(svc.Identities(context.Background()), ShouldBeEmpty)
			})

			Convey("Then an overlay with one unknown face is published", func() {
				So(waitFor(func() bool {
					ov := svc.Overlay()
					return ov != nil && len(ov.Detections) == 1
				}), ShouldBeTrue)
				So(svc.Overlay().Detections[0].Label, ShouldEqual, "Unknown")
				So(svc.Frame(), ShouldNotBeNil)

				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["identities"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_SaveFace(t *testing.T) {
	Convey("Given a running service that sees one face", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		svc := service.New(cfg, service.WithBackend(fastBackend()))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(waitFor(func() bool {
			ov := svc.Overlay()
			return ov != nil && len(ov.Detections) == 1
		}), ShouldBeTrue)

		Convey("When the face is saved as Jane Doe", func() {
			id, err := svc.SaveFace(ctx, "Jane Doe", 0)
			So(err, ShouldBeNil)

			Convey("Then the image is stored and the identity is matchable", func() {
				So(id.Key, ShouldEqual, "jane_doe")
				So(id.Name, ShouldEqual, "Jane Doe")
				_, err := os.Stat(filepath.Join(cfg.GalleryDir, "Jane_Doe.png"))
				So(err, ShouldBeNil)
				So(svc.Identities(ctx), ShouldHaveLength, 1)

				So(waitFor(func() bool {
					h, err := svc.History(ctx, "jane_doe", time.Minute)
					return err == nil && len(h.Mood) > 0
				}), ShouldBeTrue)
				So(waitFor(func() bool {
					ov := svc.Overlay()
					return len(ov.Detections) == 1 && ov.Detections[0].Key == "jane_doe"
				}), ShouldBeTrue)
				So(svc.Stream(ctx).Latest, ShouldNotBeEmpty)
			})
		})

		Convey("When an older photo of the same person is in the gallery", func() {
			writeFrame(t, cfg.GalleryDir)
			So(os.Rename(filepath.Join(cfg.GalleryDir, "frame_001.png"), filepath.Join(cfg.GalleryDir, "jane.png")), ShouldBeNil)
			_, err := svc.RefreshGallery(ctx)
			So(err, ShouldBeNil)

			id, err := svc.SaveFace(ctx, "Jane", 0)
			So(err, ShouldBeNil)

			Convey("Then the new face replaces the old record", func() {
				So(id.Key, ShouldEqual, "jane")
				So(id.Source, ShouldEqual, filepath.Join(cfg.GalleryDir, "Jane.png"))
				ids := svc.Identities(ctx)
				So(ids, ShouldHaveLength, 1)
				So(ids[0].Source, ShouldEqual, id.Source)
				_, err := os.Stat(filepath.Join(cfg.GalleryDir, "jane.png.replaced"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When the detection index is out of range", func() {
			_, err := svc.SaveFace(ctx, "Jane", 3)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrDetectionIndex), ShouldBeTrue)
			})
		})

		Convey("When the name is blank", func() {
			_, err := svc.SaveFace(ctx, "  ", 0)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidName), ShouldBeTrue)
			})
		})
	})
}

func TestService_RefreshGallery(t *testing.T) {
	Convey("Given a gallery folder with one good and one broken image", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		So(os.MkdirAll(cfg.GalleryDir, 0o755), ShouldBeNil)
		writeFrame(t, cfg.GalleryDir)
		So(os.Rename(filepath.Join(cfg.GalleryDir, "frame_001.png"), filepath.Join(cfg.GalleryDir, "alex_johnson.png")), ShouldBeNil)
		So(os.WriteFile(filepath.Join(cfg.GalleryDir, "broken.jpg"), []byte("nope"), 0o600), ShouldBeNil)

		svc := service.New(cfg, service.WithBackend(fastBackend()))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When refreshed", func() {
			res, err := svc.RefreshGallery(ctx)

			Convey("Then the good image loads and the broken one is reported", func() {
				So(err, ShouldBeNil)
				So(res.Loaded, ShouldEqual, 1)
				So(res.Skipped, ShouldHaveLength, 1)
				So(res.Skipped[0], ShouldContainSubstring, "broken.jpg")
				ids := svc.Identities(ctx)
				So(ids, ShouldHaveLength, 1)
				So(ids[0].Name, ShouldEqual, "alex johnson")
			})
		})
	})
}

func TestService_NotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(nil)
		ctx := context.Background()

		Convey("Then reads are empty and actions fail", func() {
			So(svc.Overlay(), ShouldBeNil)
			So(svc.Frame(), ShouldBeNil)
			So(svc.Identities(ctx), ShouldBeEmpty)
			_, err := svc.History(ctx, "jane", time.Minute)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.RefreshGallery(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Stream(ctx).Overlay, ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			svc.Stop()
		})
	})
}
