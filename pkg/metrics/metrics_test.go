package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithLatencyBuckets([]float64{1, 10}),
				WithScoreBuckets([]float64{-50, 0, 50}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.galleryIdentities.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_gallery_identities" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating two managers on one registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.framesCaptured)
			RecordFrameCaptured()
			RecordFrameCaptured()

			Convey("Then counters advance", func() {
				So(testutil.ToFloat64(globalManager.framesCaptured), ShouldEqual, before+2)
			})
		})

		Convey("When updating gauges", func() {
			UpdateCaptureState(CaptureStateFailed)
			UpdateGalleryIdentities(4)
			UpdateActiveTracks(2)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.captureState), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.galleryIdentities), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.activeTracks), ShouldEqual, 2)
			})
		})

		Convey("When recording labelled metrics", func() {
			So(func() {
				RecordMailboxOverwrite("frame")
				RecordAnalysisCycle("published", 12)
				RecordFacesDetected(2)
				RecordRegionFailure("low_score")
				RecordMatch(true, 0.2)
				RecordMatch(false, 1e308)
				RecordMoodScore(-40)
				RecordInferenceLatency("detect", 30)
				RecordInferenceError("analyze")
				RecordGalleryLoadErrors(1)
				RecordGalleryRefresh()
				RecordHistorySamples("mood", 2)
				RecordHistoryEvicted("affect", 0)
				UpdateHistoryIdentities(2)
				RecordCaptureError()
				RecordCaptureReopen()
				RecordHTTPRequest("/stats", "GET", "200")
				RecordHTTPRequestDuration("/stats", "GET", "200", 1.5)
				RecordErrorByEndpoint("/faces", "POST", "client_error")
				RecordErrorByComponent("worker", "detect")
			}, ShouldNotPanic)

			So(testutil.ToFloat64(globalManager.analysisCycles.WithLabelValues("published")), ShouldBeGreaterThanOrEqualTo, 1)
			So(testutil.ToFloat64(globalManager.matches.WithLabelValues("unknown")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("When collecting system metrics", func() {
			CollectSystemMetrics()

			Convey("Then goroutines and memory are non-zero", func() {
				So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldBeGreaterThan, 0)
				So(testutil.ToFloat64(globalManager.systemMemoryUsage), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the collector context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				RunSystemCollector(ctx, 10*time.Millisecond)
				close(done)
			}()
			cancel()

			Convey("Then the collector returns", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("collector did not stop")
				}
			})
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordFrameCaptured()

		Convey("Then it exposes moodcam metrics", func() {
			count, err := testutil.GatherAndCount(GetRegistry(), "moodcam_pipeline_frames_captured_total")
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 1)
			names := []string{}
			families, _ := GetRegistry().Gather()
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "moodcam_pipeline_capture_state")
		})
	})
}
