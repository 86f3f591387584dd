package tracking_test

import (
	"image"
	"strings"
	"testing"
	"time"

	"github.com/okian/moodcam/internal/domain/tracking"
	. "github.com/smartystreets/goconvey/convey"
)

func TestIoU(t *testing.T) {
	Convey("Given rectangles", t, func() {
		a := image.Rect(0, 0, 10, 10)

		So(tracking.IoU(a, a), ShouldEqual, 1)
		So(tracking.IoU(a, image.Rect(20, 20, 30, 30)), ShouldEqual, 0)
		So(tracking.IoU(a, image.Rect(5, 0, 15, 10)), ShouldAlmostEqual, 50.0/150.0, 1e-9)
		So(tracking.IoU(a, image.Rectangle{}), ShouldEqual, 0)
	})
}

func TestTracker_Assign(t *testing.T) {
	Convey("Given a tracker", t, func() {
		tr := tracking.New(tracking.WithMinIoU(0.3), tracking.WithTTL(time.Minute))

		Convey("When a box is seen for the first time", func() {
			keys := tr.Assign([]image.Rectangle{image.Rect(0, 0, 100, 100)})

			Convey("Then it gets a fresh transient key", func() {
				So(keys, ShouldHaveLength, 1)
				So(strings.HasPrefix(keys[0], "unknown-"), ShouldBeTrue)
				So(keys[0], ShouldHaveLength, len("unknown-")+8)
				So(tracking.IsTransient(keys[0]), ShouldBeTrue)
				So(tr.Len(), ShouldEqual, 1)
			})

			Convey("And the box moves a little next cycle", func() {
				next := tr.Assign([]image.Rectangle{image.Rect(10, 5, 110, 105)})

				Convey("Then the track continues", func() {
					So(next[0], ShouldEqual, keys[0])
					So(tr.Len(), ShouldEqual, 1)
				})
			})

			Convey("And a box appears elsewhere", func() {
				next := tr.Assign([]image.Rectangle{image.Rect(300, 300, 400, 400)})

				Convey("Then a new track starts", func() {
					So(next[0], ShouldNotEqual, keys[0])
					So(tr.Len(), ShouldEqual, 2)
				})
			})

			Convey("And two boxes overlap the same track", func() {
				next := tr.Assign([]image.Rectangle{
					image.Rect(0, 0, 100, 100),
					image.Rect(5, 5, 105, 105),
				})

				Convey("Then only the first continues it", func() {
					So(next[0], ShouldEqual, keys[0])
					So(next[1], ShouldNotEqual, keys[0])
				})
			})

			Convey("And the track is forgotten", func() {
				tr.Forget(keys[0])
				next := tr.Assign([]image.Rectangle{image.Rect(0, 0, 100, 100)})
				So(next[0], ShouldNotEqual, keys[0])
			})
		})

		Convey("When named keys are checked", func() {
			So(tracking.IsTransient("jane_doe"), ShouldBeFalse)
		})
	})
}

func TestTracker_Expiry(t *testing.T) {
	Convey("Given a tracker with a short TTL", t, func() {
		tr := tracking.New(tracking.WithTTL(30 * time.Millisecond))
		first := tr.Assign([]image.Rectangle{image.Rect(0, 0, 50, 50)})

		Convey("When the face is absent longer than the TTL", func() {
			time.Sleep(60 * time.Millisecond)
			next := tr.Assign([]image.Rectangle{image.Rect(0, 0, 50, 50)})

			Convey("Then the old track has expired", func() {
				So(next[0], ShouldNotEqual, first[0])
			})
		})
	})
}
