package types_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/moodcam/internal/domain/model"
	types "github.com/okian/moodcam/internal/domain/types"
)

func TestHistoryJSON(t *testing.T) {
	Convey("Given a history for jane", t, func() {
		ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		h := types.History{
			Key:    "jane",
			Window: types.Duration(30 * time.Second),
			Mood:   []model.MoodSample{{Key: "jane", Timestamp: ts, Score: 90}},
			Affect: []model.AffectSample{},
		}

		Convey("When encoded", func() {
			b, err := json.Marshal(h)
			So(err, ShouldBeNil)

			Convey("Then the window is a duration string and sample keys are omitted", func() {
				s := string(b)
				So(s, ShouldContainSubstring, `"window":"30s"`)
				So(s, ShouldContainSubstring, `"score":90`)
				So(s, ShouldNotContainSubstring, `"Key"`)
				So(s, ShouldContainSubstring, `"affect":[]`)
			})
		})
	})
}

func TestDuration(t *testing.T) {
	Convey("Given duration text", t, func() {
		var d types.Duration
		So(d.UnmarshalText([]byte("1m30s")), ShouldBeNil)
		So(time.Duration(d), ShouldEqual, 90*time.Second)
		So(d.UnmarshalText([]byte("soon")), ShouldNotBeNil)
	})
}
