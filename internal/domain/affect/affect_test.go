package affect_test

import (
	"math/rand"
	"testing"

	"github.com/okian/moodcam/internal/domain/affect"
	"github.com/okian/moodcam/internal/domain/emotion"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMapper_Map(t *testing.T) {
	Convey("Given a mapper with default positions", t, func() {
		m := affect.NewMapper()

		Convey("When the face is fully happy", func() {
			v, a := m.Map(emotion.Of(map[emotion.Label]float64{emotion.Happy: 1}))

			Convey("Then it lands on the happy position", func() {
				So(v, ShouldAlmostEqual, 0.8, 1e-9)
				So(a, ShouldAlmostEqual, 0.5, 1e-9)
			})
		})

		Convey("When the face is fully neutral", func() {
			v, a := m.Map(emotion.Of(map[emotion.Label]float64{emotion.Neutral: 1}))

			Convey("Then it is at the origin", func() {
				So(v, ShouldEqual, 0)
				So(a, ShouldEqual, 0)
			})
		})

		Convey("When the distribution is an even split of happy and sad", func() {
			v, a := m.Map(emotion.Of(map[emotion.Label]float64{emotion.Happy: 0.5, emotion.Sad: 0.5}))

			Convey("Then it is the weighted centroid", func() {
				So(v, ShouldAlmostEqual, 0.1, 1e-9)
				So(a, ShouldAlmostEqual, 0.1, 1e-9)
			})
		})

		Convey("When the distribution over-counts", func() {
			v, a := m.Map(emotion.Of(map[emotion.Label]float64{emotion.Surprise: 2, emotion.Angry: 1}))

			Convey("Then each axis is clamped", func() {
				So(v, ShouldBeBetweenOrEqual, -1, 1)
				So(a, ShouldEqual, 1)
			})
		})
	})
}

func TestMapper_Bounds(t *testing.T) {
	Convey("Given random normalized distributions", t, func() {
		m := affect.NewMapper(affect.WithPosition(emotion.Fear, affect.Point{Valence: -1, Arousal: 1}))
		rng := rand.New(rand.NewSource(11))

		Convey("Then both axes stay within [-1, 1]", func() {
			for i := 0; i < 2000; i++ {
				var d emotion.Distribution
				var sum float64
				for j := range d {
					d[j] = rng.Float64()
					sum += d[j]
				}
				for j := range d {
					d[j] /= sum
				}
				v, a := m.Map(d)
				So(v, ShouldBeBetweenOrEqual, -1, 1)
				So(a, ShouldBeBetweenOrEqual, -1, 1)
			}
		})
	})
}

func TestMapper_Options(t *testing.T) {
	Convey("Given positions from configuration", t, func() {
		m := affect.NewMapper(affect.WithPositionsFromConfig(map[string][]float64{
			"happy": {0.9, 0.1},
			"sad":   {0.1},
			"bogus": {1, 1},
		}))

		Convey("Then only valid entries override defaults", func() {
			So(m.Position(emotion.Happy), ShouldResemble, affect.Point{Valence: 0.9, Arousal: 0.1})
			So(m.Position(emotion.Sad), ShouldResemble, affect.Point{Valence: -0.6, Arousal: -0.3})
		})
	})
}
