package gallery_test

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"

	"github.com/okian/moodcam/internal/domain/gallery"
	. "github.com/smartystreets/goconvey/convey"
)

// stubEmbedder returns embeddings keyed by image width.
type stubEmbedder struct {
	byWidth map[int][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, img image.Image) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byWidth[img.Bounds().Dx()], nil
}

func TestGallery_Load(t *testing.T) {
	Convey("Given an empty gallery", t, func() {
		ctx := context.Background()
		g := gallery.New()

		Convey("When matching anything", func() {
			id, d := g.Match([]float32{1, 0})

			Convey("Then there is no match and the distance is infinite", func() {
				So(id, ShouldBeNil)
				So(math.IsInf(d, 1), ShouldBeTrue)
			})
		})

		Convey("When loading images with precomputed embeddings", func() {
			n, err := g.Load(ctx, []gallery.Image{
				{Key: "alice", Name: "Alice", Embedding: []float32{1, 0}},
				{Key: "bob", Name: "Bob", Embedding: []float32{0, 1}},
			})

			Convey("Then every identity is enrolled in order", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(g.Len(), ShouldEqual, 2)
				ids := g.Identities()
				So(ids[0].Key, ShouldEqual, "alice")
				So(ids[1].Name, ShouldEqual, "Bob")
			})
		})

		Convey("When a duplicate key appears later", func() {
			n, err := g.Load(ctx, []gallery.Image{
				{Key: "alice", Name: "Old", Embedding: []float32{1, 0}},
				{Key: "alice", Name: "New", Embedding: []float32{0, 1}},
			})

			Convey("Then the later image wins", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				id, ok := g.Get("alice")
				So(ok, ShouldBeTrue)
				So(id.Name, ShouldEqual, "New")
			})
		})

		Convey("When some images fail", func() {
			emb := &stubEmbedder{byWidth: map[int][]float32{4: {1, 0, 0}, 8: {}}}
			g = gallery.New(gallery.WithEmbedder(emb))
			n, err := g.Load(ctx, []gallery.Image{
				{Key: "ok", Image: image.NewRGBA(image.Rect(0, 0, 4, 4))},
				{Key: "empty", Image: image.NewRGBA(image.Rect(0, 0, 8, 8))},
				{Key: "short", Embedding: []float32{1, 0}},
				{Key: "noimage"},
			})

			Convey("Then they are skipped and reported", func() {
				So(n, ShouldEqual, 1)
				So(errors.Is(err, gallery.ErrGalleryLoad), ShouldBeTrue)
				So(errors.Is(err, gallery.ErrEmptyEmbedding), ShouldBeTrue)
				So(errors.Is(err, gallery.ErrDimensionMismatch), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "noimage")
			})
		})

		Convey("When the embedder itself fails", func() {
			boom := errors.New("backend down")
			g = gallery.New(gallery.WithEmbedder(&stubEmbedder{err: boom}))
			n, err := g.Load(ctx, []gallery.Image{{Key: "x", Image: image.NewRGBA(image.Rect(0, 0, 2, 2))}})

			Convey("Then the cause is preserved", func() {
				So(n, ShouldEqual, 0)
				So(errors.Is(err, boom), ShouldBeTrue)
			})
		})
	})
}

func TestGallery_Refresh(t *testing.T) {
	Convey("Given a loaded gallery", t, func() {
		ctx := context.Background()
		g := gallery.New()
		_, err := g.Load(ctx, []gallery.Image{
			{Key: "alice", Embedding: []float32{1, 0}},
			{Key: "bob", Embedding: []float32{0, 1}},
		})
		So(err, ShouldBeNil)

		Convey("When reloading without bob", func() {
			_, err := g.Load(ctx, []gallery.Image{{Key: "alice", Embedding: []float32{1, 0}}})

			Convey("Then bob is gone", func() {
				So(err, ShouldBeNil)
				_, ok := g.Get("bob")
				So(ok, ShouldBeFalse)
				id, _ := g.Match([]float32{0, 1})
				So(id, ShouldBeNil)
			})
		})

		Convey("When enrolling a new face", func() {
			id, err := g.Enroll(ctx, gallery.Image{Key: "carol", Name: "Carol", Embedding: []float32{1, 1}})

			Convey("Then it is matchable immediately and others remain", func() {
				So(err, ShouldBeNil)
				So(id.Name, ShouldEqual, "Carol")
				So(g.Len(), ShouldEqual, 3)
				got, d := g.Match([]float32{2, 2})
				So(got.Key, ShouldEqual, "carol")
				So(d, ShouldAlmostEqual, 0, 1e-9)
			})
		})

		Convey("When enrolling with the wrong dimension", func() {
			_, err := g.Enroll(ctx, gallery.Image{Key: "dave", Embedding: []float32{1, 1, 1}})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, gallery.ErrDimensionMismatch), ShouldBeTrue)
				So(g.Len(), ShouldEqual, 2)
			})
		})

		Convey("When enrolling without a key", func() {
			_, err := g.Enroll(ctx, gallery.Image{Embedding: []float32{1, 1}})
			So(errors.Is(err, gallery.ErrInvalidIdentityKey), ShouldBeTrue)
		})
	})
}

func TestGallery_ReloadIsIdempotent(t *testing.T) {
	Convey("Given a gallery loaded from images through an embedder", t, func() {
		ctx := context.Background()
		embedder := &stubEmbedder{byWidth: map[int][]float32{
			10: {1, 0},
			11: {1, 0},
			12: {0, 1},
		}}
		g := gallery.New(gallery.WithEmbedder(embedder), gallery.WithThreshold(0.4))
		images := []gallery.Image{
			{Key: "alice", Image: image.NewRGBA(image.Rect(0, 0, 10, 10))},
			{Key: "twin", Image: image.NewRGBA(image.Rect(0, 0, 11, 10))},
			{Key: "bob", Image: image.NewRGBA(image.Rect(0, 0, 12, 10))},
		}
		probes := [][]float32{
			{1, 0},     // tie between alice and twin
			{0.9, 0.1}, // near alice
			{0, 1},     // bob
			{0.3, -1},  // beyond the threshold
			{-1, 0},    // opposite of everyone
		}
		type result struct {
			key      string
			distance float64
		}
		matchAll := func() []result {
			out := make([]result, 0, len(probes))
			for _, p := range probes {
				id, d := g.Match(p)
				r := result{distance: d}
				if id != nil {
					r.key = id.Key
				}
				out = append(out, r)
			}
			return out
		}

		n, err := g.Load(ctx, images)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 3)
		first := matchAll()

		Convey("When the same images are loaded again", func() {
			n, err := g.Load(ctx, images)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			second := matchAll()

			Convey("Then every probe gets the same identity and distance", func() {
				So(second, ShouldResemble, first)
				So(first[0].key, ShouldEqual, "alice")
				So(first[2].key, ShouldEqual, "bob")
				So(first[3].key, ShouldEqual, "")
				So(first[4].key, ShouldEqual, "")
			})
		})
	})
}

func TestGallery_Match(t *testing.T) {
	Convey("Given identities with known embeddings", t, func() {
		ctx := context.Background()
		g := gallery.New(gallery.WithThreshold(0.4))
		_, err := g.Load(ctx, []gallery.Image{
			{Key: "first", Embedding: []float32{1, 0}},
			{Key: "twin", Embedding: []float32{1, 0}},
			{Key: "other", Embedding: []float32{0, 1}},
		})
		So(err, ShouldBeNil)

		Convey("When two identities are equally near", func() {
			id, d := g.Match([]float32{1, 0})

			Convey("Then the first enrolled wins", func() {
				So(id.Key, ShouldEqual, "first")
				So(d, ShouldAlmostEqual, 0, 1e-9)
			})
		})

		Convey("When the nearest exceeds the threshold", func() {
			id, d := g.Match([]float32{-1, 0.5})

			Convey("Then the face is unknown but the distance is reported", func() {
				So(id, ShouldBeNil)
				So(d, ShouldAlmostEqual, 1-0.5/math.Sqrt(1.25), 1e-6)
			})
		})

		Convey("When the nearest is within the threshold", func() {
			id, d := g.Match([]float32{1, 1})

			Convey("Then the earliest of the nearest is returned", func() {
				So(id.Key, ShouldEqual, "first")
				So(d, ShouldAlmostEqual, 1-math.Sqrt(0.5), 1e-6)
			})
		})

		Convey("When the probe is orthogonal to everyone but one", func() {
			id, _ := g.Match([]float32{0, 3})
			So(id.Key, ShouldEqual, "other")
		})

		Convey("When the probe is empty", func() {
			id, d := g.Match(nil)
			So(id, ShouldBeNil)
			So(math.IsInf(d, 1), ShouldBeTrue)
		})

		Convey("When the probe is far from everyone", func() {
			id, d := g.Match([]float32{-1, -1})
			So(id, ShouldBeNil)
			So(d, ShouldBeGreaterThan, 0.4)
		})
	})

	Convey("Given a euclidean gallery", t, func() {
		g := gallery.New(gallery.WithMetric(gallery.Euclidean), gallery.WithThreshold(1.5))
		_, err := g.Load(context.Background(), []gallery.Image{{Key: "a", Embedding: []float32{0, 0}}})
		So(err, ShouldBeNil)

		Convey("Then distance is L2", func() {
			id, d := g.Match([]float32{0.6, 0.8})
			So(id.Key, ShouldEqual, "a")
			So(d, ShouldAlmostEqual, 1, 1e-6)
			id, _ = g.Match([]float32{3, 4})
			So(id, ShouldBeNil)
		})
	})
}

func TestGallery_MatchDoesNotMutate(t *testing.T) {
	Convey("Given a probe equal to a reference", t, func() {
		g := gallery.New()
		ref := []float32{0.5, 0.5}
		_, err := g.Load(context.Background(), []gallery.Image{{Key: "a", Embedding: ref}})
		So(err, ShouldBeNil)
		ref[0] = 99

		Convey("Then enrolled embeddings are isolated from the caller's slice", func() {
			id, _ := g.Get("a")
			So(id.Embedding[0], ShouldEqual, float32(0.5))
		})

		Convey("Then concurrent matches and reloads are safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 200; j++ {
						g.Match([]float32{1, 1})
					}
				}()
			}
			for j := 0; j < 50; j++ {
				_, _ = g.Load(context.Background(), []gallery.Image{{Key: "a", Embedding: []float32{1, 1}}})
			}
			wg.Wait()
			So(g.Len(), ShouldEqual, 1)
		})
	})
}

func TestParseMetric(t *testing.T) {
	Convey("Given metric names", t, func() {
		m, err := gallery.ParseMetric("Euclidean")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, gallery.Euclidean)
		m, err = gallery.ParseMetric("")
		So(err, ShouldBeNil)
		So(m.String(), ShouldEqual, "cosine")
		_, err = gallery.ParseMetric("manhattan")
		So(err, ShouldNotBeNil)
	})
}
