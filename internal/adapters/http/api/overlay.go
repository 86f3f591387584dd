package api

import (
	"image"
	"image/color"
	"net/http"
	"strconv"

	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/pkg/imaging"
)

var (
	knownColor   = color.RGBA{G: 200, A: 255}
	unknownColor = color.RGBA{R: 220, A: 255}
)

// OverlayDependencies defines the reads used by the overlay handlers.
type OverlayDependencies interface {
	Overlay() *model.Overlay
	Frame() *model.RenderFrame
}

// OverlayHandler serves the latest overlay and the annotated frame.
type OverlayHandler struct {
	deps OverlayDependencies
}

// NewOverlayHandler creates a new overlay handler.
func NewOverlayHandler(deps OverlayDependencies) *OverlayHandler {
	return &OverlayHandler{deps: deps}
}

// HandleOverlay handles GET /overlay. Before the first analysis cycle it
// returns an empty overlay.
func (h *OverlayHandler) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ov := h.deps.Overlay()
	if ov == nil {
		ov = &model.Overlay{Detections: []model.OverlayItem{}}
	}
	writeJSON(w, http.StatusOK, ov)
}

// HandleFrame handles GET /frame.jpg: the latest captured frame with the boxes
// of the overlay current at capture time. ?raw=1 skips the boxes.
func (h *OverlayHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rf := h.deps.Frame()
	if rf == nil || rf.Frame == nil || rf.Frame.Image == nil {
		writeServiceError(w, ErrNoFrame)
		return
	}

	img := rf.Frame.Image
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); !raw && rf.Overlay != nil {
		img = annotate(img, rf.Overlay)
	}
	b, err := imaging.EncodeJPEG(img)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(rf.Frame.Seq, 10))
	_, _ = w.Write(b)
}

func annotate(img image.Image, ov *model.Overlay) image.Image {
	var known, unknown []image.Rectangle
	for i := range ov.Detections {
		if ov.Detections[i].Known {
			known = append(known, ov.Detections[i].Rect())
		} else {
			unknown = append(unknown, ov.Detections[i].Rect())
		}
	}
	out := imaging.Annotate(img, known, knownColor)
	return imaging.Annotate(out, unknown, unknownColor)
}
