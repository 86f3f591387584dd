// Package model contains domain models passed between layers.
package model

import (
	"image"
	"time"

	"github.com/okian/moodcam/internal/domain/emotion"
	"github.com/okian/moodcam/internal/domain/gallery"
)

// Frame is one captured image. Immutable once published.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      image.Image
}

// Region is a face bounding box reported by the detector.
type Region struct {
	BBox  image.Rectangle
	Score float64 // detector confidence
}

// Analysis is the classifier output for one face crop.
type Analysis struct {
	Emotions  emotion.Distribution
	Embedding []float32 // empty when the backend does not embed
}

// DetectionResult is the per-face outcome of one analysis cycle. Never persisted.
type DetectionResult struct {
	Region
	Emotions emotion.Distribution
	Identity *gallery.Identity // nil means unknown
	Distance float64
	Key      string // identity key or transient track key
	Mood     float64
	Valence  float64
	Arousal  float64
}

// Known reports whether the face matched a gallery identity.
func (d *DetectionResult) Known() bool {
	return d.Identity != nil
}

// Label is the text drawn next to the face box.
func (d *DetectionResult) Label() string {
	if d.Identity != nil {
		return d.Identity.Name
	}
	return "Unknown"
}

// MoodSample is one mood score observation.
type MoodSample struct {
	Key       string    `json:"-"`
	Timestamp time.Time `json:"t"`
	Score     float64   `json:"score"`
}

// AffectSample is one valence/arousal observation.
type AffectSample struct {
	Key       string    `json:"-"`
	Timestamp time.Time `json:"t"`
	Valence   float64   `json:"valence"`
	Arousal   float64   `json:"arousal"`
}

// Batch groups the samples of one analysis cycle so they are committed together.
type Batch struct {
	Mood   []MoodSample
	Affect []AffectSample
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Mood) + len(b.Affect)
}

// OverlayItem is the render-ready annotation for one face.
type OverlayItem struct {
	BBox       [4]int        `json:"bbox"` // x1, y1, x2, y2
	Key        string        `json:"key"`
	Label      string        `json:"label"`
	Known      bool          `json:"known"`
	Distance   float64       `json:"distance,omitempty"`
	Dominant   emotion.Label `json:"dominant"`
	Confidence float64       `json:"confidence"`
	Mood       float64       `json:"mood"`
	Valence    float64       `json:"valence"`
	Arousal    float64       `json:"arousal"`
}

// Rect returns the item's bounding box as a rectangle.
func (o *OverlayItem) Rect() image.Rectangle {
	return image.Rect(o.BBox[0], o.BBox[1], o.BBox[2], o.BBox[3])
}

// Overlay is the annotation set of the latest completed analysis cycle.
type Overlay struct {
	Seq        uint64        `json:"seq"`
	FrameSeq   uint64        `json:"frame_seq"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Detections []OverlayItem `json:"detections"`
	// Frame is the image the detections were computed on.
	Frame *Frame `json:"-"`
}

// NewOverlayItem builds the annotation for a detection result.
func NewOverlayItem(d *DetectionResult) OverlayItem {
	dominant, confidence := d.Emotions.Dominant()
	item := OverlayItem{
		BBox:       [4]int{d.BBox.Min.X, d.BBox.Min.Y, d.BBox.Max.X, d.BBox.Max.Y},
		Key:        d.Key,
		Label:      d.Label(),
		Known:      d.Known(),
		Dominant:   dominant,
		Confidence: confidence,
		Mood:       d.Mood,
		Valence:    d.Valence,
		Arousal:    d.Arousal,
	}
	if d.Known() {
		item.Distance = d.Distance
	}
	return item
}

// RenderFrame pairs a captured frame with the most recent overlay for display.
type RenderFrame struct {
	Frame   *Frame
	Overlay *Overlay
}
