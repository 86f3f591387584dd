// Package types contains the read shapes shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/okian/moodcam/internal/domain/model"
)

// Identity is a known person as listed by the API.
type Identity struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Source     string    `json:"source,omitempty"`
	EnrolledAt time.Time `json:"enrolled_at"`
	// Latest is the most recent mood score, nil when none is retained.
	Latest *float64 `json:"latest,omitempty"`
}

// History is the retained mood and affect series of one key.
type History struct {
	Key    string               `json:"key"`
	Window Duration             `json:"window"`
	Mood   []model.MoodSample   `json:"mood"`
	Affect []model.AffectSample `json:"affect"`
}

// Refresh reports the outcome of a gallery reload.
type Refresh struct {
	Loaded  int      `json:"loaded"`
	Skipped []string `json:"skipped,omitempty"`
}

// SaveFaceRequest is the body of POST /faces.
type SaveFaceRequest struct {
	Name      string `json:"name"`
	Detection int    `json:"detection"`
}

// Latest pairs the newest mood and affect samples of a key.
type Latest struct {
	Key     string    `json:"key"`
	T       time.Time `json:"t"`
	Mood    float64   `json:"mood"`
	Valence float64   `json:"valence"`
	Arousal float64   `json:"arousal"`
}

// StreamMessage is pushed to websocket clients.
type StreamMessage struct {
	Overlay *model.Overlay `json:"overlay"`
	Latest  []Latest       `json:"latest"`
}

// Duration marshals as a Go duration string, e.g. "1m0s".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
