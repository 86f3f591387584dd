package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/moodcam/internal/domain/types"
)

// HistoryDependencies defines the history reads used by the handler.
type HistoryDependencies interface {
	History(ctx context.Context, key string, window time.Duration) (types.History, error)
}

// HistoryHandler serves the retained series of one key.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleHistory handles GET /history/{key}?window=30s. A missing window means
// the whole retention period.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/history/")
	if key == "" || strings.Contains(key, "/") {
		writeServiceError(w, fmt.Errorf("%w: missing key", ErrBadRequest))
		return
	}
	window, err := parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	hist, err := h.deps.History(r.Context(), key, window)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// parseWindow accepts a Go duration ("90s") or plain seconds ("90").
func parseWindow(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, v)
	}
	return d, nil
}
