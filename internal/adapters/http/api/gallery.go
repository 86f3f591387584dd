package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/moodcam/internal/domain/types"
	"github.com/okian/moodcam/pkg/logger"
)

const maxSaveFaceBody = 4 << 10

// GalleryDependencies defines the gallery operations used by the handlers.
type GalleryDependencies interface {
	Identities(ctx context.Context) []types.Identity
	RefreshGallery(ctx context.Context) (types.Refresh, error)
	SaveFace(ctx context.Context, name string, detection int) (types.Identity, error)
}

// GalleryHandler lists, reloads and extends the known identities.
type GalleryHandler struct {
	deps   GalleryDependencies
	logger logger.Logger
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(deps GalleryDependencies, l logger.Logger) *GalleryHandler {
	return &GalleryHandler{deps: deps, logger: l}
}

// HandleIdentities handles GET /identities.
func (h *GalleryHandler) HandleIdentities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Identities(r.Context()))
}

// HandleRefresh handles POST /gallery/refresh.
func (h *GalleryHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.RefreshGallery(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "gallery refresh failed", logger.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSaveFace handles POST /faces {"name": "...", "detection": i}.
func (h *GalleryHandler) HandleSaveFace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.SaveFaceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSaveFaceBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeServiceError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeServiceError(w, fmt.Errorf("%w: missing name", ErrBadRequest))
		return
	}

	id, err := h.deps.SaveFace(r.Context(), req.Name, req.Detection)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}
