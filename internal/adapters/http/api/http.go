// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/moodcam/internal/adapters/repository"
	service "github.com/okian/moodcam/internal/app"
	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/internal/domain/types"
	"github.com/okian/moodcam/pkg/logger"
)

const defaultStreamInterval = 500 * time.Millisecond

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Overlay() *model.Overlay
	Frame() *model.RenderFrame
	Stream(ctx context.Context) types.StreamMessage

	Identities(ctx context.Context) []types.Identity
	History(ctx context.Context, key string, window time.Duration) (types.History, error)

	RefreshGallery(ctx context.Context) (types.Refresh, error)
	SaveFace(ctx context.Context, name string, detection int) (types.Identity, error)
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithStreamInterval sets the websocket push period.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	streamInterval time.Duration
	logger         logger.Logger

	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	overlayHandler *OverlayHandler
	galleryHandler *GalleryHandler
	historyHandler *HistoryHandler
	streamHandler  *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{streamInterval: defaultStreamInterval}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.overlayHandler = NewOverlayHandler(deps)
	s.galleryHandler = NewGalleryHandler(deps, s.logger)
	s.historyHandler = NewHistoryHandler(deps)
	s.streamHandler = NewStreamHandler(deps, s.streamInterval, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/overlay", MetricsMiddleware(s.overlayHandler.HandleOverlay, "overlay"))
	mux.HandleFunc("/frame.jpg", MetricsMiddleware(s.overlayHandler.HandleFrame, "frame"))
	mux.HandleFunc("/identities", MetricsMiddleware(s.galleryHandler.HandleIdentities, "identities"))
	mux.HandleFunc("/gallery/refresh", MetricsMiddleware(s.galleryHandler.HandleRefresh, "gallery_refresh"))
	mux.HandleFunc("/faces", MetricsMiddleware(s.galleryHandler.HandleSaveFace, "faces"))
	mux.HandleFunc("/history/", MetricsMiddleware(s.historyHandler.HandleHistory, "history"))
	// The middleware's response writer cannot be hijacked, so the stream is registered bare.
	mux.HandleFunc("/ws", s.streamHandler.HandleStream)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service errors into HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrNoFrame):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, service.ErrNoOverlay):
		writeError(w, http.StatusConflict, "no_overlay", err)
	case errors.Is(err, service.ErrDetectionIndex),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, repository.ErrInvalidKey),
		errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
