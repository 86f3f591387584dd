// Package service wires capture, analysis, the identity gallery and the
// history store into the application used by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/moodcam/internal/adapters/capture"
	"github.com/okian/moodcam/internal/adapters/galleryfs"
	"github.com/okian/moodcam/internal/adapters/inference"
	"github.com/okian/moodcam/internal/adapters/mailbox"
	"github.com/okian/moodcam/internal/adapters/repository"
	"github.com/okian/moodcam/internal/adapters/worker"
	"github.com/okian/moodcam/internal/config"
	"github.com/okian/moodcam/internal/domain/affect"
	"github.com/okian/moodcam/internal/domain/gallery"
	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/internal/domain/scoring"
	"github.com/okian/moodcam/internal/domain/tracking"
	"github.com/okian/moodcam/internal/domain/types"
	"github.com/okian/moodcam/pkg/imaging"
	"github.com/okian/moodcam/pkg/logger"
	"github.com/okian/moodcam/pkg/metrics"
)

const (
	pingTimeout            = 5 * time.Second
	loopShutdownTimeout    = 10 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

// Service owns the pipeline components and their background loops.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Components
	source   capture.Source
	backend  inference.Backend
	gallery  *gallery.Gallery
	history  *repository.HistoryStore
	tracker  *tracking.Tracker
	frames   *mailbox.Mailbox[model.Frame]
	overlays *mailbox.Mailbox[model.Overlay]
	renders  *mailbox.Mailbox[model.RenderFrame]
	capture  *worker.CaptureLoop
	analysis *worker.AnalysisLoop

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	refreshMu sync.Mutex

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSource replaces the configured capture source.
func WithSource(src capture.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithBackend replaces the configured inference backend.
func WithBackend(b inference.Backend) Option {
	return func(s *Service) {
		if b != nil {
			s.backend = b
		}
	}
}

// New constructs a Service from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewBackend builds the inference backend selected by cfg.
func NewBackend(cfg *config.Config) inference.Backend {
	if cfg.InferenceBackend == "simulated" {
		return inference.NewSimulated()
	}
	return inference.NewHTTPClient(cfg.InferenceURL, inference.WithTimeout(cfg.InferenceTimeout()))
}

// NewSource builds the capture source selected by cfg.
func NewSource(cfg *config.Config) capture.Source {
	if cfg.CaptureSource == "directory" {
		return capture.NewDirectory(cfg.ReplayDir)
	}
	return capture.NewWebcam(cfg.CameraDevice, cfg.CaptureWidth, cfg.CaptureHeight)
}

// NewGallery builds an empty gallery configured from cfg, embedding through backend.
func NewGallery(cfg *config.Config, backend inference.Embedder) (*gallery.Gallery, error) {
	metric, err := gallery.ParseMetric(cfg.MatchMetric)
	if err != nil {
		return nil, err
	}
	return gallery.New(
		gallery.WithEmbedder(backend),
		gallery.WithMetric(metric),
		gallery.WithThreshold(cfg.MatchThreshold),
	), nil
}

// Start checks the inference backend, loads the gallery and starts the loops.
// An unreachable backend is fatal.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting moodcam service...")

	if s.backend == nil {
		s.backend = NewBackend(s.cfg)
	}
	pingCtx, cancelPing := context.WithTimeout(ctx, pingTimeout)
	err := s.backend.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnhealthy, err)
	}

	g, err := NewGallery(s.cfg, s.backend)
	if err != nil {
		return err
	}
	s.gallery = g
	s.history = repository.NewHistoryStore(
		repository.WithRetention(s.cfg.Retention()),
		repository.WithCapacity(s.cfg.HistoryCapacity),
	)
	s.tracker = tracking.New(
		tracking.WithTTL(s.cfg.TrackTTL()),
		tracking.WithMinIoU(s.cfg.TrackIoU),
	)
	s.frames = mailbox.New[model.Frame](mailbox.WithName("frames"))
	s.overlays = mailbox.New[model.Overlay](mailbox.WithName("overlays"))
	s.renders = mailbox.New[model.RenderFrame](mailbox.WithName("renders"))

	created, err := galleryfs.EnsureDir(s.cfg.GalleryDir)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info(ctx, "created gallery folder", logger.String("dir", s.cfg.GalleryDir))
	}
	if _, err := s.refreshLocked(ctx); err != nil {
		return err
	}

	if s.source == nil {
		s.source = NewSource(s.cfg)
	}
	s.capture = worker.NewCaptureLoop(s.source, s.frames, s.overlays, s.renders,
		worker.WithFPS(s.cfg.CaptureFPS),
		worker.WithFailureThreshold(s.cfg.CaptureFailureThreshold),
	)
	s.analysis = worker.NewAnalysisLoop(worker.AnalysisDeps{
		Frames:    s.frames,
		Overlays:  s.overlays,
		Inference: s.backend,
		Matcher:   s.gallery,
		Tracker:   s.tracker,
		Scorer:    scoring.NewMoodScorer(scoring.WithWeightsFromConfig(s.cfg.MoodWeights)),
		Mapper:    affect.NewMapper(affect.WithPositionsFromConfig(s.cfg.AffectPositions)),
		History:   s.history,
	},
		worker.WithInterval(s.cfg.AnalysisInterval()),
		worker.WithMinDetectionScore(s.cfg.MinDetectionScore),
		worker.WithMinFaceSize(s.cfg.MinFaceSize),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.spawn(func() { s.capture.Run(runCtx) })
	s.spawn(func() { s.analysis.Run(runCtx) })
	s.spawn(func() { metrics.RunSystemCollector(runCtx, systemMetricsInterval) })
	s.spawn(func() { s.runServiceMetrics(runCtx) })
	if s.cfg.WatchGallery {
		w := galleryfs.NewWatcher(s.cfg.GalleryDir, func(ctx context.Context) {
			if _, err := s.RefreshGallery(ctx); err != nil {
				s.logger.Error(ctx, "gallery reload failed", logger.Error(err))
			}
		})
		s.spawn(func() {
			if err := w.Run(runCtx); err != nil {
				s.logger.Warn(runCtx, "gallery watcher stopped", logger.Error(err))
			}
		})
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "moodcam service started",
		logger.String("source", s.source.Name()),
		logger.String("backend", s.cfg.InferenceBackend),
		logger.Int("identities", s.gallery.Len()),
	)
	return nil
}

func (s *Service) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Stop shuts the loops down and waits for them.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), loopShutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping moodcam service...")

	if err := s.analysis.Shutdown(ctx); err != nil && !errors.Is(err, worker.ErrAlreadyStopped) {
		s.logger.Warn(ctx, "analysis loop shutdown", logger.Error(err))
	}
	if err := s.capture.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "capture loop shutdown", logger.Error(err))
	}
	s.cancel()
	s.wg.Wait()

	s.started = false
	s.logger.Info(ctx, "moodcam service stopped")
}

// RefreshGallery rescans the gallery folder and replaces the identity set.
// Images that cannot be decoded or embedded are skipped and reported.
func (s *Service) RefreshGallery(ctx context.Context) (types.Refresh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.Refresh{}, ErrNotStarted
	}
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) (types.Refresh, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	images, scanErr := galleryfs.Scan(s.cfg.GalleryDir)
	if scanErr != nil && images == nil {
		return types.Refresh{}, scanErr
	}
	n, loadErr := s.gallery.Load(ctx, images)
	if err := ctx.Err(); err != nil {
		return types.Refresh{}, err
	}

	res := types.Refresh{Loaded: n}
	for _, err := range append(unjoin(scanErr), unjoin(loadErr)...) {
		res.Skipped = append(res.Skipped, err.Error())
		s.logger.Warn(ctx, "gallery image skipped", logger.Error(err))
	}
	metrics.RecordGalleryRefresh()
	metrics.RecordGalleryLoadErrors(len(res.Skipped))
	metrics.UpdateGalleryIdentities(n)
	s.logger.Info(ctx, "gallery loaded", logger.Int("identities", n), logger.Int("skipped", len(res.Skipped)))
	return res, nil
}

func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// SaveFace stores the face of the given detection of the current overlay
// under name and reloads the gallery, so the name matches from the next cycle.
func (s *Service) SaveFace(ctx context.Context, name string, detection int) (types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.Identity{}, ErrNotStarted
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Identity{}, ErrInvalidName
	}

	overlay, _, ok := s.overlays.Peek()
	if !ok || overlay.Frame == nil {
		return types.Identity{}, ErrNoOverlay
	}
	if detection < 0 || detection >= len(overlay.Detections) {
		return types.Identity{}, fmt.Errorf("%w: %d of %d", ErrDetectionIndex, detection, len(overlay.Detections))
	}
	face, err := imaging.Crop(overlay.Frame.Image, overlay.Detections[detection].Rect())
	if err != nil {
		return types.Identity{}, err
	}

	img, err := galleryfs.SaveFace(s.cfg.GalleryDir, name, face)
	if err != nil {
		if errors.Is(err, galleryfs.ErrInvalidName) {
			return types.Identity{}, fmt.Errorf("%w: %w", ErrInvalidName, err)
		}
		return types.Identity{}, err
	}
	s.logger.Info(ctx, "saved face", logger.String("name", img.Name), logger.String("file", img.Source))

	if _, err := s.refreshLocked(ctx); err != nil {
		return types.Identity{}, err
	}
	id, ok := s.gallery.Get(img.Key)
	if !ok || id.Source != img.Source {
		return types.Identity{}, fmt.Errorf("%w: saved face not enrolled: %s", gallery.ErrGalleryLoad, img.Source)
	}
	return s.identity(ctx, id), nil
}

// Overlay returns the latest published overlay, or nil before the first cycle.
func (s *Service) Overlay() *model.Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	ov, _, _ := s.overlays.Peek()
	return ov
}

// Frame returns the latest captured frame paired with the overlay current at capture time.
func (s *Service) Frame() *model.RenderFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	rf, _, _ := s.renders.Peek()
	return rf
}

// Identities lists the known identities in enrollment order.
func (s *Service) Identities(ctx context.Context) []types.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return []types.Identity{}
	}
	ids := s.gallery.Identities()
	out := make([]types.Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.identity(ctx, id))
	}
	return out
}

func (s *Service) identity(ctx context.Context, id *gallery.Identity) types.Identity {
	out := types.Identity{Key: id.Key, Name: id.Name, Source: id.Source, EnrolledAt: id.EnrolledAt}
	if mood, _, err := s.history.Latest(ctx, id.Key); err == nil {
		score := mood.Score
		out.Latest = &score
	}
	return out
}

// History returns the mood and affect samples of key within window. Unknown
// keys yield empty series.
func (s *Service) History(ctx context.Context, key string, window time.Duration) (types.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.History{}, ErrNotStarted
	}
	if strings.TrimSpace(key) == "" {
		return types.History{}, repository.ErrInvalidKey
	}
	if window <= 0 || window > s.history.Retention() {
		window = s.history.Retention()
	}
	return types.History{
		Key:    key,
		Window: types.Duration(window),
		Mood:   s.history.MoodWindow(ctx, key, window),
		Affect: s.history.AffectWindow(ctx, key, window),
	}, nil
}

// Stream returns the latest overlay with the newest samples of each face on it.
func (s *Service) Stream(ctx context.Context) types.StreamMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg := types.StreamMessage{Latest: []types.Latest{}}
	if !s.started {
		return msg
	}
	ov, _, _ := s.overlays.Peek()
	msg.Overlay = ov
	if ov == nil {
		return msg
	}
	for _, d := range ov.Detections {
		mood, aff, err := s.history.Latest(ctx, d.Key)
		if err != nil {
			continue
		}
		msg.Latest = append(msg.Latest, types.Latest{
			Key:     d.Key,
			T:       mood.Timestamp,
			Mood:    mood.Score,
			Valence: aff.Valence,
			Arousal: aff.Arousal,
		})
	}
	return msg
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"captureSource":    s.cfg.CaptureSource,
		"inference":        s.cfg.InferenceBackend,
		"analysisInterval": s.cfg.AnalysisInterval().String(),
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["uptime"] = time.Since(s.startedAt).Round(time.Second).String()
	stats["capture"] = s.capture.Stats()
	stats["analysis"] = s.analysis.Stats()
	stats["identities"] = s.gallery.Len()
	keys, samples := s.history.Size(ctx)
	stats["historyKeys"] = keys
	stats["historySamples"] = samples
	stats["activeTracks"] = s.tracker.Len()
	stats["frameOverwrites"] = s.frames.Overwrites()
	return stats
}

// runServiceMetrics refreshes the history and tracker gauges periodically.
func (s *Service) runServiceMetrics(ctx context.Context) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateGauges(ctx)
		}
	}
}

// updateGauges publishes history and tracker sizes. History eviction stays
// with the store's own reads and appends.
func (s *Service) updateGauges(ctx context.Context) {
	keys, _ := s.history.Size(ctx)
	metrics.UpdateHistoryIdentities(keys)
	metrics.UpdateActiveTracks(s.tracker.Len())
}
