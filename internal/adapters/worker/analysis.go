package worker

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/moodcam/internal/adapters/mailbox"
	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/pkg/imaging"
	"github.com/okian/moodcam/pkg/logger"
	"github.com/okian/moodcam/pkg/metrics"
)

const (
	defaultAnalysisInterval  = 1500 * time.Millisecond
	defaultMinDetectionScore = 0.5
	defaultMinFaceSize       = 32
)

var unmatched = math.Inf(1)

// State is the phase of the analysis loop.
type State int32

// Analysis loop states.
const (
	StateIdle State = iota
	StateDetecting
	StateClassifying
	StateMatching
	StateScoring
	StatePublishing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateClassifying:
		return "classifying"
	case StateMatching:
		return "matching"
	case StateScoring:
		return "scoring"
	case StatePublishing:
		return "publishing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome summarizes one analysis cycle.
type Outcome string

// Cycle outcomes, also used as metric labels.
const (
	OutcomeNoFrame          Outcome = "no_frame"
	OutcomeDetectError      Outcome = "detect_error"
	OutcomeClassifierOutage Outcome = "classifier_outage"
	OutcomePublished        Outcome = "published"
)

// Per-region skip reasons.
const (
	reasonLowScore   = "low_score"
	reasonTooSmall   = "too_small"
	reasonCrop       = "crop"
	reasonEmpty      = "empty_distribution"
	reasonClassifier = "classifier"
)

// AnalysisDeps are the collaborators of an AnalysisLoop.
type AnalysisDeps struct {
	Frames    *mailbox.Mailbox[model.Frame]
	Overlays  *mailbox.Mailbox[model.Overlay]
	Inference Inference
	Matcher   Matcher
	Tracker   Tracker
	Scorer    Scorer
	Mapper    Mapper
	History   History
}

// AnalysisStats is a point-in-time view of the loop.
type AnalysisStats struct {
	State        string        `json:"state"`
	Cycles       uint64        `json:"cycles"`
	Published    uint64        `json:"published"`
	Skipped      uint64        `json:"skipped"`
	LastOutcome  string        `json:"last_outcome"`
	LastFaces    int           `json:"last_faces"`
	LastCycleAt  time.Time     `json:"last_cycle_at"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// AnalysisLoop periodically turns the latest frame into an overlay and a batch
// of history samples. Cycles never overlap.
type AnalysisLoop struct {
	deps     AnalysisDeps
	interval time.Duration
	minScore float64
	minFace  int
	now      func() time.Time
	logger   logger.Logger

	state     atomic.Int32
	cycleMu   sync.Mutex
	cycles    atomic.Uint64
	published atomic.Uint64
	skipped   atomic.Uint64

	statsMu sync.RWMutex
	last    AnalysisStats

	started      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

var _ Loop = (*AnalysisLoop)(nil)

// NewAnalysisLoop creates an analysis loop.
func NewAnalysisLoop(deps AnalysisDeps, opts ...AnalysisOption) *AnalysisLoop {
	a := &AnalysisLoop{
		deps:     deps,
		interval: defaultAnalysisInterval,
		minScore: defaultMinDetectionScore,
		minFace:  defaultMinFaceSize,
		now:      time.Now,
		logger:   logger.Get().Named("analysis"),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current phase.
func (a *AnalysisLoop) State() State {
	return State(a.state.Load())
}

func (a *AnalysisLoop) setState(s State) {
	a.state.Store(int32(s))
}

// Run executes cycles until ctx is cancelled or Shutdown is called. The
// interval is measured from the completion of the previous cycle.
func (a *AnalysisLoop) Run(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	defer close(a.done)
	defer a.setState(StateStopped)

	select {
	case <-a.shutdown:
		return
	default:
	}

	a.logger.Info(ctx, "analysis loop started", logger.Duration("interval", a.interval))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdown:
			return
		case <-timer.C:
		}

		if outcome, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn(ctx, "analysis cycle skipped",
				logger.String("outcome", string(outcome)), logger.Error(err))
		}
		timer.Reset(a.interval)
	}
}

// Shutdown stops the loop and waits for the in-flight cycle to finish. A loop
// that was never run is stopped at once; a later Run returns immediately.
func (a *AnalysisLoop) Shutdown(ctx context.Context) error {
	if a.State() == StateStopped {
		return ErrAlreadyStopped
	}
	a.shutdownOnce.Do(func() { close(a.shutdown) })
	if !a.started.Load() {
		a.setState(StateStopped)
		return nil
	}

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// RunOnce executes a single cycle. It re-analyzes the latest frame when no
// newer frame has arrived. When the cycle is skipped the previous overlay stays
// published and the returned error wraps ErrCycleSkipped.
func (a *AnalysisLoop) RunOnce(ctx context.Context) (Outcome, error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	start := time.Now()
	outcome, faces, err := a.cycle(ctx)
	elapsed := time.Since(start)
	a.setState(StateIdle)

	a.cycles.Add(1)
	if outcome == OutcomePublished {
		a.published.Add(1)
	} else {
		a.skipped.Add(1)
	}
	metrics.RecordAnalysisCycle(string(outcome), float64(elapsed.Milliseconds()))

	a.statsMu.Lock()
	a.last.LastOutcome = string(outcome)
	a.last.LastFaces = faces
	a.last.LastCycleAt = a.now()
	a.last.LastDuration = elapsed
	a.last.LastError = ""
	if err != nil {
		a.last.LastError = err.Error()
	}
	a.statsMu.Unlock()

	return outcome, err
}

func (a *AnalysisLoop) cycle(ctx context.Context) (Outcome, int, error) {
	a.setState(StateDetecting)
	frame, _, ok := a.deps.Frames.Latest()
	if !ok || frame == nil || frame.Image == nil {
		return OutcomeNoFrame, 0, nil
	}

	regions, err := a.deps.Inference.Detect(ctx, frame.Image)
	if err != nil {
		return OutcomeDetectError, 0, fmt.Errorf("%w: detect: %w", ErrCycleSkipped, err)
	}
	metrics.RecordFacesDetected(len(regions))

	a.setState(StateClassifying)
	results, candidates, failures := a.classify(ctx, frame, regions)
	if candidates > 0 && failures == candidates {
		return OutcomeClassifierOutage, 0, fmt.Errorf("%w: all %d regions failed classification", ErrCycleSkipped, candidates)
	}

	a.setState(StateMatching)
	a.resolve(results)

	a.setState(StateScoring)
	ts := a.now()
	batch := a.score(results, ts)

	a.setState(StatePublishing)
	if err := a.deps.History.Commit(ctx, batch); err != nil {
		// The overlay is still published so the display reflects the frame.
		a.logger.Error(ctx, "failed to commit samples", logger.Error(err), logger.Int("samples", batch.Len()))
		metrics.RecordErrorByComponent("analysis", "history_commit")
	}

	overlay := &model.Overlay{
		Seq:        a.published.Load() + 1,
		FrameSeq:   frame.Seq,
		UpdatedAt:  ts,
		Detections: make([]model.OverlayItem, 0, len(results)),
		Frame:      frame,
	}
	for i := range results {
		overlay.Detections = append(overlay.Detections, model.NewOverlayItem(&results[i]))
	}
	a.deps.Overlays.Put(overlay)
	return OutcomePublished, len(results), nil
}

// classify filters the regions and classifies each surviving crop. Filtered
// regions are not candidates; failed candidates are dropped.
func (a *AnalysisLoop) classify(ctx context.Context, frame *model.Frame, regions []model.Region) ([]model.DetectionResult, int, int) {
	bounds := frame.Image.Bounds()
	results := make([]model.DetectionResult, 0, len(regions))
	embeddings := make([][]float32, 0, len(regions))
	candidates, failures := 0, 0

	for _, r := range regions {
		if r.Score < a.minScore {
			metrics.RecordRegionFailure(reasonLowScore)
			continue
		}
		box := r.BBox.Intersect(bounds)
		if min(box.Dx(), box.Dy()) < a.minFace {
			metrics.RecordRegionFailure(reasonTooSmall)
			continue
		}

		candidates++
		crop, err := imaging.Crop(frame.Image, box)
		if err != nil {
			failures++
			metrics.RecordRegionFailure(reasonCrop)
			continue
		}
		analysis, err := a.deps.Inference.Analyze(ctx, crop)
		if err != nil {
			failures++
			metrics.RecordRegionFailure(reasonClassifier)
			a.logger.Debug(ctx, "region classification failed", logger.Error(err))
			continue
		}
		if analysis.Emotions.Sum() <= 0 {
			failures++
			metrics.RecordRegionFailure(reasonEmpty)
			continue
		}

		results = append(results, model.DetectionResult{
			Region:   model.Region{BBox: box, Score: r.Score},
			Emotions: analysis.Emotions,
		})
		embeddings = append(embeddings, analysis.Embedding)
	}

	for i := range results {
		results[i].Distance = unmatched
		if len(embeddings[i]) == 0 {
			continue
		}
		id, dist := a.deps.Matcher.Match(embeddings[i])
		results[i].Identity = id
		results[i].Distance = dist
	}
	return results, candidates, failures
}

// resolve keeps at most one face per identity, the closest, and assigns
// transient track keys to the rest.
func (a *AnalysisLoop) resolve(results []model.DetectionResult) {
	owner := make(map[string]int, len(results))
	for i := range results {
		id := results[i].Identity
		if id == nil {
			continue
		}
		if j, ok := owner[id.Key]; ok {
			if results[i].Distance < results[j].Distance {
				results[j].Identity = nil
				owner[id.Key] = i
			} else {
				results[i].Identity = nil
			}
			continue
		}
		owner[id.Key] = i
	}

	var unknown []int
	var boxes []image.Rectangle
	for i := range results {
		metrics.RecordMatch(results[i].Identity != nil, results[i].Distance)
		if results[i].Identity != nil {
			results[i].Key = results[i].Identity.Key
			continue
		}
		unknown = append(unknown, i)
		boxes = append(boxes, results[i].BBox)
	}
	if len(boxes) > 0 {
		keys := a.deps.Tracker.Assign(boxes)
		for n, i := range unknown {
			results[i].Key = keys[n]
		}
	}
	metrics.UpdateActiveTracks(a.deps.Tracker.Len())
}

func (a *AnalysisLoop) score(results []model.DetectionResult, ts time.Time) model.Batch {
	batch := model.Batch{
		Mood:   make([]model.MoodSample, 0, len(results)),
		Affect: make([]model.AffectSample, 0, len(results)),
	}
	for i := range results {
		r := &results[i]
		r.Mood = a.deps.Scorer.Score(r.Emotions)
		r.Valence, r.Arousal = a.deps.Mapper.Map(r.Emotions)
		metrics.RecordMoodScore(r.Mood)

		batch.Mood = append(batch.Mood, model.MoodSample{Key: r.Key, Timestamp: ts, Score: r.Mood})
		batch.Affect = append(batch.Affect, model.AffectSample{Key: r.Key, Timestamp: ts, Valence: r.Valence, Arousal: r.Arousal})
	}
	return batch
}

// Stats returns a snapshot of loop counters.
func (a *AnalysisLoop) Stats() AnalysisStats {
	a.statsMu.RLock()
	s := a.last
	a.statsMu.RUnlock()
	s.State = a.State().String()
	s.Cycles = a.cycles.Load()
	s.Published = a.published.Load()
	s.Skipped = a.skipped.Load()
	return s
}
