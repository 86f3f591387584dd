package galleryfs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/moodcam/pkg/logger"
)

const defaultDebounce = 500 * time.Millisecond

// WatchOption applies a configuration option to the Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a change triggers a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets a custom logger for the watcher.
func WithLogger(l logger.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher calls a reload function after image files in a folder change.
// Bursts of events within the debounce period cause one reload.
type Watcher struct {
	dir      string
	reload   func(ctx context.Context)
	debounce time.Duration
	logger   logger.Logger
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, reload func(ctx context.Context), opts ...WatchOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		reload:   reload,
		debounce: defaultDebounce,
		logger:   logger.Get().Named("galleryfs"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info(ctx, "watching gallery folder", logger.String("dir", w.dir))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsImage(event.Name) || filepath.Dir(event.Name) != filepath.Clean(w.dir) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug(ctx, "gallery change", logger.String("file", event.Name), logger.String("op", event.Op.String()))

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				w.reload(ctx)
			})
			mu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "file watcher error", logger.Error(err))
		}
	}
}
