package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"pkm/backend/pkg/logger"
)

// ChangeFunc is called after the fact source settles following a change
type ChangeFunc func(ctx context.Context) error

// FactsWatcher calls a ChangeFunc whenever the fact source is written,
// coalescing bursts of events that arrive within the debounce window
type FactsWatcher struct {
	path     string
	debounce time.Duration
	onChange ChangeFunc
	logger   *zap.Logger
}

// NewFactsWatcher creates a watcher for the fact source at path
func NewFactsWatcher(path string, debounce time.Duration, onChange ChangeFunc) *FactsWatcher {
	return &FactsWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.Get(),
	}
}

func (w *FactsWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself so that editors which replace the file on save are
// still seen. ChangeFunc errors are logged; the watcher keeps running.
func (w *FactsWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.logger.Info("Watching fact source", zap.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if w.relevant(event) {
				w.logger.Debug("Fact source event", zap.String("op", event.Op.String()))
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			w.logger.Info("Fact source changed", zap.String("path", w.path))
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("Failed to process fact source change", zap.Error(err))
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
