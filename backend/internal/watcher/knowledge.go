// Package watcher keeps the fact source in step with the knowledge directory
// and re-runs export and sync when the fact source changes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"pkm/backend/internal/facts"
	"pkm/backend/pkg/logger"
)

// renameWindow is how long a Rename waits for the matching Create before it
// is treated as a move out of the directory
const renameWindow = 250 * time.Millisecond

// KnowledgeWatcher keeps note facts in step with the files in the knowledge
// directory: new files are appended as notes, deleted files lose their note,
// and a rename also moves relations over to the new key
type KnowledgeWatcher struct {
	dir       string
	factsFile string
	ignore    []string
	logger    *zap.Logger

	locators map[string]string // locator -> note key
	keys     map[string]bool
}

// NewKnowledgeWatcher creates a watcher for dir that writes to factsFile.
// Files whose base name matches one of the ignore globs are never touched.
func NewKnowledgeWatcher(dir, factsFile string, ignore []string) (*KnowledgeWatcher, error) {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	return &KnowledgeWatcher{
		dir:       dir,
		factsFile: factsFile,
		ignore:    ignore,
		logger:    logger.Get(),
		locators:  make(map[string]string),
		keys:      make(map[string]bool),
	}, nil
}

// refreshKnown reads the notes currently declared in the fact source
func (w *KnowledgeWatcher) refreshKnown() error {
	store, _, err := facts.LoadFile(w.factsFile)
	if errors.Is(err, os.ErrNotExist) {
		w.locators = make(map[string]string)
		w.keys = make(map[string]bool)
		return nil
	}
	if err != nil {
		return err
	}
	w.locators = store.LocatorKeys()
	w.keys = make(map[string]bool, store.NoteCount())
	for _, n := range store.Notes() {
		w.keys[n.Key] = true
	}
	return nil
}

// Backfill adds notes for files already in the directory and returns how
// many were appended
func (w *KnowledgeWatcher) Backfill() (int, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create knowledge dir: %w", err)
	}
	if err := w.refreshKnown(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge dir: %w", err)
	}
	added := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, err := w.add(filepath.Join(w.dir, entry.Name()))
		if err != nil {
			return added, err
		}
		if key != "" {
			added++
		}
	}
	return added, nil
}

// Locator returns the locator recorded for path: relative to the fact
// source's directory, with forward slashes
func (w *KnowledgeWatcher) Locator(path string) string {
	base := filepath.Dir(w.factsFile)
	if rel, err := filepath.Rel(base, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

func (w *KnowledgeWatcher) ignored(name string) bool {
	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// add appends a note for path unless it is ignored or already declared, and
// returns the new key ("" when nothing was added)
func (w *KnowledgeWatcher) add(path string) (string, error) {
	name := filepath.Base(path)
	if w.ignored(name) {
		return "", nil
	}
	locator := w.Locator(path)
	if _, ok := w.locators[locator]; ok {
		return "", nil
	}
	key := facts.NoteKeyForFile(name)
	if key == "" {
		w.logger.Warn("Cannot derive a note key from file name", zap.String("file", name))
		return "", nil
	}
	if w.keys[key] {
		// Appending would declare the key twice and make the source unloadable.
		w.logger.Warn("Note key already declared for another file",
			zap.String("key", key),
			zap.String("file", locator),
		)
		return "", nil
	}

	if err := facts.AppendNote(w.factsFile, key, locator); err != nil {
		return "", err
	}
	w.locators[locator] = key
	w.keys[key] = true
	w.logger.Info("Note added", zap.String("key", key), zap.String("locator", locator))
	return key, nil
}

// remove drops the note declared for path and returns its key ("" when the
// file had no note)
func (w *KnowledgeWatcher) remove(path string) (string, error) {
	if w.ignored(filepath.Base(path)) {
		return "", nil
	}
	locator := w.Locator(path)
	key, ok := w.locators[locator]
	if !ok {
		return "", nil
	}

	if _, err := facts.RemoveNote(w.factsFile, locator); err != nil {
		return "", err
	}
	delete(w.locators, locator)
	delete(w.keys, key)
	w.logger.Info("Note removed", zap.String("key", key), zap.String("locator", locator))
	return key, nil
}

// rename moves the note for oldPath over to newPath. Relations and other
// references to the old key follow when the new file gets a different key.
func (w *KnowledgeWatcher) rename(oldPath, newPath string) error {
	oldKey, err := w.remove(oldPath)
	if err != nil {
		return err
	}
	newKey, err := w.add(newPath)
	if err != nil {
		return err
	}
	if oldKey == "" || newKey == "" || oldKey == newKey {
		return nil
	}

	n, err := facts.RenameKey(w.factsFile, oldKey, newKey)
	if err != nil {
		return err
	}
	w.logger.Info("Note renamed",
		zap.String("from", oldKey),
		zap.String("to", newKey),
		zap.Int("references", n),
	)
	return nil
}

func (w *KnowledgeWatcher) reload() {
	// The fact source may have been edited by hand since the last change.
	if err := w.refreshKnown(); err != nil {
		w.logger.Warn("Failed to reload fact source", zap.Error(err))
	}
}

// Run watches the directory until ctx is cancelled. Files already present
// are not scanned; call Backfill first for that.
//
// A rename inside the directory arrives as Rename for the old name followed
// by Create for the new one. A Rename with no Create within renameWindow is
// a move out of the directory and handled like a delete.
func (w *KnowledgeWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create knowledge dir: %w", err)
	}
	w.reload()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	var pending string
	renameTimer := time.NewTimer(renameWindow)
	renameTimer.Stop()
	defer renameTimer.Stop()

	// flushPending treats an unmatched Rename as a delete
	flushPending := func() {
		if pending == "" {
			return
		}
		w.reload()
		if _, err := w.remove(pending); err != nil {
			w.logger.Error("Failed to remove note", zap.String("file", pending), zap.Error(err))
		}
		pending = ""
	}

	w.logger.Info("Watching knowledge dir", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			switch {
			case event.Has(fsnotify.Create):
				if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
					continue
				}
				w.reload()
				if pending != "" {
					renameTimer.Stop()
					oldPath := pending
					pending = ""
					if err := w.rename(oldPath, event.Name); err != nil {
						w.logger.Error("Failed to rename note",
							zap.String("from", oldPath),
							zap.String("to", event.Name),
							zap.Error(err),
						)
					}
					continue
				}
				if _, err := w.add(event.Name); err != nil {
					w.logger.Error("Failed to add note", zap.String("file", event.Name), zap.Error(err))
				}

			case event.Has(fsnotify.Remove):
				w.reload()
				if _, err := w.remove(event.Name); err != nil {
					w.logger.Error("Failed to remove note", zap.String("file", event.Name), zap.Error(err))
				}

			case event.Has(fsnotify.Rename):
				flushPending()
				pending = event.Name
				renameTimer.Reset(renameWindow)
			}

		case <-renameTimer.C:
			flushPending()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
