package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkm/backend/internal/facts"
)

func setupKnowledgeDir(t *testing.T) (root, dir, factsFile string) {
	t.Helper()
	root = t.TempDir()
	dir = filepath.Join(root, "files")
	factsFile = filepath.Join(root, "facts.pl")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return root, dir, factsFile
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestKnowledgeWatcher_Backfill(t *testing.T) {
	_, dir, factsFile := setupKnowledgeDir(t)
	require.NoError(t, os.WriteFile(factsFile, []byte("note(existing, 'files/existing.pdf').\n"), 0o644))

	touch(t, filepath.Join(dir, "existing.pdf"))
	touch(t, filepath.Join(dir, "MGF of Poisson.md"))
	touch(t, filepath.Join(dir, "2025-06-30.md"))
	touch(t, filepath.Join(dir, ".DS_Store"))
	touch(t, filepath.Join(dir, "._resource"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	w, err := NewKnowledgeWatcher(dir, factsFile, []string{"._*", ".DS_Store"})
	require.NoError(t, err)

	added, err := w.Backfill()
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	store, report, err := facts.LoadFile(factsFile)
	require.NoError(t, err)
	assert.Equal(t, 0, report.SkippedCount())
	assert.Equal(t, 3, store.NoteCount())

	note, ok := store.Note("mgf_of_poisson")
	require.True(t, ok)
	assert.Equal(t, "files/MGF of Poisson.md", note.Locator)
	assert.True(t, store.HasNote("nn_2025_06_30"))

	// A second backfill finds nothing new.
	added, err = w.Backfill()
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestKnowledgeWatcher_SkipsConflictingKey(t *testing.T) {
	_, dir, factsFile := setupKnowledgeDir(t)
	require.NoError(t, os.WriteFile(factsFile, []byte("note(report, 'files/report.pdf').\n"), 0o644))
	touch(t, filepath.Join(dir, "report.pdf"))
	touch(t, filepath.Join(dir, "report.md"))

	w, err := NewKnowledgeWatcher(dir, factsFile, nil)
	require.NoError(t, err)

	added, err := w.Backfill()
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	_, _, err = facts.LoadFile(factsFile)
	assert.NoError(t, err)
}

func TestKnowledgeWatcher_CreatesFactSource(t *testing.T) {
	_, dir, factsFile := setupKnowledgeDir(t)
	touch(t, filepath.Join(dir, "a.md"))

	w, err := NewKnowledgeWatcher(dir, factsFile, nil)
	require.NoError(t, err)
	added, err := w.Backfill()
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	data, err := os.ReadFile(factsFile)
	require.NoError(t, err)
	assert.Equal(t, "note(a, 'files/a.md').\n", string(data))
}

func TestNewKnowledgeWatcher_InvalidPattern(t *testing.T) {
	_, err := NewKnowledgeWatcher(t.TempDir(), "facts.pl", []string{"[unclosed"})
	assert.Error(t, err)
}

func TestKnowledgeWatcher_RunAddsNewFiles(t *testing.T) {
	_, dir, factsFile := setupKnowledgeDir(t)
	// Run only reacts to changes; existing files are Backfill's job.
	touch(t, filepath.Join(dir, "already here.md"))
	w, err := NewKnowledgeWatcher(dir, factsFile, []string{".DS_Store"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	touch(t, filepath.Join(dir, "Fresh Note.md"))
	touch(t, filepath.Join(dir, ".DS_Store"))

	require.Eventually(t, func() bool {
		store, _, err := facts.LoadFile(factsFile)
		return err == nil && store.HasNote("fresh_note")
	}, 5*time.Second, 50*time.Millisecond)

	store, _, err := facts.LoadFile(factsFile)
	require.NoError(t, err)
	assert.Equal(t, 1, store.NoteCount())
	assert.False(t, store.HasNote("already_here"))
}

// startKnowledgeWatcher backfills, then runs w until the test ends
func startKnowledgeWatcher(t *testing.T, w *KnowledgeWatcher) {
	t.Helper()
	_, err := w.Backfill()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
}

func TestKnowledgeWatcher_RunRemovesAndRenames(t *testing.T) {
	_, dir, factsFile := setupKnowledgeDir(t)
	require.NoError(t, os.WriteFile(factsFile, []byte("rel(old_name, gone, 'uses').\n"), 0o644))
	touch(t, filepath.Join(dir, "Old Name.txt"))
	touch(t, filepath.Join(dir, "gone.txt"))

	w, err := NewKnowledgeWatcher(dir, factsFile, nil)
	require.NoError(t, err)
	startKnowledgeWatcher(t, w)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))
	require.NoError(t, os.Rename(filepath.Join(dir, "Old Name.txt"), filepath.Join(dir, "New Name.txt")))

	require.Eventually(t, func() bool {
		store, _, err := facts.LoadFile(factsFile)
		if err != nil || !store.HasNote("new_name") || store.HasNote("old_name") || store.HasNote("gone") {
			return false
		}
		rels := store.Relations()
		return len(rels) == 1 && rels[0].Source == "new_name"
	}, 5*time.Second, 50*time.Millisecond)

	store, _, err := facts.LoadFile(factsFile)
	require.NoError(t, err)
	assert.Equal(t, 1, store.NoteCount())
	note, _ := store.Note("new_name")
	assert.Equal(t, "files/New Name.txt", note.Locator)
	assert.Equal(t, []facts.Relation{{Source: "new_name", Target: "gone", Label: "uses"}}, store.Relations())
}

func TestKnowledgeWatcher_RunMoveOutRemovesNote(t *testing.T) {
	root, dir, factsFile := setupKnowledgeDir(t)
	touch(t, filepath.Join(dir, "leaving.md"))
	touch(t, filepath.Join(dir, "staying.md"))

	w, err := NewKnowledgeWatcher(dir, factsFile, nil)
	require.NoError(t, err)
	startKnowledgeWatcher(t, w)

	require.NoError(t, os.Rename(filepath.Join(dir, "leaving.md"), filepath.Join(root, "leaving.md")))

	require.Eventually(t, func() bool {
		store, _, err := facts.LoadFile(factsFile)
		return err == nil && !store.HasNote("leaving")
	}, 5*time.Second, 50*time.Millisecond)

	store, _, err := facts.LoadFile(factsFile)
	require.NoError(t, err)
	assert.True(t, store.HasNote("staying"))
}

func TestFactsWatcher_DebouncesWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "facts.pl")
	touch(t, path)

	var calls atomic.Int32
	w := NewFactsWatcher(path, 150*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, facts.AppendNote(path, "n"+string(rune('a'+i)), "files/x.md"))
	}
	// Unrelated files in the same directory are ignored.
	touch(t, filepath.Join(root, "relations.csv"))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFactsWatcher_ChangeErrorKeepsRunning(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "facts.pl")
	touch(t, path)

	var calls atomic.Int32
	w := NewFactsWatcher(path, 50*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return assert.AnError
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	touch(t, path)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	touch(t, path)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestFactsWatcher_MissingDir(t *testing.T) {
	w := NewFactsWatcher(filepath.Join(t.TempDir(), "nope", "facts.pl"), time.Millisecond, func(context.Context) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}
