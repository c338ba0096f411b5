package facts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facts.pl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func readSource(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRemoveNote(t *testing.T) {
	path := writeSource(t, `% notes
note(gone, 'files/gone.txt').
note(kept, 'files/kept.txt').
rel(kept, gone, 'uses').
note(gone_again, "files/gone.txt").
`)

	n, err := RemoveNote(path, "files/gone.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, `% notes
note(kept, 'files/kept.txt').
rel(kept, gone, 'uses').
`, readSource(t, path))

	n, err = RemoveNote(path, "files/nothing.txt")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveNote_MissingSource(t *testing.T) {
	n, err := RemoveNote(filepath.Join(t.TempDir(), "missing.pl"), "files/a.md")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRenameKey(t *testing.T) {
	path := writeSource(t, "note(old_name, 'files/Old Name.txt').\r\n"+
		"rel(old_name, gone, 'uses').\r\n"+
		"rel(other, old_name).\r\n"+
		"rel(old_name_v2, other, x).\r\n"+
		"tag(old_name, draft).\r\n"+
		"alias(legacy, old_name).\r\n"+
		"note_attr(old_name, book, ['Casella', 2002]).\r\n")

	n, err := RenameKey(path, "old_name", "new_name")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "note(old_name, 'files/Old Name.txt').\r\n"+
		"rel(new_name, gone, 'uses').\r\n"+
		"rel(other, new_name).\r\n"+
		"rel(old_name_v2, other, x).\r\n"+
		"tag(new_name, draft).\r\n"+
		"alias(legacy, new_name).\r\n"+
		"note_attr(new_name, book, ['Casella', '2002']).\r\n", readSource(t, path))

	store, report, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, []Relation{
		{Source: "new_name", Target: "gone", Label: "uses"},
		{Source: "other", Target: "new_name"},
		{Source: "old_name_v2", Target: "other", Label: "x"},
	}, store.Relations())
	values, ok := store.Binding("new_name", "book")
	require.True(t, ok)
	assert.Equal(t, []string{"Casella", "2002"}, values)

	_, err = RenameKey(path, "", "x")
	assert.Error(t, err)
}
