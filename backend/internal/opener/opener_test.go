package opener

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemOpener_Target(t *testing.T) {
	o := NewSystemOpener("/kb", "")

	assert.Equal(t, filepath.Join("/kb", "files/a.pdf"), o.Target("files/a.pdf"))
	assert.Equal(t, "https://example.org/x", o.Target("https://example.org/x"))
	assert.Equal(t, "file:///tmp/a.pdf", o.Target("file:///tmp/a.pdf"))
	assert.Equal(t, "/abs/a.pdf", o.Target("/abs/a.pdf"))
	assert.Equal(t, "files/a.pdf", NewSystemOpener("", "").Target("files/a.pdf"))
}

func TestSystemOpener_Open(t *testing.T) {
	o := NewSystemOpener("/kb", "code --reuse-window")
	var gotName string
	var gotArgs []string
	o.run = func(ctx context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}

	require.NoError(t, o.Open(context.Background(), "notes/a.md"))
	assert.Equal(t, "code", gotName)
	assert.Equal(t, []string{"--reuse-window", filepath.Join("/kb", "notes/a.md")}, gotArgs)

	// Open must not grow the configured command between calls.
	require.NoError(t, o.Open(context.Background(), "notes/b.md"))
	assert.Equal(t, []string{"--reuse-window"}, o.Command[1:])
}

func TestSystemOpener_OpenError(t *testing.T) {
	o := NewSystemOpener("", "xdg-open")
	o.run = func(ctx context.Context, name string, args ...string) error {
		return errors.New("exit status 4")
	}

	err := o.Open(context.Background(), "a.pdf")
	assert.ErrorContains(t, err, "exit status 4")
}

func TestDefaultCommand(t *testing.T) {
	assert.Equal(t, []string{"open"}, defaultCommand("darwin"))
	assert.Equal(t, []string{"xdg-open"}, defaultCommand("linux"))
	assert.Equal(t, "rundll32", defaultCommand("windows")[0])
}
