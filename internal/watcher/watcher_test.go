package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/source"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, Options{
		DebounceWindow: 50 * time.Millisecond,
		Source: source.Options{
			Extensions: []string{".txt"},
			Exclude:    []string{"**/.git/**"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	require.NoError(t, w.Start(context.Background()))
	return w
}

// collect gathers events until want paths have been seen.
func collect(t *testing.T, w *Watcher, want ...string) map[string]Operation {
	t.Helper()
	seen := make(map[string]Operation)
	deadline := time.After(5 * time.Second)
	for {
		missing := false
		for _, p := range want {
			if _, ok := seen[p]; !ok {
				missing = true
			}
		}
		if !missing {
			return seen
		}
		select {
		case batch := <-w.Events():
			for _, ev := range batch {
				seen[ev.Path] = ev.Operation
			}
		case <-deadline:
			t.Fatalf("timeout, saw %v", seen)
		}
	}
}

func TestWatcher_ReportsDocumentChanges(t *testing.T) {
	// Given a watched tree with one document
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "git-add.txt"), []byte("v1"), 0o644))
	w := startWatcher(t, root)

	// When a document is created and another edited
	require.NoError(t, os.WriteFile(filepath.Join(root, "git-tag.txt"), []byte("tag"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "git-add.txt"), []byte("v2"), 0o644))

	// Then both changes arrive
	seen := collect(t, w, "git-tag.txt", "git-add.txt")
	assert.Equal(t, OpCreate, seen["git-tag.txt"])
}

func TestWatcher_IgnoresFilteredPaths(t *testing.T) {
	// Given
	root := t.TempDir()
	w := startWatcher(t, root)

	// When an unwanted file changes before a wanted one
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "git-log.txt"), []byte("log"), 0o644))

	// Then only the document is reported
	seen := collect(t, w, "git-log.txt")
	assert.NotContains(t, seen, "image.png")
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	// Given
	root := t.TempDir()
	w := startWatcher(t, root)

	// When a directory with a document appears
	sub := filepath.Join(root, "howto")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "undo.txt"), []byte("undo"), 0o644))

	// Then the nested document is reported
	collect(t, w, "howto/undo.txt")
}

func TestWatcher_ReportsDeletes(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "git-rm.txt")
	require.NoError(t, os.WriteFile(path, []byte("rm"), 0o644))
	w := startWatcher(t, root)

	require.NoError(t, os.Remove(path))

	seen := collect(t, w, "git-rm.txt")
	assert.Equal(t, OpDelete, seen["git-rm.txt"])
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	// Given
	w, err := New(t.TempDir(), Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	// When the context ends
	cancel()

	// Then Events is closed
	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("events not closed")
	}
	assert.NoError(t, w.Stop())
}
