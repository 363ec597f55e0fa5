package filesystem

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitHint(t *testing.T, n *Notifier) {
	t.Helper()
	select {
	case _, ok := <-n.Changes():
		require.True(t, ok, "changes channel closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change hint")
	}
}

func drainHints(n *Notifier) {
	for {
		select {
		case <-n.Changes():
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func TestNotifier_HintOnWrite(t *testing.T) {
	root := t.TempDir()
	n, err := NewNotifier(root)
	require.NoError(t, err)
	defer n.Close()

	writeFile(t, filepath.Join(root, "doc.txt"), "content")

	waitHint(t, n)
}

func TestNotifier_WatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	n, err := NewNotifier(root)
	require.NoError(t, err)
	defer n.Close()

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	waitHint(t, n)
	drainHints(n)

	writeFile(t, filepath.Join(sub, "doc.txt"), "content")
	waitHint(t, n)
}

func TestNotifier_CoalescesHints(t *testing.T) {
	root := t.TempDir()
	n, err := NewNotifier(root)
	require.NoError(t, err)
	defer n.Close()

	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, "doc.txt"), "content")
	}
	time.Sleep(200 * time.Millisecond)

	assert.LessOrEqual(t, len(n.changes), 1)
}

func TestNotifier_RootErrors(t *testing.T) {
	_, err := NewNotifier("/non/existent/path")
	assert.ErrorContains(t, err, "root path error")
}

func TestNotifier_CloseIsIdempotent(t *testing.T) {
	n, err := NewNotifier(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, n.Close())
	assert.NoError(t, n.Close())

	_, ok := <-n.Changes()
	assert.False(t, ok, "changes channel is closed")
}

func TestNotifier_HandleEvent(t *testing.T) {
	root := t.TempDir()
	n, err := NewNotifier(root)
	require.NoError(t, err)
	defer n.Close()

	file := filepath.Join(root, "doc.txt")
	writeFile(t, file, "x")

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: file, Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: file, Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: file, Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: file, Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, false},
		{"write and chmod", fsnotify.Event{Name: file, Op: fsnotify.Write | fsnotify.Chmod}, true},
		{"hidden temp file", fsnotify.Event{Name: filepath.Join(root, ".doc.txt.tmp"), Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.handleEvent(tt.event))
		})
	}
}
