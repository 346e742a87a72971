package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/cli/output"
	"github.com/leapstack-labs/flowsql/internal/testutil"
)

func TestWatchTargets(t *testing.T) {
	cc, _, root := newTestContext(t, output.ModeTable)
	queryFile := filepath.Join(root, "queries", "by_customer.sql")

	targets, err := newWatchTargets(cc, queryFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "data"),
		filepath.Join(root, "functions"),
		filepath.Join(root, "queries"),
	}, targets.dirs)

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"input write", fsnotify.Event{Name: filepath.Join(root, "data", "orders.csv"), Op: fsnotify.Write}, true},
		{"query write", fsnotify.Event{Name: queryFile, Op: fsnotify.Write}, true},
		{"function created", fsnotify.Event{Name: filepath.Join(root, "functions", "new.star"), Op: fsnotify.Create}, true},
		{"function removed", fsnotify.Event{Name: filepath.Join(root, "functions", "text.star"), Op: fsnotify.Remove}, true},
		{"chmod only", fsnotify.Event{Name: filepath.Join(root, "data", "orders.csv"), Op: fsnotify.Chmod}, false},
		{"unrelated file", fsnotify.Event{Name: filepath.Join(root, "data", "notes.txt"), Op: fsnotify.Write}, false},
		{"non-star in functions", fsnotify.Event{Name: filepath.Join(root, "functions", "README"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targets.relevant(tt.ev))
		})
	}

	assert.True(t, targets.isFunctionFile(filepath.Join(root, "functions", "text.star")))
	assert.False(t, targets.isFunctionFile(filepath.Join(root, "data", "x.star")))
}

func TestDebounceEvents(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(target, []byte("x\n1\n"), 0o600))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })
	require.NoError(t, watcher.Add(dir))

	targets := &watchTargets{dirs: []string{dir}, files: map[string]bool{target: true}}
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan []string)
	done := make(chan error, 1)
	go func() {
		done <- debounceEvents(ctx, watcher, targets, 50*time.Millisecond, out, testutil.NewTestLogger(t))
	}()

	for i := range 3 {
		require.NoError(t, os.WriteFile(target, []byte{byte('0' + i), '\n'}, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	select {
	case changed := <-out:
		assert.Equal(t, []string{target}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("debounce loop did not stop")
	}
}
