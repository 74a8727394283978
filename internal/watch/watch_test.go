package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "crop.csv")
	require.NoError(t, os.WriteFile(p, []byte("Crop_Yield\n1\n"), 0o644))

	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	w, err := New(p, 50*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		fired <- struct{}{}
		return errors.New("ignored")
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// let the watch register before writing
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(p, []byte("Crop_Yield\n1\n2\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("callback not invoked")
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRelevant(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "crop.csv"), 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)

	assert.True(t, w.relevant(fsnotify.Event{Name: w.Path(), Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: w.Path(), Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: w.Path(), Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: w.Path() + ".tmp", Op: fsnotify.Write}))
}

func TestRunMissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "gone", "crop.csv"), 0, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}
