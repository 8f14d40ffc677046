package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestWatcher(handler Handler) *Watcher {
	return New(handler).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithDebounce(100 * time.Millisecond)
}

// batchChan buffers enough batches that the flush loop never blocks on a
// test that stopped reading.
func batchChan() (chan []string, Handler) {
	ch := make(chan []string, 16)
	return ch, func(paths []string) { ch <- paths }
}

func waitBatch(t *testing.T, ch chan []string) []string {
	t.Helper()
	select {
	case paths := <-ch:
		return paths
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return nil
	}
}

func expectNoBatch(t *testing.T, ch chan []string) {
	t.Helper()
	select {
	case paths := <-ch:
		t.Fatalf("unexpected batch delivered: %v", paths)
	case <-time.After(700 * time.Millisecond):
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func TestWatcher_DeliversCreatedMediaFiles(t *testing.T) {
	dir := t.TempDir()
	ch, handler := batchChan()

	w := newTestWatcher(handler)
	require.NoError(t, w.Start(context.Background(), []string{dir}))
	defer w.Stop()

	media := filepath.Join(dir, "movie.mkv")
	writeFile(t, media)
	writeFile(t, filepath.Join(dir, "notes.txt"))

	paths := waitBatch(t, ch)
	assert.Contains(t, paths, media)
	for _, p := range paths {
		assert.True(t, filepath.Ext(p) != ".txt", "non-media file delivered: %s", p)
	}
}

func TestWatcher_CollapsesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	ch, handler := batchChan()

	w := newTestWatcher(handler)
	require.NoError(t, w.Start(context.Background(), []string{dir}))
	defer w.Stop()

	media := filepath.Join(dir, "show.mp4")
	for i := 0; i < 3; i++ {
		writeFile(t, media)
	}

	paths := waitBatch(t, ch)
	assert.Equal(t, []string{media}, paths)
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	ch, handler := batchChan()

	w := newTestWatcher(handler)
	require.NoError(t, w.Start(context.Background(), []string{dir}))
	defer w.Stop()

	sub := filepath.Join(dir, "season1")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// The subtree watch is registered from the Create event; give the event
	// loop a moment before writing into it.
	time.Sleep(300 * time.Millisecond)

	media := filepath.Join(sub, "episode.m4v")
	writeFile(t, media)

	paths := waitBatch(t, ch)
	assert.Contains(t, paths, media)
}

func TestWatcher_SkipsHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".stage")
	require.NoError(t, os.Mkdir(hidden, 0o755))

	ch, handler := batchChan()
	w := newTestWatcher(handler)
	require.NoError(t, w.Start(context.Background(), []string{dir}))
	defer w.Stop()

	writeFile(t, filepath.Join(hidden, "draft.mkv"))

	expectNoBatch(t, ch)
}

func TestWatcher_StopFlushesPending(t *testing.T) {
	dir := t.TempDir()
	ch, handler := batchChan()

	// A debounce far longer than the test: only the shutdown flush can
	// deliver the batch.
	w := New(handler).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithDebounce(time.Minute)
	require.NoError(t, w.Start(context.Background(), []string{dir}))

	media := filepath.Join(dir, "final.mov")
	writeFile(t, media)

	// Let fsnotify hand the event to the queue before stopping.
	time.Sleep(500 * time.Millisecond)
	w.Stop()

	paths := waitBatch(t, ch)
	assert.Contains(t, paths, media)
}

func TestWatcher_StartValidation(t *testing.T) {
	_, handler := batchChan()
	w := newTestWatcher(handler)

	err := w.Start(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no watchable directories")

	dir := t.TempDir()
	require.NoError(t, w.Start(context.Background(), []string{dir}))
	defer w.Stop()

	err = w.Start(context.Background(), []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestWatcher_AddTreeAtRuntime(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	ch, handler := batchChan()

	w := newTestWatcher(handler)
	require.NoError(t, w.Start(context.Background(), []string{first}))
	defer w.Stop()

	require.NoError(t, w.Add(second))

	media := filepath.Join(second, "added.avi")
	writeFile(t, media)

	paths := waitBatch(t, ch)
	assert.Contains(t, paths, media)
}

func TestWatcher_AddRequiresStart(t *testing.T) {
	_, handler := batchChan()
	w := newTestWatcher(handler)

	err := w.Add(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestWatcher_StopBeforeStartIsNoop(t *testing.T) {
	_, handler := batchChan()
	w := newTestWatcher(handler)
	w.Stop()
}
