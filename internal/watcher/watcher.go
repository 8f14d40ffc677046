// Package watcher mirrors library directories into the job queue as files
// land on disk, without waiting for the next scheduled scan.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alchemist-av/alchemist/internal/scanner"
)

// queueSize bounds the raw event channel between the fsnotify loop and the
// debouncer. Bursts beyond it are dropped; a later scan reconciles.
const queueSize = 1024

// Handler receives a debounced batch of media file paths.
type Handler func(paths []string)

// Watcher follows directory trees with fsnotify and batches create/write
// events on media files. Subdirectories created while watching are picked up
// automatically.
type Watcher struct {
	mu sync.Mutex

	handler  Handler
	logger   *slog.Logger
	debounce time.Duration

	fsw   *fsnotify.Watcher
	queue chan string

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher that invokes handler with each debounced batch.
func New(handler Handler) *Watcher {
	return &Watcher{
		handler:  handler,
		logger:   slog.Default(),
		debounce: time.Second,
		queue:    make(chan string, queueSize),
	}
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger.With("component", "watcher")
	return w
}

// WithDebounce sets how long events accumulate before a batch is delivered.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Start begins watching the given roots and their subdirectories. Roots that
// do not exist are skipped with a warning.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx != nil {
		return fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	watched := 0
	for _, root := range roots {
		n, err := w.addTree(fsw, root)
		if err != nil {
			w.logger.Warn("cannot watch directory", "path", root, "error", err)
			continue
		}
		watched += n
	}
	if watched == 0 {
		_ = fsw.Close()
		return fmt.Errorf("no watchable directories among %d roots", len(roots))
	}

	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.eventLoop()
	go w.flushLoop()

	w.logger.Info("watcher started", "directories", watched, "debounce", w.debounce)
	return nil
}

// Stop ends watching and waits for the loops to drain. The final pending
// batch is still delivered.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return
	}
	w.cancel()
	fsw := w.fsw
	w.mu.Unlock()

	if fsw != nil {
		_ = fsw.Close()
	}
	w.wg.Wait()

	w.mu.Lock()
	w.ctx = nil
	w.cancel = nil
	w.fsw = nil
	w.mu.Unlock()

	w.logger.Info("watcher stopped")
}

// Add registers another directory tree at runtime, used when a watch dir is
// created over the API while the engine runs.
func (w *Watcher) Add(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return fmt.Errorf("watcher not started")
	}
	n, err := w.addTree(w.fsw, root)
	if err != nil {
		return err
	}
	w.logger.Info("watch tree added", "path", root, "directories", n)
	return nil
}

// addTree walks root and registers every non-hidden directory.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("watch skipping entry", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		return added, err
	}
	return added, nil
}

// eventLoop funnels raw fsnotify events into the debounce queue and adds
// watches for directories created under a watched tree.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if _, err := w.addTree(w.fsw, event.Name); err != nil {
					w.logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !scanner.IsMediaFile(event.Name) {
		return
	}

	select {
	case w.queue <- event.Name:
	default:
		w.logger.Warn("watch queue full, dropping event", "path", event.Name)
	}
}

// flushLoop batches queued paths and hands them to the handler once per
// debounce interval. Writers hammering a file collapse to one entry.
func (w *Watcher) flushLoop() {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		pending = make(map[string]struct{})
		w.handler(paths)
	}

	for {
		select {
		case path := <-w.queue:
			pending[path] = struct{}{}
		case <-ticker.C:
			flush()
		case <-w.ctx.Done():
			flush()
			return
		}
	}
}
