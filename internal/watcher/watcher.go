// Package watcher inserts images into the table as they appear in the
// library, so new files don't wait for the next rescan.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"saucetag/internal/logging"
	"saucetag/internal/scanner"
)

// Watcher follows the library tree with fsnotify. It only ever inserts
// absent keys; priorities of known images are never touched.
type Watcher struct {
	scanner *scanner.Scanner
	table   scanner.Inserter
	settle  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	quit    chan struct{}
	done    chan struct{}
	pending map[string]*time.Timer
	running bool
}

// New returns a watcher rooted at sc.Root(). Files are inserted once they
// have been quiet for settle.
func New(sc *scanner.Scanner, table scanner.Inserter, settle time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		scanner: sc,
		table:   table,
		settle:  settle,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		pending: make(map[string]*time.Timer),
	}
}

// Start registers watches for the whole tree and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := w.addTreeLocked(w.scanner.Root(), false); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}

	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx, fsw, w.quit, w.done)

	w.logger.Info("library watcher started",
		logging.String("root", w.scanner.Root()),
		logging.String(logging.FieldEventType, "watcher_started"),
	)
	return nil
}

// Stop ends event processing and cancels pending inserts.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	_ = w.fsw.Close()
	done := w.done
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.running = false
	w.mu.Unlock()

	<-done
	w.logger.Info("library watcher stopped",
		logging.String(logging.FieldEventType, "watcher_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "watch error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches for large libraries"),
				logging.String(logging.FieldImpact, "new images may wait for the next rescan"),
			)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Lstat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if !ev.Has(fsnotify.Create) || scanner.SkipDir(info.Name()) {
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if !w.running {
			return
		}
		// A directory moved in may already hold images.
		if err := w.addTreeLocked(ev.Name, true); err != nil {
			w.logger.Debug("watch new directory failed", logging.String("path", ev.Name), logging.Error(err))
		}
		return
	}
	if !info.Mode().IsRegular() || !scanner.IsImage(info.Name()) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.scheduleLocked(ev.Name)
	}
}

// addTreeLocked watches dir and its subdirectories. With schedule set, the
// images found are queued for insertion.
func (w *Watcher) addTreeLocked(dir string, schedule bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && scanner.SkipDir(d.Name()) {
				return fs.SkipDir
			}
			if err := w.fsw.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		}
		if schedule && d.Type().IsRegular() && scanner.IsImage(d.Name()) {
			w.scheduleLocked(path)
		}
		return nil
	})
}

// scheduleLocked (re)arms the settle timer for path so a file still being
// written is inserted once writes stop.
func (w *Watcher) scheduleLocked(path string) {
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.insert(path) })
}

func (w *Watcher) insert(path string) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	inserted, err := w.scanner.Add(w.table, path)
	if err != nil {
		w.logger.Debug("skipping watched file", logging.String("path", path), logging.Error(err))
		return
	}
	if inserted {
		w.logger.Info("new image queued",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "image_discovered"),
		)
	}
}
