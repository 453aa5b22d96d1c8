package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// rebuildKey is the pending-work key of a full rebuild.
const rebuildKey = ""

// Watcher reindexes the corpus when files change. A change below a company
// directory reindexes that company; a change below a general directory
// triggers a full rebuild. Changes are debounced per partition.
type Watcher struct {
	root     string
	debounce time.Duration
	general  []string
	logger   *zap.Logger
	reindex  func(ctx context.Context, company string) (*Report, error)

	fsw  *fsnotify.Watcher
	due  chan string
	done chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher over root that reindexes through p.
func NewWatcher(p *Pipeline, root string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving corpus root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	cfg := p.Config()
	return &Watcher{
		root:     root,
		debounce: cfg.Watch.Debounce,
		general:  cfg.GeneralDirs,
		logger:   logger,
		reindex: func(ctx context.Context, company string) (*Report, error) {
			return p.Ingest(ctx, root, company)
		},
		fsw:    fsw,
		due:    make(chan string, 16),
		done:   make(chan struct{}),
		timers: map[string]*time.Timer{},
	}, nil
}

// Run watches until ctx is done, then waits for running reindexes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("watching corpus", zap.String("root", w.root), zap.Duration("debounce", w.debounce))

	var wg sync.WaitGroup
	defer func() {
		close(w.done)
		w.stopTimers()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case key := <-w.due:
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.run(ctx, key)
			}()
		}
	}
}

func (w *Watcher) run(ctx context.Context, company string) {
	report, err := w.reindex(ctx, company)
	if err != nil {
		WatchTriggers.WithLabelValues("error").Inc()
		w.logger.Error("reindex after change failed", zap.String("company", company), zap.Error(err))
		return
	}
	WatchTriggers.WithLabelValues("success").Inc()
	w.logger.Info("reindexed after change",
		zap.String("company", company),
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
	)
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if ignored(filepath.Base(event.Name)) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("watching new directory failed", zap.String("path", event.Name), zap.Error(err))
			}
		}
	}

	key, ok := w.keyFor(event.Name)
	if !ok {
		return
	}
	w.schedule(key)
}

// keyFor maps a changed path to the company it affects, or rebuildKey for
// the general area. Files directly in the corpus root affect nothing.
func (w *Watcher) keyFor(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	if len(segments) == 0 || segments[0] == "." || segments[0] == ".." {
		return "", false
	}
	if len(segments) == 1 {
		// A top-level entry: only directories matter, and they may already be gone.
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return "", false
		}
	}
	if slices.Contains(w.general, segments[0]) {
		return rebuildKey, true
	}
	return segments[0], true
}

func (w *Watcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[key]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()
		select {
		case w.due <- key:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
