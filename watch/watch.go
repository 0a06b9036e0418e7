// Package watch reports the package directories whose Go files change.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Root is watched recursively. Hidden, underscore, vendor and testdata
	// directories are skipped.
	Root string
	// Debounce is how long to wait for more changes before reporting.
	Debounce time.Duration
	// Ignore excludes files by base name, e.g. generated files.
	Ignore func(name string) bool
	Logger *slog.Logger
}

// Watcher watches a directory tree for changes of non-test Go files.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]bool // package directory -> changed
}

// New creates a Watcher and registers the directories below cfg.Root.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		config:  cfg,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]bool),
	}
	if err := w.addRecursive(cfg.Root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run calls onChange with the sorted directories that changed during each
// quiet period, until ctx is done or onChange fails.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, dirs []string) error) error {
	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.ErrorContext(ctx, "watcher error", slog.Any("error", err))

		case <-ticker.C:
			dirs := w.flush()
			if len(dirs) == 0 {
				continue
			}
			w.logger.DebugContext(ctx, "changes detected", slog.Any("dirs", dirs))
			if err := onChange(ctx, dirs); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".go") {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				if err := w.addRecursive(path); err != nil {
					w.logger.Warn("failed to watch new directory", slog.String("path", path), slog.Any("error", err))
				}
			}
		}
		return
	}
	if strings.HasSuffix(name, "_test.go") || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return
	}
	if w.config.Ignore != nil && w.config.Ignore(name) {
		return
	}
	if event.Op == fsnotify.Chmod {
		return
	}

	w.pendingMu.Lock()
	w.pending[filepath.Dir(path)] = true
	w.pendingMu.Unlock()
	w.logger.Debug("file change detected", slog.String("path", path), slog.String("op", event.Op.String()))
}

// flush returns and clears the pending directories, sorted.
func (w *Watcher) flush() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	dirs := make([]string, 0, len(w.pending))
	for dir := range w.pending {
		dirs = append(dirs, dir)
	}
	w.pending = make(map[string]bool)
	slices.Sort(dirs)
	return dirs
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("error", err))
		}
		return nil
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata"
}
