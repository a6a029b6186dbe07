package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bastion-hq/aegis/pkg/policy/engine"
)

// DefaultDebounce is the quiet period before a reload.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherRunning is returned when Run is called twice.
var ErrWatcherRunning = errors.New("rule watcher already running")

// Watcher keeps an engine's static rules in sync with a rule path.
type Watcher struct {
	path     string
	engine   *engine.Engine
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	single  bool
	timer   *time.Timer

	// reloads receives the result of each debounced reload when set.
	reloads chan error
}

// NewWatcher creates a watcher. A zero debounce uses DefaultDebounce.
func NewWatcher(path string, eng *engine.Engine, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		engine:   eng,
		debounce: debounce,
		logger:   logger.With("component", "rules.watcher", "path", path),
	}
}

// Reload loads the rule path and replaces the engine's static rules. On
// error the current rules stay in place.
func (w *Watcher) Reload() error {
	rules, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := w.engine.ReplaceStaticRules(rules); err != nil {
		return fmt.Errorf("replace rules: %w", err)
	}
	return nil
}

// Run performs an initial load and then reloads on change until ctx is
// done. The initial load must succeed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
	}()

	if err := w.Reload(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addPaths(fsw); err != nil {
		return err
	}
	w.logger.Info("watching rule files", "debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rule watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("fsnotify events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(event.Name) {
					if err := fsw.Add(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			w.logger.Debug("rule file event", "file", event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed")
			}
			w.logger.Error("rule watcher error", "error", err)
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		err := w.Reload()
		if err != nil {
			w.logger.Error("rule reload failed, keeping previous rules", "error", err)
		} else {
			w.logger.Info("rules reloaded", "rule_count", len(w.engine.StaticRules()))
		}
		if w.reloads != nil {
			w.reloads <- err
		}
	})
}

// addPaths watches the rule file's directory, or every directory under a
// rule directory. Editors replace files by rename, so single files are
// watched through their parent.
func (w *Watcher) addPaths(fsw *fsnotify.Watcher) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return &LoadError{Path: w.path, Cause: err}
	}
	if !info.IsDir() {
		w.single = true
		return fsw.Add(filepath.Dir(w.path))
	}

	return filepath.WalkDir(w.path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if isHidden(p) && p != w.path {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if isHidden(event.Name) {
		return false
	}

	if w.single {
		return filepath.Clean(event.Name) == filepath.Clean(w.path)
	}
	if event.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			return true
		}
	}
	return isRuleFile(event.Name)
}
