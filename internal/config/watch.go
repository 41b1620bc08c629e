package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the project config file and delivers reloaded
// configurations to a callback. Only tunables (fusion alpha, ef_search,
// rerank window) take effect without a restart; backend selections are
// read once at startup.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	onChange  func(*Config)
	logger    *slog.Logger

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// NewWatcher creates a watcher for the project config under dir.
// onChange is called with each successfully loaded and validated
// config; invalid edits are logged and skipped, keeping the previous
// values live.
func NewWatcher(dir string, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file. Editors replace config files
	// by rename, which breaks a direct file watch.
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsw,
		dir:       dir,
		debounce:  500 * time.Millisecond,
		onChange:  onChange,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs the watch loop until the context is cancelled or Stop is
// called. It blocks; run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.isConfigEvent(event) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", slog.String("error", err.Error()))
		case <-timer.C:
			w.reload()
		}
	}
}

// isConfigEvent reports whether the event touches the project config.
func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	return base == ".loreleaf.yaml" || base == ".loreleaf.yml"
}

// reload re-runs the full load cascade so user config and env
// overrides keep their precedence over the edited file.
func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous values",
			slog.String("error", err.Error()))
		return
	}

	w.logger.Info("config reloaded",
		slog.Float64("alpha", cfg.Fusion.Alpha),
		slog.String("fusion_mode", cfg.Fusion.Mode),
		slog.Int("ef_search", cfg.Index.EfSearch),
		slog.Int("rerank_window", cfg.Rerank.Window))

	w.onChange(cfg)
}

// Stop stops the watcher and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	return w.fsWatcher.Close()
}
