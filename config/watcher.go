package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/culling/logging"
	"go.viam.com/culling/utils"
)

// DefaultWatchDebounce is how long a burst of file events must settle before the file is re-read.
const DefaultWatchDebounce = 100 * time.Millisecond

// Watcher re-reads a config file whenever it changes and hands every valid result to a callback.
// Invalid files are logged and ignored so the last good config stays in effect.
type Watcher struct {
	path     string
	logger   logging.Logger
	fsw      *fsnotify.Watcher
	debounce func(func())
	onChange func(*Config)
	workers  utils.StoppableWorkers
}

// NewWatcher starts watching filePath. The file's directory is watched so that editors which
// replace the file instead of writing it in place are still noticed.
func NewWatcher(filePath string, wait time.Duration, onChange func(*Config), logger logging.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("config watcher requires a change callback")
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create file watcher")
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %q", filePath), fsw.Close())
	}
	if wait <= 0 {
		wait = DefaultWatchDebounce
	}

	w := &Watcher{
		path:     absPath,
		logger:   logger,
		fsw:      fsw,
		debounce: debounce.New(wait),
		onChange: onChange,
	}
	w.workers = utils.NewStoppableWorkers(w.watch)
	return w, nil
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.debounce(w.reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("error watching config file", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if w.workers.Stopped() {
		return
	}
	cfg, err := Read(w.path)
	if err != nil {
		w.logger.Warnw("ignoring invalid config change", "path", w.path, "error", err)
		return
	}
	w.logger.Infow("config file changed", "path", w.path)
	w.onChange(cfg)
}

// Close stops watching. Callbacks already scheduled by the debouncer may still run but will
// not read the file.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	w.workers.Stop()
	return err
}
