package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path   string
	logger *slog.Logger
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, logger: logger}, nil
}

// Watch blocks until ctx is done, calling onChange with every config that
// loads and validates after a change. Invalid edits are logged and
// skipped; the previous config stays in effect.
//
// The parent directory is watched rather than the file so editors that
// save by rename are seen.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}
	target := filepath.Clean(w.path)

	w.logger.Info("watching config file for changes", slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}

			w.logger.Info("config file changed, reloading", slog.String("path", event.Name))
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Error("failed to reload config",
					slog.String("error", err.Error()),
					slog.String("path", w.path))
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watch error", slog.String("error", err.Error()))
		}
	}
}
