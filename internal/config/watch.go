package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the latest configuration and reloads it when the file
// changes on disk.
type Watcher struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	current *Config
	watcher *fsnotify.Watcher
}

// NewWatcher loads path once and returns a watcher holding the result.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded", slog.String("path", path))

	return &Watcher{path: path, logger: logger, current: cfg}, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Watch reloads the file on write and calls onChange with the new config.
// A reload that fails keeps the previous config. The parent directory is
// watched so editors that replace the file by rename are picked up.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	target := filepath.Clean(w.path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	w.logger.Info("watching config file for changes", slog.String("path", w.path))

	go func() {
		defer fw.Close()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("config watch stopped")
				return

			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
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

				w.mu.Lock()
				w.current = cfg
				w.mu.Unlock()

				if onChange != nil {
					onChange(cfg)
				}

			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the config file.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
