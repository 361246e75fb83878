package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/shkernel/internal/logger"
)

// WatchSettings calls onChange with the reloaded settings whenever the file
// at path is written or replaced, until ctx ends. The directory is watched
// so editors that save through a rename are noticed. A file that fails to
// load is logged and skipped.
func WatchSettings(ctx context.Context, path string, onChange func(*Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				settings, err := LoadSettings(path)
				if err != nil {
					logger.Warn("ignoring settings change: %v", err)
					continue
				}
				onChange(settings)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("settings watcher error: %v", err)
			}
		}
	}()
	return nil
}
