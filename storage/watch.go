package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"audiovault/logger"
)

// WatchLocal calls onRemove with the path of every .mp3 file removed from or
// renamed out of dir until ctx is cancelled. Records pointing at such files
// can no longer be served.
func WatchLocal(ctx context.Context, dir string, onRemove func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
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
				if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".mp3") {
					continue
				}
				onRemove(event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("[Watch] watcher error", logger.String("dir", dir), logger.ErrorField(err))
			}
		}
	}()
	return nil
}
