package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is the quiet period after the last change event before a
// mapping file is reloaded.
var WatchDebounce = 200 * time.Millisecond

// Watch reloads the mapping file at path whenever it changes and calls
// onReload with the new registry, or with the decode error. It blocks until
// ctx is done. The directory is watched rather than the file so that editors
// replacing the file by rename are seen.
func Watch(ctx context.Context, path string, onReload func(*Registry, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("schema: watch: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schema: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("schema: watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(WatchDebounce)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || name != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(WatchDebounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			onReload(LoadFile(abs))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onReload(nil, fmt.Errorf("schema: watch: %w", err))
		}
	}
}
