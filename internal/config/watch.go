package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFiles watches paths for writes or atomic-rename replacements and
// calls onChange after each, debounced to one call per debounce window.
// Editors and config-management tools often replace a file via
// rename-into-place rather than an in-place write, which would orphan a
// watch on the file itself — so the parent directories are watched
// instead, and events are filtered down to the watched paths. A
// replacement then shows up as a CREATE or RENAME on the path; REMOVE
// events alone do not trigger onChange.
func WatchFiles(ctx context.Context, debounce time.Duration, onChange func(), paths ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]bool{}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}

	watched := map[string]bool{}
	for _, p := range paths {
		watched[filepath.Clean(p)] = true
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(ev.Name)] {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Default().Warn("config watcher error", "error", err, "component", "config")
			}
		}
	}()

	return nil
}
