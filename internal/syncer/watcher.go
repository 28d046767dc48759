package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/source"
)

// defaultDebounce folds change bursts (editor save storms, bulk copies)
// into a single pass.
const defaultDebounce = 300 * time.Millisecond

// Watch starts an fsnotify watcher on the preset directory and triggers
// a debounced incremental sync pass after each burst of changes. It
// blocks until ctx is cancelled.
//
// New directories created at runtime are automatically added to the
// watch list. Events whose names fail the source filter are ignored.
func Watch(ctx context.Context, coord *Coordinator, root string, filter source.ListFilter, debounce time.Duration, logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("syncer: start watcher: %w", err)
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return fmt.Errorf("syncer: watch %s: %w", root, err)
	}
	logger.Info("watcher: started", slog.String("root", root))

	// timer debounces sync scheduling; fire is nil until the first event.
	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			if _, err := coord.Sync(ctx, false); err != nil {
				if errors.Is(err, apperr.ErrSyncRunning) {
					// Another pass is in flight; try again after it ends.
					schedule()
					continue
				}
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New directories go on the watch list; their contents are
			// picked up by the scheduled pass.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			name := filepath.ToSlash(rel)
			if !filter.Match(name) {
				continue
			}
			logger.Debug("watcher: change", slog.String("file", name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
