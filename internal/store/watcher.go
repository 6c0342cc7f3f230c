package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const externalDebounce = 200 * time.Millisecond

// WatchExternal watches the database file (and its WAL/journal siblings) for
// writes made by other processes and invalidates both tables, so live
// observers re-query. Bursts of file events are debounced into a single
// invalidation. It blocks until ctx is cancelled.
//
// Writes made through db itself also touch the files; the resulting extra
// invalidation costs one redundant query and is otherwise harmless.
func WatchExternal(ctx context.Context, db *DB, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(db.Path())
	if err != nil {
		return err
	}
	dir, base := filepath.Split(abs)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("store watcher: started", slog.String("path", abs))

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(externalDebounce)
			debounceCh = debounce.C
		} else {
			debounce.Reset(externalDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("store watcher: stopped")
			return nil

		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			logger.Debug("store watcher: invalidating tables")
			db.Invalidate(TableEvents, TableDayMarks)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("store watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
