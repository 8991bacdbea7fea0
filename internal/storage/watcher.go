package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called after a watched key changed on disk.
// kind is one of "updated" or "deleted".
type ChangeCallback func(kind, key string)

const watchDebounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the FS store root and reports changes
// to the given keys until ctx is cancelled. Bursts of events for the same key
// (tmp write + rename) are debounced into a single callback. Changes made
// through store itself are not reported.
func Watch(ctx context.Context, store *FS, keys []string, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(store.Root()); err != nil {
		return err
	}

	watched := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		watched[k] = struct{}{}
	}

	logger.Info("watcher: started", slog.String("root", store.Root()))

	pending := make(map[string]string)
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(watchDebounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for key, kind := range pending {
				if store.ownsCurrent(key) {
					logger.Debug("watcher: own write skipped", slog.String("key", key))
					continue
				}
				logger.Debug("watcher: changed", slog.String("key", key), slog.String("op", kind))
				if cb != nil {
					cb(kind, key)
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, ok := store.keyFor(ev.Name)
			if !ok {
				continue
			}
			if _, ok := watched[key]; !ok {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[key] = "updated"
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				pending[key] = "deleted"
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
