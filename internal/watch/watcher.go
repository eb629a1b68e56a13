package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultSettle = 200 * time.Millisecond

// Reloader rebuilds the served snapshot.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads the snapshot when the CSV export changes on disk.
type Watcher struct {
	path     string
	reloader Reloader
	log      *zap.Logger
	settle   time.Duration
}

func New(path string, reloader Reloader, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{path: filepath.Clean(path), reloader: reloader, log: log, settle: defaultSettle}
}

// WithSettle sets how long writes must go quiet before a reload.
func (w *Watcher) WithSettle(d time.Duration) *Watcher {
	w.settle = d
	return w
}

// Run watches the file's directory, so editors that replace the file by
// rename are seen, and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.log.Info("watching export", zap.String("path", w.path))

	timer := time.NewTimer(w.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("export changed", zap.String("op", evt.Op.String()))
			timer.Reset(w.settle)
		case <-timer.C:
			if err := w.reloader.Reload(ctx); err != nil {
				w.log.Warn("reload failed, keeping previous snapshot", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}
