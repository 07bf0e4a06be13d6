// Package watch reports changes to mesh source files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-mesh/internal/logger"
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("watch: watcher closed")

// Watcher coalesces write bursts on a set of files into one callback per
// file. Parent directories are watched so editors that replace files by
// rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger

	files  map[string]bool
	dirs   map[string]bool
	closed bool
}

// New creates a watcher. A nil log uses logger.Named("watch").
func New(debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if log == nil {
		log = logger.Named("watch")
	}
	return &Watcher{
		fs:       fs,
		debounce: debounce,
		log:      log,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// Add starts watching path. Call it before Run.
func (w *Watcher) Add(path string) error {
	if w.closed {
		return ErrClosed
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true
	w.log.Debug("watching", zap.String("file", abs))
	return nil
}

// Run delivers changes until ctx is done or the watcher is closed. onChange
// runs on the calling goroutine, once per file per quiet period.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	pending := make(map[string]time.Time)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(e.Name)
			if !w.files[name] || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[name] = time.Now().Add(w.debounce)
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			now := time.Now()
			var next time.Duration
			for name, due := range pending {
				if wait := due.Sub(now); wait > 0 {
					if next == 0 || wait < next {
						next = wait
					}
					continue
				}
				delete(pending, name)
				w.log.Debug("file changed", zap.String("file", name))
				onChange(name)
			}
			if next > 0 {
				timer.Reset(next)
			}
		}
	}
}

// Close stops watching. Run returns once its event channels close.
func (w *Watcher) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fs.Close()
}
