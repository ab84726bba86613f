// Package watch re-runs a callback whenever a single file changes.
//
// The parent directory is watched rather than the file itself so that editors
// replacing the file through a rename keep triggering events. Events are not
// debounced; every matching event runs the callback once, in order.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// relevantOps are the operations that can change the contents of the file.
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

type (
	// Config holds the parameters for a FileWatcher.
	Config struct {
		// Path is the file to watch.
		Path string

		// OnChange runs after every change event on Path. Errors are logged
		// and do not stop the watcher. A nil callback is a no-op.
		OnChange func(ctx context.Context) error
	}

	// FileWatcher watches one file. Run must be called exactly once.
	FileWatcher struct {
		cfg     Config
		path    string
		fsw     *fsnotify.Watcher
		started atomic.Bool
	}
)

// New creates a FileWatcher and starts listening for events on the parent
// directory of cfg.Path.
func New(cfg Config) (*FileWatcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch: path is required")
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("watch: add directory %q: %w", filepath.Dir(absPath), err)
	}

	return &FileWatcher{cfg: cfg, path: absPath, fsw: fsw}, nil
}

// Run blocks until ctx is cancelled, invoking OnChange for every change to the
// watched file. It returns nil on cancellation and an error when the
// underlying watcher fails.
func (w *FileWatcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close file watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if filepath.Clean(evt.Name) != w.path || !evt.Has(relevantOps) {
				continue
			}
			log.Debug().Str("path", w.path).Str("op", evt.Op.String()).Msg("File changed")

			if w.cfg.OnChange == nil {
				continue
			}
			if err := w.cfg.OnChange(ctx); err != nil {
				log.Error().Err(err).Str("path", w.path).Msg("Change handler failed")
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			log.Warn().Err(err).Str("path", w.path).Msg("File watcher error")
		}
	}
}

// Close stops the watcher without running it. It is safe to call after Run
// has returned.
func (w *FileWatcher) Close() error {
	if w.started.Load() {
		return nil
	}
	return w.fsw.Close()
}
