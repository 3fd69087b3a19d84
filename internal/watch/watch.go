// Package watch re-runs a task whenever a file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 100 * time.Millisecond

// Runner invokes a task once and then after every change to a file.
type Runner struct {
	path     string
	task     func() error
	debounce time.Duration
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithDebounce coalesces bursts of events arriving within d. Zero runs the
// task on every event.
func WithDebounce(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.debounce = d
		}
	}
}

// WithLogger sets the logger used for task failures and watcher errors.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New returns a Runner watching path.
func New(path string, task func() error, opts ...Option) *Runner {
	r := &Runner{
		path:     filepath.Clean(path),
		task:     task,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is done. Task errors are logged and do not stop the
// runner, so a file that is briefly invalid mid-edit is picked up on the next
// write.
func (r *Runner) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched instead.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}

	r.runTask()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path || !relevant(event.Op) {
				continue
			}
			r.logger.Debug("file changed", zap.String("path", r.path), zap.String("op", event.Op.String()))
			if r.debounce == 0 {
				r.runTask()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			r.runTask()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", zap.String("path", r.path), zap.Error(err))
		}
	}
}

func (r *Runner) runTask() {
	if err := r.task(); err != nil {
		r.logger.Error("task failed", zap.String("path", r.path), zap.Error(err))
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename)
}
