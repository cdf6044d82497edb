// Package runner schedules the engine's periodic tasks: the log sweep, the
// retry sweep, classifier training and log archival each run on their own
// ticker.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a named periodic job. Run errors are logged and the task keeps
// its schedule; a failing sweep must not stop the others.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a set of Tasks until its context is cancelled.
type Runner struct {
	logger *slog.Logger
	tasks  []Task
}

// New constructs an empty Runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Add registers a task. Tasks with a non-positive interval are ignored.
func (r *Runner) Add(t Task) {
	if t.Interval <= 0 || t.Run == nil {
		r.logger.Warn("skipping misconfigured task", slog.String("task", t.Name))
		return
	}
	r.tasks = append(r.tasks, t)
}

// Run executes every task once immediately, then on its interval, and
// blocks until ctx is cancelled and all tasks have stopped.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range r.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			r.loop(ctx, t)
		}(task)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, t Task) {
	logger := r.logger.With(slog.String("task", t.Name))
	logger.Info("task started", slog.Duration("interval", t.Interval))

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	r.runOnce(ctx, t, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("task stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx, t, logger)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, t Task, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	if err := t.Run(ctx); err != nil {
		logger.Error("task run failed", slog.Any("error", err))
	}
}
