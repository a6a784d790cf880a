// Package tasks runs queued async work and the periodic maintenance jobs.
// Both coordinate across hosts through the lock primitive so each unit of
// work executes on exactly one process.
package tasks

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/locking"
	"github.com/sap-labs-france/ev-server-sub011/internal/models"
)

// Store is the task persistence the runner needs.
type Store interface {
	ListPending(ctx context.Context, limit int) ([]*models.AsyncTask, error)
	ResetRunning(ctx context.Context) (int64, error)
	SetStatus(ctx context.Context, id, status, host, lastError string) error
}

// Handler executes one task payload.
type Handler func(ctx context.Context, task *models.AsyncTask) error

const pendingBatchSize = 50

// Runner drains the async task queue with a bounded worker pool. Tasks held
// by another host are skipped for the current batch and retried on the next
// tick, once the other host has had time to finish them.
type Runner struct {
	store    Store
	locks    *locking.Manager
	logger   *zap.Logger
	interval time.Duration
	workers  int
	hostname string

	mu       sync.Mutex
	handlers map[string]Handler
	trigger  chan struct{}
}

// NewRunner builds the task runner.
func NewRunner(store Store, locks *locking.Manager, workers int, interval time.Duration, logger *zap.Logger) *Runner {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		store:    store,
		locks:    locks,
		logger:   logger,
		interval: interval,
		workers:  workers,
		hostname: hostname,
		handlers: make(map[string]Handler),
		trigger:  make(chan struct{}, 1),
	}
}

// Register binds a handler to a task name. Unregistered tasks fail.
func (r *Runner) Register(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Trigger wakes the runner outside of its tick, after an enqueue.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run recovers tasks orphaned by a previous crash and then drains the queue
// until the context ends. Blocks; run it on its own goroutine.
func (r *Runner) Run(ctx context.Context) {
	reset, err := r.store.ResetRunning(ctx)
	if err != nil {
		r.logger.Error("task recovery sweep failed", zap.Error(err))
	} else if reset > 0 {
		r.logger.Info("recovered orphaned tasks", zap.Int64("count", reset))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
		}
	}
}

// drain processes pending batches until the queue is empty or a batch hits
// lock contention. A contended batch means another host is working the same
// queue, so this host backs off until the next tick.
func (r *Runner) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		pending, err := r.store.ListPending(ctx, pendingBatchSize)
		if err != nil {
			r.logger.Error("list pending tasks failed", zap.Error(err))
			return
		}
		if len(pending) == 0 {
			return
		}
		if contended := r.runBatch(ctx, pending); contended || len(pending) < pendingBatchSize {
			return
		}
	}
}

func (r *Runner) runBatch(ctx context.Context, batch []*models.AsyncTask) bool {
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	contended := false

	for _, task := range batch {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(task *models.AsyncTask) {
			defer wg.Done()
			defer func() { <-sem }()
			if !r.runOne(ctx, task) {
				mu.Lock()
				contended = true
				mu.Unlock()
			}
		}(task)
	}
	wg.Wait()
	return contended
}

// runOne executes a single task under its cross-host lock. Returns false when
// the lock was held elsewhere and the task was left Pending.
func (r *Runner) runOne(ctx context.Context, task *models.AsyncTask) bool {
	lock, err := locking.ForAsyncTask(task.ID)
	if err != nil {
		r.logger.Error("task lock build failed", zap.String("task_id", task.ID), zap.Error(err))
		return true
	}
	if !r.locks.Acquire(ctx, &lock) {
		return false
	}
	defer r.locks.Release(ctx, lock)

	if err := r.store.SetStatus(ctx, task.ID, models.TaskRunning, r.hostname, ""); err != nil {
		r.logger.Error("task status update failed",
			zap.String("task_id", task.ID), zap.Error(err))
		return true
	}

	r.mu.Lock()
	handler, ok := r.handlers[task.Name]
	r.mu.Unlock()

	var runErr error
	if !ok {
		runErr = fmt.Errorf("no handler registered for task %q", task.Name)
	} else {
		runErr = r.executeSafely(ctx, handler, task)
	}

	status, lastError := models.TaskSuccess, ""
	if runErr != nil {
		status, lastError = models.TaskError, runErr.Error()
		r.logger.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("task_name", task.Name),
			zap.Error(runErr))
	} else {
		r.logger.Debug("task done",
			zap.String("task_id", task.ID),
			zap.String("task_name", task.Name))
	}
	if err := r.store.SetStatus(ctx, task.ID, status, r.hostname, lastError); err != nil {
		r.logger.Error("task status update failed",
			zap.String("task_id", task.ID), zap.Error(err))
	}
	return true
}

func (r *Runner) executeSafely(ctx context.Context, handler Handler, task *models.AsyncTask) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return handler(ctx, task)
}
