package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one recurring maintenance routine.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ticks each registered job on its own interval. Jobs handle their
// own cross-host exclusion; the scheduler only drives the clock.
type Scheduler struct {
	logger *zap.Logger
	jobs   []Job
}

// NewScheduler builds an empty scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run drives all jobs until the context ends. Blocks; run it on its own
// goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Warn("job failed",
				zap.String("job", job.Name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			continue
		}
		s.logger.Debug("job done",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)))
	}
}
