package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/topicmodel/internal/domain"
	"github.com/timmy/topicmodel/internal/logger"
)

// JobRunner executes the body of a training job once its delay has elapsed.
type JobRunner interface {
	// Run trains the job's model. handle identifies this execution.
	Run(ctx context.Context, job domain.TrainingJob, handle string) error
	// Fail records a job failure the runner could not report itself.
	Fail(ctx context.Context, modelID string, err error)
}

// Scheduler runs at most one training job per model id, each in its own goroutine.
type Scheduler struct {
	runner JobRunner

	mu     sync.Mutex
	jobs   map[string]*scheduledJob
	closed bool
	wg     sync.WaitGroup
}

type scheduledJob struct {
	handle string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler that hands elapsed jobs to runner.
func NewScheduler(runner JobRunner) *Scheduler {
	return &Scheduler{
		runner: runner,
		jobs:   make(map[string]*scheduledJob),
	}
}

// Schedule starts job in the background and returns its handle immediately.
// The job waits job.Delay before running; cancelling it during the wait prevents it from running at all.
// Parameters:
//   - ctx: carries logging fields only; the job outlives it.
//   - job: the training job to run.
// Returns:
//   - string: the job handle.
//   - error: domain.ErrJobExists if a live job already owns the model id.
func (s *Scheduler) Schedule(ctx context.Context, job domain.TrainingJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("scheduler is shut down")
	}
	if _, ok := s.jobs[job.ModelID]; ok {
		return "", fmt.Errorf("%w: model %s", domain.ErrJobExists, job.ModelID)
	}

	handle := uuid.New().String()
	jobCtx := logger.SetJobID(logger.SetModelID(context.WithoutCancel(ctx), job.ModelID), handle)
	jobCtx, cancel := context.WithCancel(jobCtx)
	sj := &scheduledJob{handle: handle, cancel: cancel, done: make(chan struct{})}
	s.jobs[job.ModelID] = sj

	s.wg.Add(1)
	go s.run(jobCtx, job, sj)

	logger.FromContext(jobCtx).WithField("delay", job.Delay.String()).Info("Training job scheduled")
	return handle, nil
}

func (s *Scheduler) run(ctx context.Context, job domain.TrainingJob, sj *scheduledJob) {
	defer s.wg.Done()
	defer close(sj.done)
	defer s.remove(job.ModelID, sj)
	defer sj.cancel()

	timer := time.NewTimer(job.Delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		logger.FromContext(ctx).Info("Training job cancelled before start")
		return
	case <-timer.C:
	}
	// The timer and the cancellation may fire together.
	if ctx.Err() != nil {
		logger.FromContext(ctx).Info("Training job cancelled before start")
		return
	}

	start := time.Now()
	err := s.runSafely(ctx, job, sj.handle)
	entry := logger.FromContext(ctx).WithField(logger.FieldDurationMs, time.Since(start).Milliseconds())
	switch {
	case err == nil:
		entry.Info("Training job finished")
	case ctx.Err() != nil:
		entry.WithError(err).Warn("Training job interrupted")
	default:
		entry.WithError(err).Error("Training job failed")
	}
}

// runSafely runs the job and turns a panic into a failure report.
func (s *Scheduler) runSafely(ctx context.Context, job domain.TrainingJob, handle string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrTrainerFailure, r)
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Error("Training job panicked")
			s.runner.Fail(context.WithoutCancel(ctx), job.ModelID, err)
		}
	}()
	return s.runner.Run(ctx, job, handle)
}

func (s *Scheduler) remove(modelID string, sj *scheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.jobs[modelID]; ok && cur == sj {
		delete(s.jobs, modelID)
	}
}

// Cancel interrupts the live job of a model. It reports whether a job was found.
func (s *Scheduler) Cancel(modelID string) bool {
	s.mu.Lock()
	sj, ok := s.jobs[modelID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sj.cancel()
	return true
}

// Wait blocks until the job of a model has exited or ctx is done.
// It returns nil immediately when no job is live.
func (s *Scheduler) Wait(ctx context.Context, modelID string) error {
	s.mu.Lock()
	sj, ok := s.jobs[modelID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-sj.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether a live job owns the model id.
func (s *Scheduler) Active(modelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[modelID]
	return ok
}

// Handle returns the handle of the model's live job.
func (s *Scheduler) Handle(modelID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, ok := s.jobs[modelID]
	if !ok {
		return "", false
	}
	return sj.handle, true
}

// Shutdown cancels every live job and waits for them to exit or ctx to expire.
// No job can be scheduled afterwards.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, sj := range s.jobs {
		sj.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
