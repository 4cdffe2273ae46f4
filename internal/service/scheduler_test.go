package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/topicmodel/internal/domain"
)

type recordingRunner struct {
	mu      sync.Mutex
	ran     []string
	failed  map[string]error
	run     func(ctx context.Context, job domain.TrainingJob) error
	started chan string
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{failed: make(map[string]error), started: make(chan string, 8)}
}

func (r *recordingRunner) Run(ctx context.Context, job domain.TrainingJob, _ string) error {
	r.mu.Lock()
	r.ran = append(r.ran, job.ModelID)
	r.mu.Unlock()
	r.started <- job.ModelID
	if r.run != nil {
		return r.run(ctx, job)
	}
	return nil
}

func (r *recordingRunner) Fail(_ context.Context, modelID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[modelID] = err
}

func (r *recordingRunner) ranModels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func TestSchedulerRunsAfterDelay(t *testing.T) {
	runner := newRecordingRunner()
	s := NewScheduler(runner)

	handle, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m1", Delay: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	got, ok := s.Handle("m1")
	require.True(t, ok)
	assert.Equal(t, handle, got)

	select {
	case id := <-runner.started:
		assert.Equal(t, "m1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	require.NoError(t, s.Wait(context.Background(), "m1"))
	assert.False(t, s.Active("m1"))
}

func TestSchedulerRejectsSecondJob(t *testing.T) {
	s := NewScheduler(newRecordingRunner())
	_, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m1", Delay: time.Hour})
	require.NoError(t, err)

	_, err = s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m1"})
	assert.ErrorIs(t, err, domain.ErrJobExists)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSchedulerCancelDuringDelay(t *testing.T) {
	runner := newRecordingRunner()
	s := NewScheduler(runner)
	_, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m1", Delay: time.Hour})
	require.NoError(t, err)
	require.True(t, s.Active("m1"))

	assert.True(t, s.Cancel("m1"))
	require.NoError(t, s.Wait(context.Background(), "m1"))

	assert.False(t, s.Active("m1"))
	assert.Empty(t, runner.ranModels())
	assert.False(t, s.Cancel("m1"))
}

func TestSchedulerCancelDuringRun(t *testing.T) {
	runner := newRecordingRunner()
	runner.run = func(ctx context.Context, _ domain.TrainingJob) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s := NewScheduler(runner)
	_, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m1"})
	require.NoError(t, err)
	<-runner.started

	assert.True(t, s.Cancel("m1"))
	require.NoError(t, s.Wait(context.Background(), "m1"))
	assert.Empty(t, runner.failed)
}

func TestSchedulerRecoversPanics(t *testing.T) {
	runner := newRecordingRunner()
	runner.run = func(context.Context, domain.TrainingJob) error {
		panic("boom")
	}
	s := NewScheduler(runner)
	_, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m1"})
	require.NoError(t, err)
	<-runner.started
	require.NoError(t, s.Wait(context.Background(), "m1"))
	// Wait returns once the job is removed; the failure hook ran before that.
	require.Eventually(t, func() bool { return !s.Active("m1") }, time.Second, time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ErrorIs(t, runner.failed["m1"], domain.ErrTrainerFailure)

	// The scheduler keeps serving other models.
	_, err = s.Schedule(context.Background(), domain.TrainingJob{ModelID: "m2", Delay: time.Hour})
	assert.NoError(t, err)
}

func TestSchedulerShutdown(t *testing.T) {
	runner := newRecordingRunner()
	s := NewScheduler(runner)
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: id, Delay: time.Hour})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for _, id := range []string{"a", "b", "c"} {
		assert.False(t, s.Active(id))
	}
	assert.Empty(t, runner.ranModels())

	_, err := s.Schedule(context.Background(), domain.TrainingJob{ModelID: "d"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrJobExists))
}
