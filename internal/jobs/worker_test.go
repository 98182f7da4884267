package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
)

func TestBackoffDoublesPerAttempt(t *testing.T) {
	p := NewPool(nil, nil, config.JobsConfig{BackoffBase: 10 * time.Second}, nil)

	assert.Equal(t, 10*time.Second, p.backoff(1))
	assert.Equal(t, 20*time.Second, p.backoff(2))
	assert.Equal(t, 40*time.Second, p.backoff(3))
	assert.Equal(t, 10*time.Second, p.backoff(0))
}

func TestBackoffIsCapped(t *testing.T) {
	p := NewPool(nil, nil, config.JobsConfig{BackoffBase: 10 * time.Second}, nil)
	assert.Equal(t, 10*time.Minute, p.backoff(12))
}

func TestPoolDefaults(t *testing.T) {
	p := NewPool(nil, nil, config.JobsConfig{}, nil)

	assert.Equal(t, 4, p.cfg.Workers)
	assert.Equal(t, 2*time.Second, p.cfg.PollInterval)
	assert.Equal(t, 3, p.cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.cfg.BackoffBase)
}

func TestHandleRejectsUnknownKind(t *testing.T) {
	r := NewRunner(RunnerDeps{})
	err := r.Handle(context.Background(), &database.Job{ID: "j1", Kind: "mystery"})
	require.Error(t, err)
	assert.Equal(t, core.CodeValidation, core.CodeOf(err))
	assert.False(t, core.Retryable(err))
}

// fakeQueue hands out preloaded jobs and records every settle call.
type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*database.Job
	cancelled bool

	completed []string
	failures  []failCall
}

type failCall struct {
	jobID  string
	reason string
	retry  bool
	delay  time.Duration
}

func (q *fakeQueue) ClaimNextJob(context.Context) (*database.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	j.Attempts++
	j.State = database.JobRunning
	return j, nil
}

func (q *fakeQueue) CompleteJob(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) FailJob(_ context.Context, jobID, reason string, retry bool, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, failCall{jobID, reason, retry, delay})
	return nil
}

func (q *fakeQueue) JobCancelled(context.Context, string) (bool, error) {
	return q.cancelled, nil
}

func (q *fakeQueue) completedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed)
}

type fakeHandler struct {
	err     error
	handled []string
}

func (h *fakeHandler) Handle(_ context.Context, job *database.Job) error {
	h.handled = append(h.handled, job.ID)
	return h.err
}

func poolCfg() config.JobsConfig {
	return config.JobsConfig{Workers: 1, MaxAttempts: 3, BackoffBase: 10 * time.Second}
}

func TestRunSettlesSuccess(t *testing.T) {
	q := &fakeQueue{}
	h := &fakeHandler{}
	p := NewPool(q, h, poolCfg(), nil)

	p.run(context.Background(), &database.Job{ID: "j1", Kind: KindOCR, Attempts: 1})

	assert.Equal(t, []string{"j1"}, q.completed)
	assert.Empty(t, q.failures)
}

func TestRunSkipsSettleWhenCancelled(t *testing.T) {
	q := &fakeQueue{cancelled: true}
	h := &fakeHandler{err: core.NewError(core.CodeInternal, "interrupted")}
	p := NewPool(q, h, poolCfg(), nil)

	p.run(context.Background(), &database.Job{ID: "j1", Kind: KindOCR, Attempts: 1})

	// A job cancelled out from under the worker stays cancelled: no
	// complete, no fail, no requeue.
	assert.Empty(t, q.completed)
	assert.Empty(t, q.failures)
}

func TestRunRequeuesRetryableFailure(t *testing.T) {
	q := &fakeQueue{}
	h := &fakeHandler{err: core.NewError(core.CodeExternalTimeout, "ocr upstream timeout")}
	p := NewPool(q, h, poolCfg(), nil)

	p.run(context.Background(), &database.Job{ID: "j1", Kind: KindOCR, Attempts: 1})

	require.Len(t, q.failures, 1)
	assert.True(t, q.failures[0].retry)
	assert.Equal(t, 10*time.Second, q.failures[0].delay)
}

func TestRunFailsPermanentlyAtMaxAttempts(t *testing.T) {
	q := &fakeQueue{}
	h := &fakeHandler{err: core.NewError(core.CodeExternalTimeout, "still down")}
	p := NewPool(q, h, poolCfg(), nil)

	p.run(context.Background(), &database.Job{ID: "j1", Kind: KindOCR, Attempts: 3})

	require.Len(t, q.failures, 1)
	assert.False(t, q.failures[0].retry)
}

func TestRunNeverRetriesValidationErrors(t *testing.T) {
	q := &fakeQueue{}
	h := &fakeHandler{err: core.NewError(core.CodeValidation, "unsupported format")}
	p := NewPool(q, h, poolCfg(), nil)

	p.run(context.Background(), &database.Job{ID: "j1", Kind: KindClassify, Attempts: 1})

	require.Len(t, q.failures, 1)
	assert.False(t, q.failures[0].retry)
}

func TestWorkerDrainsQueueBeforeSleeping(t *testing.T) {
	q := &fakeQueue{jobs: []*database.Job{
		{ID: "j1", Kind: KindOCR},
		{ID: "j2", Kind: KindOCR},
		{ID: "j3", Kind: KindOCR},
	}}
	h := &fakeHandler{}
	cfg := poolCfg()
	cfg.PollInterval = time.Hour // a sleeping worker would hang the test
	p := NewPool(q, h, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.Eventually(t, func() bool { return q.completedCount() == 3 },
		2*time.Second, 10*time.Millisecond)
	cancel()
	p.Wait()

	assert.Equal(t, []string{"j1", "j2", "j3"}, h.handled)
}
