package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/monitoring"
)

// Queue is the durable queue surface a pool settles jobs against.
// *database.Store implements it.
type Queue interface {
	ClaimNextJob(ctx context.Context) (*database.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, reason string, retry bool, delay time.Duration) error
	JobCancelled(ctx context.Context, jobID string) (bool, error)
}

// Handler executes one claimed job. *Runner implements it.
type Handler interface {
	Handle(ctx context.Context, job *database.Job) error
}

// Pool claims jobs from the durable queue and runs them through a
// Handler. Several pools may poll the same database; FOR UPDATE SKIP
// LOCKED claiming keeps them from double-running a job.
type Pool struct {
	store   Queue
	runner  Handler
	cfg     config.JobsConfig
	metrics *monitoring.Metrics
	logger  *log.Logger

	wg sync.WaitGroup
}

// NewPool wires a worker pool. Metrics may be nil.
func NewPool(store Queue, runner Handler, cfg config.JobsConfig, metrics *monitoring.Metrics) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 10 * time.Second
	}
	return &Pool{
		store:   store,
		runner:  runner,
		cfg:     cfg,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[WORKER] ", log.LstdFlags),
	}
}

// Start launches the workers. They stop when ctx is cancelled; Wait
// blocks until in-flight jobs finish.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Printf("starting %d workers (poll %s, max %d attempts)",
		p.cfg.Workers, p.cfg.PollInterval, p.cfg.MaxAttempts)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Printf("all workers stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before going back to sleep.
		for {
			if ctx.Err() != nil {
				return
			}
			job, err := p.store.ClaimNextJob(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Printf("worker %d: claim failed: %v", id, err)
				}
				break
			}
			if job == nil {
				break
			}
			p.run(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// run executes one claimed job and settles its queue state.
func (p *Pool) run(ctx context.Context, job *database.Job) {
	if p.metrics != nil {
		p.metrics.JobsInFlight.Inc()
		defer p.metrics.JobsInFlight.Dec()
	}

	start := time.Now()
	err := p.runner.Handle(ctx, job)
	elapsed := time.Since(start)

	if err == nil {
		if err := p.store.CompleteJob(ctx, job.ID); err != nil {
			p.logger.Printf("job %s (%s): complete failed: %v", job.ID, job.Kind, err)
		}
		p.record(job.Kind, "succeeded", elapsed)
		return
	}

	// A job cancelled mid-flight stays cancelled: CompleteJob and
	// FailJob only touch rows still in the running state, so there is
	// nothing to settle here beyond logging.
	if cancelled, cErr := p.store.JobCancelled(ctx, job.ID); cErr == nil && cancelled {
		p.logger.Printf("job %s (%s) was cancelled during execution", job.ID, job.Kind)
		return
	}

	retry := core.Retryable(err) && job.Attempts < p.cfg.MaxAttempts
	delay := p.backoff(job.Attempts)

	if retry {
		p.logger.Printf("job %s (%s) attempt %d/%d failed, retrying in %s: %v",
			job.ID, job.Kind, job.Attempts, p.cfg.MaxAttempts, delay, err)
		p.record(job.Kind, "retried", elapsed)
	} else {
		p.logger.Printf("job %s (%s) failed permanently after %d attempts: %v",
			job.ID, job.Kind, job.Attempts, err)
		p.record(job.Kind, "failed", elapsed)
	}

	if fErr := p.store.FailJob(ctx, job.ID, err.Error(), retry, delay); fErr != nil {
		p.logger.Printf("job %s (%s): fail transition failed: %v", job.ID, job.Kind, fErr)
	}
}

// backoff doubles the base delay per prior attempt: 10s, 20s, 40s ...
func (p *Pool) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.cfg.BackoffBase << uint(attempts-1)
	if max := 10 * time.Minute; d > max {
		d = max
	}
	return d
}

func (p *Pool) record(kind, outcome string, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordJob(kind, outcome, elapsed.Seconds())
	}
}
