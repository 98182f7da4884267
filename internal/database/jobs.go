package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// DURABLE JOB QUEUE
// ============================================================================
// Jobs are rows; workers claim with FOR UPDATE SKIP LOCKED so multiple
// workers (or processes) never double-run a job.

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Job is one unit of pipeline work.
type Job struct {
	ID        string
	Kind      string
	CaseUUID  string
	Payload   map[string]string
	Attempts  int
	State     JobState
	LastError string
	NotBefore time.Time
	CreatedAt time.Time
}

// EnqueueJob inserts a queued job.
func (s *Store) EnqueueJob(ctx context.Context, kind, caseUUID string, payload map[string]string) (string, error) {
	id := uuid.NewString()
	data, _ := json.Marshal(payload)
	if payload == nil {
		data = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, case_uuid, payload, state, not_before)
		VALUES ($1, $2, $3, $4, 'queued', now())`, id, kind, caseUUID, data)
	if err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return id, nil
}

// EnqueueJobUnlessPending inserts a job only when no queued or running
// job of the same kind exists for the case. Concurrent requests for the
// same stage coalesce onto the pending job.
func (s *Store) EnqueueJobUnlessPending(ctx context.Context, kind, caseUUID string, payload map[string]string) (string, bool, error) {
	var jobID string
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE case_uuid = $1 AND kind = $2 AND state IN ('queued', 'running')
			LIMIT 1 FOR UPDATE`, caseUUID, kind).Scan(&jobID)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}
		jobID = uuid.NewString()
		created = true
		data, _ := json.Marshal(payload)
		if payload == nil {
			data = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (id, kind, case_uuid, payload, state, not_before)
			VALUES ($1, $2, $3, $4, 'queued', now())`, jobID, kind, caseUUID, data)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("enqueue-unless-pending %s: %w", kind, err)
	}
	return jobID, created, nil
}

// ClaimNextJob atomically claims the oldest due queued job and marks it
// running. Returns nil when the queue is empty.
func (s *Store) ClaimNextJob(ctx context.Context) (*Job, error) {
	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, kind, case_uuid, payload, attempts, created_at
			FROM jobs
			WHERE state = 'queued' AND not_before <= now()
			ORDER BY not_before
			LIMIT 1
			FOR UPDATE SKIP LOCKED`)

		var j Job
		var payload []byte
		err := row.Scan(&j.ID, &j.Kind, &j.CaseUUID, &payload, &j.Attempts, &j.CreatedAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		json.Unmarshal(payload, &j.Payload)

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET state = 'running', attempts = attempts + 1, updated_at = now()
			WHERE id = $1`, j.ID)
		if err != nil {
			return err
		}
		j.State = JobRunning
		j.Attempts++
		job = &j
		return nil
	})
	return job, err
}

// CompleteJob transitions a running job to succeeded.
func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = 'succeeded', updated_at = now()
		WHERE id = $1 AND state = 'running'`, jobID)
	return err
}

// FailJob records a failure. When retry is true the job is requeued with
// the given delay; otherwise it stays failed.
func (s *Store) FailJob(ctx context.Context, jobID, reason string, retry bool, delay time.Duration) error {
	if retry {
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET state = 'queued', last_error = $2,
				not_before = now() + ($3 || ' seconds')::interval, updated_at = now()
			WHERE id = $1 AND state = 'running'`,
			jobID, reason, fmt.Sprintf("%d", int(delay.Seconds())))
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1 AND state = 'running'`, jobID, reason)
	return err
}

// CancelJob cancels one job if it has not finished.
func (s *Store) CancelJob(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = 'cancelled', updated_at = now()
		WHERE id = $1 AND state IN ('queued', 'running')`, jobID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// JobCancelled reports whether a job has been cancelled out from under a
// worker. Handlers check this before committing side effects.
func (s *Store) JobCancelled(ctx context.Context, jobID string) (bool, error) {
	var state JobState
	err := s.db.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = $1`, jobID).Scan(&state)
	if err != nil {
		return false, err
	}
	return state == JobCancelled, nil
}

// JobProgress returns per-case job counts by kind and state.
func (s *Store) JobProgress(ctx context.Context, caseUUID string) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, state, COUNT(*) FROM jobs
		WHERE case_uuid = $1 GROUP BY kind, state`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("job progress: %w", err)
	}
	defer rows.Close()

	progress := make(map[string]map[string]int)
	for rows.Next() {
		var kind, state string
		var count int
		if err := rows.Scan(&kind, &state, &count); err != nil {
			return nil, err
		}
		if progress[kind] == nil {
			progress[kind] = make(map[string]int)
		}
		progress[kind][state] = count
	}
	return progress, rows.Err()
}
