// Package service exposes the pipeline as a long-running node: a SQLite job
// queue, a polling worker, and the HTTP API for submitting agreements and
// reading their artifacts.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/veritract/veritract/idgen"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPoison     JobStatus = "poison"
)

// Job is one queued analysis of an agreement.
type Job struct {
	ID          string     `json:"id"`
	AgreementID string     `json:"agreement_id"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// QueueSchema is the analysis job table.
const QueueSchema = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id           TEXT PRIMARY KEY,
	agreement_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	created_at   INTEGER NOT NULL,
	started_at   INTEGER,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_agreement ON analysis_jobs(agreement_id, created_at DESC);
`

// ErrJobNotFound reports an unknown job id.
var ErrJobNotFound = errors.New("service: job not found")

// Queue is the SQLite-backed analysis job queue.
type Queue struct {
	db    *sql.DB
	newID idgen.Generator
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithJobIDGenerator sets a custom ID generator for job IDs.
func WithJobIDGenerator(gen idgen.Generator) QueueOption {
	return func(q *Queue) { q.newID = gen }
}

// NewQueue wraps an open database. The caller applies QueueSchema at open
// time (dbopen.WithSchema).
func NewQueue(db *sql.DB, opts ...QueueOption) *Queue {
	q := &Queue{db: db, newID: idgen.Prefixed("job_", idgen.Default)}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Submit enqueues an analysis for an agreement and returns the job id.
func (q *Queue) Submit(ctx context.Context, agreementID string) (string, error) {
	id := q.newID()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, agreement_id, status, created_at)
		VALUES (?, ?, ?, ?)`,
		id, agreementID, StatusPending, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	return id, nil
}

// Poll claims the oldest pending job, marking it processing. Returns nil when
// the queue is empty. Claim and mark happen in one transaction so concurrent
// workers never grab the same job.
func (q *Queue) Poll(ctx context.Context) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var job Job
	var createdAt int64
	err = tx.QueryRowContext(ctx, `
		SELECT id, agreement_id, attempts, max_attempts, created_at
		FROM analysis_jobs
		WHERE status = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1`, StatusPending).
		Scan(&job.ID, &job.AgreementID, &job.Attempts, &job.MaxAttempts, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll job: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE analysis_jobs SET status = ?, started_at = ? WHERE id = ?`,
		StatusProcessing, now.Unix(), job.ID); err != nil {
		return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = StatusProcessing
	job.CreatedAt = time.Unix(createdAt, 0)
	job.StartedAt = &now
	return &job, nil
}

// Complete marks a job completed.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET status = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, time.Now().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Fail records a failure and increments attempts. A job that exhausts its
// attempts goes poison and is never retried automatically.
func (q *Queue) Fail(ctx context.Context, jobID, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET
			status = CASE
				WHEN attempts + 1 >= max_attempts THEN 'poison'
				ELSE 'failed'
			END,
			error = ?,
			attempts = attempts + 1,
			completed_at = ?
		WHERE id = ?`,
		errMsg, time.Now().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

// RetryFailed requeues failed jobs that still have attempts left. Poison jobs
// stay put. Returns the number of jobs requeued.
func (q *Queue) RetryFailed(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET status = 'pending', started_at = NULL, completed_at = NULL
		WHERE status = 'failed' AND attempts < max_attempts`)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	return q.scanJob(q.db.QueryRowContext(ctx, `
		SELECT id, agreement_id, status, error, attempts, max_attempts,
		       created_at, started_at, completed_at
		FROM analysis_jobs WHERE id = ?`, jobID))
}

// Latest returns an agreement's most recent job, or ErrJobNotFound when the
// agreement was never submitted.
func (q *Queue) Latest(ctx context.Context, agreementID string) (*Job, error) {
	return q.scanJob(q.db.QueryRowContext(ctx, `
		SELECT id, agreement_id, status, error, attempts, max_attempts,
		       created_at, started_at, completed_at
		FROM analysis_jobs WHERE agreement_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, agreementID))
}

func (q *Queue) scanJob(row *sql.Row) (*Job, error) {
	var job Job
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(&job.ID, &job.AgreementID, &job.Status, &job.Error,
		&job.Attempts, &job.MaxAttempts, &createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}
	return &job, nil
}
