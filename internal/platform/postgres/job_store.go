package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/platform/logger"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// jobColumns is the canonical projection used by every job SELECT.
const jobColumns = "id, kind, task_id, target_status, status, attempts, last_error, outcome, enqueued_at, updated_at"

// JobStore implements the queue.JobStore interface using PostgreSQL. Every
// state transition a worker makes is recorded here, which is what makes
// dead letters queryable and interrupted jobs recoverable after a restart.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a new PostgreSQL implementation of queue.JobStore.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{
		db: db,
	}
}

// Ensure JobStore implements queue.JobStore interface
var _ queue.JobStore = (*JobStore)(nil)

// WithTx implements queue.JobStore.WithTx
func (s *JobStore) WithTx(tx *sql.Tx) queue.JobStore {
	return NewJobStore(tx)
}

// Save implements queue.JobStore.Save
func (s *JobStore) Save(ctx context.Context, job *queue.Job) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, kind, task_id, target_status, status, attempts, last_error, outcome, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Kind,
		job.TaskID,
		nullableStatus(job.TargetStatus),
		job.Status,
		job.Attempts,
		job.LastError,
		job.Outcome,
		job.EnqueuedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save job", "job_id", job.ID, "job_kind", job.Kind, "error", err)
		return MapError(err)
	}

	return nil
}

// SaveAll implements queue.JobStore.SaveAll. All jobs go into a single
// multi-row INSERT, so either the whole batch is persisted or none of it is.
func (s *JobStore) SaveAll(ctx context.Context, jobs []*queue.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	log := logger.FromContext(ctx)

	const columnsPerJob = 10
	values := make([]string, len(jobs))
	args := make([]interface{}, 0, len(jobs)*columnsPerJob)

	for i, job := range jobs {
		base := i * columnsPerJob
		values[i] = fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		)
		args = append(args,
			job.ID,
			job.Kind,
			job.TaskID,
			nullableStatus(job.TargetStatus),
			job.Status,
			job.Attempts,
			job.LastError,
			job.Outcome,
			job.EnqueuedAt,
			job.UpdatedAt,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO jobs (%s) VALUES %s",
		jobColumns, strings.Join(values, ", "),
	)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to save job batch", "count", len(jobs), "error", err)
		return MapError(err)
	}

	return nil
}

// MarkProcessing implements queue.JobStore.MarkProcessing
func (s *JobStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, queue.JobStatusProcessing)
}

// MarkCompleted implements queue.JobStore.MarkCompleted
func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, outcome string) error {
	query := `
		UPDATE jobs
		SET status = $1, outcome = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, queue.JobStatusCompleted, outcome, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "job"); err != nil {
		return store.ErrJobNotFound
	}

	return nil
}

// MarkRequeued implements queue.JobStore.MarkRequeued
func (s *JobStore) MarkRequeued(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return s.recordAttempt(ctx, id, queue.JobStatusQueued, attempts, lastError)
}

// MarkDeadLettered implements queue.JobStore.MarkDeadLettered
func (s *JobStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return s.recordAttempt(ctx, id, queue.JobStatusDeadLettered, attempts, lastError)
}

// ListByStatus implements queue.JobStore.ListByStatus
func (s *JobStore) ListByStatus(ctx context.Context, status queue.JobStatus) ([]*queue.Job, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM jobs WHERE status = $1 ORDER BY enqueued_at ASC",
		jobColumns,
	)

	return s.queryJobs(ctx, query, status)
}

// ListDeadLettered implements queue.JobStore.ListDeadLettered
func (s *JobStore) ListDeadLettered(ctx context.Context, limit int) ([]*queue.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT %s FROM jobs WHERE status = $1 ORDER BY updated_at DESC LIMIT $2",
		jobColumns,
	)

	return s.queryJobs(ctx, query, queue.JobStatusDeadLettered, limit)
}

func (s *JobStore) setStatus(ctx context.Context, id uuid.UUID, status queue.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "job"); err != nil {
		return store.ErrJobNotFound
	}

	return nil
}

func (s *JobStore) recordAttempt(
	ctx context.Context,
	id uuid.UUID,
	status queue.JobStatus,
	attempts int,
	lastError string,
) error {
	query := `
		UPDATE jobs
		SET status = $1, attempts = $2, last_error = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := s.db.ExecContext(ctx, query, status, attempts, lastError, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "job"); err != nil {
		return store.ErrJobNotFound
	}

	return nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*queue.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return jobs, nil
}

func scanJob(rows *sql.Rows) (*queue.Job, error) {
	var job queue.Job
	var targetStatus sql.NullString

	err := rows.Scan(
		&job.ID,
		&job.Kind,
		&job.TaskID,
		&targetStatus,
		&job.Status,
		&job.Attempts,
		&job.LastError,
		&job.Outcome,
		&job.EnqueuedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, err
	}

	if targetStatus.Valid {
		status := domain.TaskStatus(targetStatus.String)
		job.TargetStatus = &status
	}

	return &job, nil
}

func nullableStatus(status *domain.TaskStatus) sql.NullString {
	if status == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*status), Valid: true}
}
