package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
)

// JobKind identifies what a job does. The set of kinds this process produces
// is closed, but unknown kinds may still arrive from newer producers sharing
// the job store; consumers must tolerate them rather than treat them as a
// protocol violation.
type JobKind string

// Job kinds produced by this process.
const (
	// JobKindStatusUpdate notifies downstream processing that a task's
	// status changed (or should change) to the payload's target status.
	JobKindStatusUpdate JobKind = "status-update"

	// JobKindOverdueSweep asks the worker to re-check a task that looked
	// overdue when scanned and apply the overdue side effect if it still is.
	JobKindOverdueSweep JobKind = "overdue-sweep"
)

// JobStatus represents the queue-side lifecycle state of a job.
type JobStatus string

// Possible job status values.
const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusDeadLettered JobStatus = "dead_lettered"
)

// Job is a discrete unit of asynchronous work. Jobs are persisted on enqueue
// and delivered to exactly one worker at a time; delivery is at-least-once,
// so handlers must be idempotent.
type Job struct {
	ID   uuid.UUID `json:"id"`
	Kind JobKind   `json:"kind"`

	// TaskID is the task this job refers to.
	TaskID uuid.UUID `json:"taskId"`

	// TargetStatus is the status to apply for status-update jobs.
	// Nil for kinds that carry no target status.
	TargetStatus *domain.TaskStatus `json:"status,omitempty"`

	Status    JobStatus `json:"-"`
	Attempts  int       `json:"-"`
	LastError string    `json:"-"`

	// Outcome records how a completed job ended ("completed", "task not
	// found", ...). Terminal completions with an error outcome are still
	// completions: they are never retried.
	Outcome string `json:"-"`

	// EnqueuedAt is set once at creation. The worker compares it against the
	// task's last-modified time to discard stale status updates.
	EnqueuedAt time.Time `json:"enqueuedAt"`
	UpdatedAt  time.Time `json:"-"`
}

// JobRequest describes a job to be enqueued.
type JobRequest struct {
	Kind         JobKind
	TaskID       uuid.UUID
	TargetStatus *domain.TaskStatus
}

// NewJob creates a queued Job from a request, stamping ID and enqueue time.
func NewJob(req JobRequest) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		Kind:         req.Kind,
		TaskID:       req.TaskID,
		TargetStatus: req.TargetStatus,
		Status:       JobStatusQueued,
		Attempts:     0,
		EnqueuedAt:   now,
		UpdatedAt:    now,
	}
}

// JobStore defines the interface for persisting jobs. Every state change a
// worker makes goes through here, so a dead letter is always queryable and
// an interrupted job is always recoverable.
type JobStore interface {
	// Save persists a newly enqueued job.
	Save(ctx context.Context, job *Job) error

	// SaveAll persists a batch of newly enqueued jobs in one statement.
	// Either every job is persisted or none is.
	SaveAll(ctx context.Context, jobs []*Job) error

	// MarkProcessing records that a worker claimed the job.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// MarkCompleted records a terminal completion with its outcome.
	MarkCompleted(ctx context.Context, id uuid.UUID, outcome string) error

	// MarkRequeued puts the job back in the queued state after a failed
	// attempt, recording the attempt count and last error.
	MarkRequeued(ctx context.Context, id uuid.UUID, attempts int, lastError string) error

	// MarkDeadLettered parks the job after its retry budget is exhausted.
	// Dead-lettered jobs are kept for inspection, never deleted here.
	MarkDeadLettered(ctx context.Context, id uuid.UUID, attempts int, lastError string) error

	// ListByStatus returns all jobs currently in the given state, oldest
	// first. Used at startup to requeue interrupted work.
	ListByStatus(ctx context.Context, status JobStatus) ([]*Job, error)

	// ListDeadLettered returns up to limit dead-lettered jobs, newest first,
	// for manual inspection.
	ListDeadLettered(ctx context.Context, limit int) ([]*Job, error)

	// WithTx returns a new JobStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) JobStore
}
