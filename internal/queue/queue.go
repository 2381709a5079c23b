// Package queue implements the durable job channel between producers
// (API write path, overdue scanner, batch processor) and the worker pool.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned when enqueueing on a queue that has shut down.
var ErrQueueClosed = errors.New("job queue is closed")

// Reader provides read-only access to the job channel, allowing workers to
// consume jobs without the ability to enqueue.
type Reader interface {
	// GetChannel returns a read-only channel for consuming jobs. Receiving
	// from it blocks until a job is available; each job is delivered to
	// exactly one receiver.
	GetChannel() <-chan *Job
}

// Writer provides write access to the job queue, allowing producers to
// enqueue jobs for processing.
type Writer interface {
	// Enqueue persists a single job and hands it to the worker pool.
	Enqueue(ctx context.Context, req JobRequest) (uuid.UUID, error)

	// EnqueueBulk persists a batch of jobs atomically and hands them to the
	// worker pool. Either the whole batch is accepted or none of it.
	EnqueueBulk(ctx context.Context, reqs []JobRequest) ([]uuid.UUID, error)
}

// TxWriter provides transactional write access for producers that persist
// jobs inside their own database transaction. Jobs saved this way become
// visible to workers only through Dispatch, called after the transaction
// commits; a worker must never be able to claim a job whose producing
// transaction could still roll back.
type TxWriter interface {
	// EnqueueInTx persists a job through the caller's transaction without
	// dispatching it.
	EnqueueInTx(ctx context.Context, tx *sql.Tx, req JobRequest) (*Job, error)

	// EnqueueBulkInTx persists a batch of jobs through the caller's
	// transaction without dispatching them.
	EnqueueBulkInTx(ctx context.Context, tx *sql.Tx, reqs []JobRequest) ([]*Job, error)

	// Dispatch hands already-committed jobs to the worker pool.
	Dispatch(jobs ...*Job)
}

// Queue is a buffered job channel backed by a durable job store. Jobs are
// persisted before they become visible to consumers, so a full buffer or a
// crash loses nothing: rows still marked queued are requeued by Recover on
// the next start. Delivery is therefore at-least-once.
type Queue struct {
	store  JobStore
	jobs   chan *Job
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a new queue with the specified buffer size.
func NewQueue(jobStore JobStore, size int, logger *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		store:  jobStore,
		jobs:   make(chan *Job, size),
		logger: logger.With("component", "job_queue"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue persists the job, then makes it available to consumers.
// Returns the new job's ID, or an error if the job store rejects the write.
func (q *Queue) Enqueue(ctx context.Context, req JobRequest) (uuid.UUID, error) {
	if q.isClosed() {
		return uuid.Nil, ErrQueueClosed
	}

	job := NewJob(req)
	if err := q.store.Save(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save job: %w", err)
	}

	q.dispatch(job)
	return job.ID, nil
}

// EnqueueBulk persists all jobs in a single atomic store write, then makes
// them available to consumers. If the store is unavailable the whole batch fails
// fast; it is not retried here — producers run on their own schedule.
func (q *Queue) EnqueueBulk(ctx context.Context, reqs []JobRequest) ([]uuid.UUID, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	jobs := make([]*Job, len(reqs))
	ids := make([]uuid.UUID, len(reqs))
	for i, req := range reqs {
		jobs[i] = NewJob(req)
		ids[i] = jobs[i].ID
	}

	if err := q.store.SaveAll(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to save job batch: %w", err)
	}

	for _, job := range jobs {
		q.dispatch(job)
	}
	return ids, nil
}

// EnqueueInTx persists a job through the caller's transaction without making
// it visible to consumers. Call Dispatch with the returned job once the
// transaction has committed; if the process dies in between, the committed
// row is still queued and the recovery pass or sweeper delivers it.
func (q *Queue) EnqueueInTx(ctx context.Context, tx *sql.Tx, req JobRequest) (*Job, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}

	job := NewJob(req)
	if err := q.store.WithTx(tx).Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

// EnqueueBulkInTx persists a batch of jobs through the caller's transaction
// without making them visible to consumers. Either every job is persisted or,
// on error (or a later rollback), none is.
func (q *Queue) EnqueueBulkInTx(ctx context.Context, tx *sql.Tx, reqs []JobRequest) ([]*Job, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	jobs := make([]*Job, len(reqs))
	for i, req := range reqs {
		jobs[i] = NewJob(req)
	}

	if err := q.store.WithTx(tx).SaveAll(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to save job batch: %w", err)
	}
	return jobs, nil
}

// Dispatch makes already-committed jobs visible to consumers.
func (q *Queue) Dispatch(jobs ...*Job) {
	for _, job := range jobs {
		if job != nil {
			q.dispatch(job)
		}
	}
}

// Requeue makes an already-persisted job available to consumers again.
// Used by the worker to reschedule a job after a failed attempt.
func (q *Queue) Requeue(job *Job) {
	q.dispatch(job)
}

// Recover loads jobs left queued or processing by a previous run and feeds
// them back to the worker pool. Jobs found in processing were interrupted
// mid-attempt; they are reset to queued first. Call before starting workers.
func (q *Queue) Recover(ctx context.Context) error {
	queued, err := q.store.ListByStatus(ctx, JobStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}

	interrupted, err := q.store.ListByStatus(ctx, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing jobs: %w", err)
	}

	q.logger.Info("recovering unfinished jobs",
		"queued_count", len(queued),
		"interrupted_count", len(interrupted))

	for _, job := range queued {
		q.dispatch(job)
	}

	for _, job := range interrupted {
		if err := q.store.MarkRequeued(ctx, job.ID, job.Attempts, "reset after restart"); err != nil {
			q.logger.Error("failed to reset interrupted job",
				"job_id", job.ID,
				"job_kind", job.Kind,
				"error", err)
			continue
		}
		q.dispatch(job)
	}

	return nil
}

// StartSweeper launches a loop that periodically re-offers jobs still marked
// queued in the store. Together with the startup Recover pass this keeps
// delivery live while the process runs: a send dropped because the buffer was
// full is retried every interval until a worker takes the job. Re-offering a
// job that is merely slow to be consumed produces a duplicate delivery, which
// the at-least-once contract already requires handlers to tolerate.
func (q *Queue) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-q.ctx.Done():
				return
			case <-ticker.C:
				q.Sweep(q.ctx, interval)
			}
		}
	}()

	q.logger.Info("queue sweeper started", "interval", interval)
}

// Sweep re-offers every job that has sat queued in the store for at least
// minAge. Exported so a single pass can be forced outside the schedule. The
// age floor keeps jobs that were just dispatched (or are waiting out a retry
// backoff, which refreshes their store timestamp) from being duplicated on
// every pass.
func (q *Queue) Sweep(ctx context.Context, minAge time.Duration) {
	jobs, err := q.store.ListByStatus(ctx, JobStatusQueued)
	if err != nil {
		q.logger.Error("failed to list queued jobs for sweep", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-minAge)
	swept := 0
	for _, job := range jobs {
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		q.dispatch(job)
		swept++
	}

	if swept > 0 {
		q.logger.Info("re-offered queued jobs", "count", swept)
	}
}

// GetChannel returns a read-only channel for consuming jobs.
func (q *Queue) GetChannel() <-chan *Job {
	return q.jobs
}

// Close closes the job queue, stopping the sweeper and preventing further
// job submission.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("job queue closed")
	}
}

// dispatch makes a persisted job visible to consumers without blocking the
// producer. When the buffer is full the job stays queued in the store; the
// sweeper re-offers it until a worker takes it.
func (q *Queue) dispatch(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("dispatch on closed queue, job remains queued in store",
			"job_id", job.ID,
			"job_kind", job.Kind)
		return
	}
	select {
	case q.jobs <- job:
		q.logger.Debug("job dispatched",
			"job_id", job.ID,
			"job_kind", job.Kind,
			"task_id", job.TaskID,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
	default:
		q.logger.Warn("job buffer full, job stays queued for the sweeper",
			"job_id", job.ID,
			"job_kind", job.Kind,
			"queue_cap", cap(q.jobs))
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
