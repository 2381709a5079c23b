// Package worker implements the consumer side of the job queue: a pool of
// goroutines that claim jobs, dispatch them by kind, and drive the
// retry/dead-letter policy.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// Job outcomes recorded on terminal completion. An outcome other than
// OutcomeApplied describes why the job ended without applying its effect;
// none of them are retried, because retrying can never change the result.
const (
	OutcomeApplied         = "completed"
	OutcomeTaskNotFound    = "task not found"
	OutcomeInvalidStatus   = "invalid status value"
	OutcomeStaleDiscarded  = "stale update discarded"
	OutcomeNoLongerPending = "no longer pending"
	OutcomeUnsupportedKind = "unsupported job kind"
	OutcomeOverdueHandled  = "overdue processed"
)

// JobSource is the queue surface the pool consumes from: a blocking channel
// of claimed jobs plus the ability to put a job back for a later retry.
type JobSource interface {
	queue.Reader

	// Requeue makes an already-persisted job consumable again.
	Requeue(job *queue.Job)
}

// Config holds the retry policy and sizing for the worker pool. Retry count,
// backoff curve and dead-letter threshold live here explicitly rather than
// being inherited from queue defaults.
type Config struct {
	// Count determines how many concurrent workers consume jobs.
	Count int

	// MaxAttempts bounds processing attempts per job; once reached the job
	// is dead-lettered.
	MaxAttempts int

	// BackoffBase is the delay before the first retry. Each further retry
	// doubles the delay, capped at BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// AttemptTimeout bounds a single processing attempt. A timed-out
	// attempt counts as a failed attempt, not a crash.
	AttemptTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Count:          2,
		MaxAttempts:    5,
		BackoffBase:    500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Pool manages the worker goroutines that process jobs.
type Pool struct {
	source    JobSource
	jobStore  queue.JobStore
	taskStore store.TaskStore
	config    Config
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. Invalid config values fall back to defaults.
func NewPool(
	source JobSource,
	jobStore queue.JobStore,
	taskStore store.TaskStore,
	config Config,
	logger *slog.Logger,
) *Pool {
	def := DefaultConfig()
	if config.Count <= 0 {
		config.Count = def.Count
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = def.BackoffMax
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = def.AttemptTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		source:    source,
		jobStore:  jobStore,
		taskStore: taskStore,
		config:    config,
		logger:    logger.With("component", "worker_pool"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.config.Count; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "worker_count", p.config.Count)
}

// Stop signals all workers to finish and waits for them. In-flight jobs run
// to completion; pending retry timers are abandoned (their jobs stay queued
// in the store and are recovered on the next start).
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker consumes jobs until the channel closes or the pool is stopped.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-p.source.GetChannel():
			if !ok {
				p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}
			p.process(job, id)
		}
	}
}

// process runs a single attempt of a job and records its result.
func (p *Pool) process(job *queue.Job, workerID int) {
	log := p.logger.With(
		"job_id", job.ID,
		"job_kind", job.Kind,
		"task_id", job.TaskID,
		"worker_id", workerID,
		"attempt", job.Attempts+1,
	)

	ctx := context.Background()

	if err := p.jobStore.MarkProcessing(ctx, job.ID); err != nil {
		log.Error("failed to mark job processing", "error", err)
		p.retry(job, log, err)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
	outcome, err := p.dispatch(attemptCtx, log, job)
	cancel()

	if err != nil {
		log.Warn("job attempt failed", "error", err)
		p.retry(job, log, err)
		return
	}

	if markErr := p.jobStore.MarkCompleted(ctx, job.ID, outcome); markErr != nil {
		log.Error("failed to mark job completed", "outcome", outcome, "error", markErr)
		return
	}
	log.Info("job completed", "outcome", outcome)
}

// dispatch routes a job to its handler by kind. Unknown kinds complete with
// an unsupported outcome: future producers may add kinds, and retrying a job
// this process cannot handle would never succeed.
func (p *Pool) dispatch(ctx context.Context, log *slog.Logger, job *queue.Job) (string, error) {
	switch job.Kind {
	case queue.JobKindStatusUpdate:
		return p.handleStatusUpdate(ctx, log, job)
	case queue.JobKindOverdueSweep:
		return p.handleOverdueSweep(ctx, log, job)
	default:
		log.Warn("unsupported job kind, completing without retry")
		return OutcomeUnsupportedKind, nil
	}
}

// handleStatusUpdate applies the job's target status to its task.
//
// Two jobs for the same task can be claimed out of order by concurrent
// workers, so the update only lands when the task has not been modified
// since this job was enqueued; otherwise the job completes as a discarded
// stale update. Status assignment itself is idempotent.
func (p *Pool) handleStatusUpdate(ctx context.Context, log *slog.Logger, job *queue.Job) (string, error) {
	if job.TargetStatus == nil || !job.TargetStatus.IsValid() {
		// A status outside the closed set can never become applicable.
		log.Warn("status-update job carries invalid status", "target_status", job.TargetStatus)
		return OutcomeInvalidStatus, nil
	}

	applied, err := p.taskStore.UpdateStatusBefore(ctx, job.TaskID, *job.TargetStatus, job.EnqueuedAt)
	if err != nil {
		if store.IsNotFoundError(err) {
			// The task was deleted after the job was enqueued. Nothing to
			// notify about anymore; this is a completion, not an error.
			log.Info("task missing at processing time")
			return OutcomeTaskNotFound, nil
		}
		return "", err
	}

	if !applied {
		log.Info("task modified after enqueue, discarding stale update")
		return OutcomeStaleDiscarded, nil
	}

	log.Debug("task status applied", "status", *job.TargetStatus)
	return OutcomeApplied, nil
}

// handleOverdueSweep re-affirms that the task is still pending before
// applying the overdue side effect. The scan that produced this job ran
// outside any transaction, so eligibility must be re-checked here.
func (p *Pool) handleOverdueSweep(ctx context.Context, log *slog.Logger, job *queue.Job) (string, error) {
	task, err := p.taskStore.GetByID(ctx, job.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Info("task missing at processing time")
			return OutcomeTaskNotFound, nil
		}
		return "", err
	}

	if task.Status != domain.TaskStatusPending {
		log.Debug("task no longer pending, skipping sweep", "status", task.Status)
		return OutcomeNoLongerPending, nil
	}

	// Overdue notification: surfaced through structured logs for downstream
	// alerting. The status write below is deliberately a touch: it keeps the
	// task PENDING but advances its last-modified time, so any status-update
	// job enqueued before this sweep is discarded as stale instead of
	// resurrecting a pre-overdue status.
	log.Info("task overdue",
		"due_date", task.DueDate,
		"owner_id", task.OwnerID)

	if err := p.taskStore.UpdateStatus(ctx, job.TaskID, domain.TaskStatusPending); err != nil {
		if store.IsNotFoundError(err) {
			return OutcomeTaskNotFound, nil
		}
		return "", err
	}

	return OutcomeOverdueHandled, nil
}

// retry accounts a failed attempt, then either schedules the job for another
// run with exponential backoff or dead-letters it once the budget is spent.
func (p *Pool) retry(job *queue.Job, log *slog.Logger, cause error) {
	job.Attempts++
	ctx := context.Background()

	if job.Attempts >= p.config.MaxAttempts {
		if err := p.jobStore.MarkDeadLettered(ctx, job.ID, job.Attempts, cause.Error()); err != nil {
			log.Error("failed to dead-letter job", "error", err)
			return
		}
		log.Error("job dead-lettered after exhausting retries",
			"attempts", job.Attempts,
			"max_attempts", p.config.MaxAttempts,
			"target_status", job.TargetStatus,
			"enqueued_at", job.EnqueuedAt,
			"last_error", cause.Error())
		return
	}

	if err := p.jobStore.MarkRequeued(ctx, job.ID, job.Attempts, cause.Error()); err != nil {
		log.Error("failed to record retry, job stays queued for recovery", "error", err)
		return
	}

	delay := p.backoff(job.Attempts)
	log.Info("retry scheduled", "attempts", job.Attempts, "delay", delay)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-time.After(delay):
			p.source.Requeue(job)
		case <-p.ctx.Done():
			// Shutting down; the job is already queued in the store and
			// will be recovered on the next start.
		}
	}()
}

// backoff returns the delay before the given (1-based) retry attempt:
// BackoffBase doubled per prior attempt, capped at BackoffMax.
func (p *Pool) backoff(attempt int) time.Duration {
	delay := p.config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.config.BackoffMax {
			return p.config.BackoffMax
		}
	}
	if delay > p.config.BackoffMax {
		return p.config.BackoffMax
	}
	return delay
}
