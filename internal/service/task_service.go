// Package service implements the business operations on tasks, coordinating
// the task store, the job queue, and transactions.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// BatchAction selects what a batch request does to its tasks. The set is
// closed: anything else is rejected before any work starts.
type BatchAction string

// Supported batch actions.
const (
	BatchActionComplete BatchAction = "complete"
	BatchActionDelete   BatchAction = "delete"
)

// IsValid checks whether the action is in the supported set.
func (a BatchAction) IsValid() bool {
	return a == BatchActionComplete || a == BatchActionDelete
}

// BatchResult reports the outcome for a single task in a batch request.
// A batch always yields one result per requested ID, in request order;
// per-task failure never aborts the rest of the batch.
type BatchResult struct {
	TaskID  uuid.UUID `json:"taskId"`
	Success bool      `json:"success"`
	Result  string    `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// CreateTaskInput carries the caller-supplied fields for a new task.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	DueDate     *time.Time
}

// UpdateTaskInput carries a partial update. Nil fields are left unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	Priority    *domain.TaskPriority
	DueDate     *time.Time
}

// TaskService provides task-related operations.
type TaskService interface {
	// CreateTask creates a task owned by ownerID and enqueues a status
	// notification job for it.
	CreateTask(ctx context.Context, ownerID uuid.UUID, input CreateTaskInput) (*domain.Task, error)

	// GetTask retrieves a task by its ID.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks retrieves tasks matching the filter plus the total match count.
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error)

	// UpdateTask applies a partial update. A status change additionally
	// enqueues a status notification job.
	UpdateTask(ctx context.Context, id uuid.UUID, input UpdateTaskInput) (*domain.Task, error)

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// BatchProcess applies the action to every listed task, returning one
	// result per requested ID in request order.
	BatchProcess(ctx context.Context, action BatchAction, ids []uuid.UUID) ([]BatchResult, error)

	// ListDeadLetteredJobs returns recent dead-lettered jobs for inspection.
	ListDeadLetteredJobs(ctx context.Context, limit int) ([]*queue.Job, error)
}

// Per-task result strings reported by BatchProcess.
const (
	batchResultCompleted = "completed"
	batchResultDeleted   = "deleted"
	batchErrorNotFound   = "Task not found"
)

// taskService is the production implementation of TaskService.
type taskService struct {
	taskStore store.TaskStore
	jobStore  queue.JobStore
	enqueuer  queue.TxWriter
	logger    *slog.Logger

	// runTx executes fn inside a database transaction. Indirect so tests can
	// substitute a pass-through runner.
	runTx func(ctx context.Context, fn store.TxFn) error
}

// NewTaskService creates a TaskService backed by the given stores and queue.
func NewTaskService(
	db *sql.DB,
	taskStore store.TaskStore,
	jobStore queue.JobStore,
	enqueuer queue.TxWriter,
	logger *slog.Logger,
) TaskService {
	return &taskService{
		taskStore: taskStore,
		jobStore:  jobStore,
		enqueuer:  enqueuer,
		logger:    logger.With("component", "task_service"),
		runTx: func(ctx context.Context, fn store.TxFn) error {
			return store.RunInTransaction(ctx, db, fn)
		},
	}
}

// CreateTask implements TaskService.CreateTask.
//
// The task insert and the job insert share one transaction: either both
// commit or neither does. The job is handed to the workers only after the
// commit, so a worker can never claim the notification before the task row
// exists. If the process dies between commit and dispatch, the committed job
// is still queued and recovery or the sweeper delivers it.
func (s *taskService) CreateTask(
	ctx context.Context,
	ownerID uuid.UUID,
	input CreateTaskInput,
) (*domain.Task, error) {
	task, err := domain.NewTask(ownerID, input.Title, input.Description, input.Priority, input.DueDate)
	if err != nil {
		return nil, NewTaskServiceError("create_task", "invalid task", err)
	}

	var job *queue.Job
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.taskStore.WithTx(tx).Create(ctx, task); err != nil {
			return err
		}

		status := task.Status
		job, err = s.enqueuer.EnqueueInTx(ctx, tx, queue.JobRequest{
			Kind:         queue.JobKindStatusUpdate,
			TaskID:       task.ID,
			TargetStatus: &status,
		})
		return err
	})
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to create task", err)
	}

	s.enqueuer.Dispatch(job)

	s.logger.Info("task created",
		"task_id", task.ID,
		"owner_id", ownerID,
		"priority", task.Priority)

	return task, nil
}

// GetTask implements TaskService.GetTask.
func (s *taskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.taskStore.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, NewTaskServiceError("get_task", "failed to load task", err)
	}
	return task, nil
}

// ListTasks implements TaskService.ListTasks.
func (s *taskService) ListTasks(
	ctx context.Context,
	filter store.TaskFilter,
) ([]*domain.Task, int, error) {
	tasks, total, err := s.taskStore.List(ctx, filter)
	if err != nil {
		return nil, 0, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, total, nil
}

// UpdateTask implements TaskService.UpdateTask.
func (s *taskService) UpdateTask(
	ctx context.Context,
	id uuid.UUID,
	input UpdateTaskInput,
) (*domain.Task, error) {
	var updated *domain.Task
	var job *queue.Job

	err := s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.taskStore.WithTx(tx)

		task, err := txStore.GetByID(ctx, id)
		if err != nil {
			return err
		}

		statusChanged := applyUpdate(task, input)

		if err := task.Validate(); err != nil {
			return err
		}

		if err := txStore.Update(ctx, task); err != nil {
			return err
		}

		// Only an actual status change produces a notification job. The job
		// rides the update's transaction and is dispatched after commit.
		if statusChanged {
			status := task.Status
			job, err = s.enqueuer.EnqueueInTx(ctx, tx, queue.JobRequest{
				Kind:         queue.JobKindStatusUpdate,
				TaskID:       task.ID,
				TargetStatus: &status,
			})
			if err != nil {
				return err
			}
		}

		updated = task
		return nil
	})
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, NewTaskServiceError("update_task", "failed to update task", err)
	}

	s.enqueuer.Dispatch(job)

	s.logger.Info("task updated", "task_id", id, "status", updated.Status)

	return updated, nil
}

// DeleteTask implements TaskService.DeleteTask.
func (s *taskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if err := s.taskStore.Delete(ctx, id); err != nil {
		if store.IsNotFoundError(err) {
			return ErrTaskNotFound
		}
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}

	s.logger.Info("task deleted", "task_id", id)
	return nil
}

// BatchProcess implements TaskService.BatchProcess.
//
// The request is resolved against the store once, the action is applied to
// all existing tasks in a single bulk write, and every requested ID gets a
// result: missing IDs report a per-task error without failing the batch.
func (s *taskService) BatchProcess(
	ctx context.Context,
	action BatchAction,
	ids []uuid.UUID,
) ([]BatchResult, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	if !action.IsValid() {
		return nil, ErrInvalidBatchAction
	}

	tasks, err := s.taskStore.FindByIDs(ctx, ids)
	if err != nil {
		return nil, NewTaskServiceError("batch_process", "failed to resolve batch ids", err)
	}

	existing := make(map[uuid.UUID]bool, len(tasks))
	for _, task := range tasks {
		existing[task.ID] = true
	}

	// Apply the action to the IDs that resolved, preserving request order
	// for the found set.
	var foundIDs []uuid.UUID
	for _, id := range ids {
		if existing[id] {
			foundIDs = append(foundIDs, id)
		}
	}

	switch action {
	case BatchActionComplete:
		err = s.completeAll(ctx, foundIDs)
	case BatchActionDelete:
		err = s.deleteAll(ctx, foundIDs)
	}
	if err != nil {
		return nil, NewTaskServiceError("batch_process", "failed to apply batch action", err)
	}

	successResult := batchResultCompleted
	if action == BatchActionDelete {
		successResult = batchResultDeleted
	}

	results := make([]BatchResult, len(ids))
	for i, id := range ids {
		if existing[id] {
			results[i] = BatchResult{TaskID: id, Success: true, Result: successResult}
		} else {
			results[i] = BatchResult{TaskID: id, Success: false, Error: batchErrorNotFound}
		}
	}

	s.logger.Info("batch processed",
		"action", action,
		"requested", len(ids),
		"applied", len(foundIDs))

	return results, nil
}

// completeAll marks the tasks completed and enqueues one status notification
// job per task. The status writes and the job batch share one transaction, so
// a failed enqueue rolls the status changes back; the jobs reach the workers
// only after the commit.
func (s *taskService) completeAll(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	var jobs []*queue.Job
	err := s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.taskStore.WithTx(tx).BulkUpdateStatus(ctx, ids, domain.TaskStatusCompleted); err != nil {
			return err
		}

		status := domain.TaskStatusCompleted
		reqs := make([]queue.JobRequest, len(ids))
		for i, id := range ids {
			reqs[i] = queue.JobRequest{
				Kind:         queue.JobKindStatusUpdate,
				TaskID:       id,
				TargetStatus: &status,
			}
		}

		var err error
		jobs, err = s.enqueuer.EnqueueBulkInTx(ctx, tx, reqs)
		return err
	})
	if err != nil {
		return err
	}

	s.enqueuer.Dispatch(jobs...)
	return nil
}

// deleteAll removes the tasks in one statement. Deletion produces no jobs.
func (s *taskService) deleteAll(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.taskStore.BulkDelete(ctx, ids)
}

// ListDeadLetteredJobs implements TaskService.ListDeadLetteredJobs.
func (s *taskService) ListDeadLetteredJobs(ctx context.Context, limit int) ([]*queue.Job, error) {
	jobs, err := s.jobStore.ListDeadLettered(ctx, limit)
	if err != nil {
		return nil, NewTaskServiceError("list_dead_letters", "failed to list dead-lettered jobs", err)
	}
	return jobs, nil
}

// applyUpdate copies the set fields of input onto task and reports whether
// the status actually changed.
func applyUpdate(task *domain.Task, input UpdateTaskInput) bool {
	if input.Title != nil {
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}

	statusChanged := false
	if input.Status != nil && *input.Status != task.Status {
		task.Status = *input.Status
		statusChanged = true
	}
	return statusChanged
}

var _ error = (*TaskServiceError)(nil)
