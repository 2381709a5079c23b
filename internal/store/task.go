package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/domain"
)

// TaskFilter narrows List results. Zero values mean "no filter".
type TaskFilter struct {
	Status   domain.TaskStatus
	Priority domain.TaskPriority
	Page     int
	Limit    int
	SortBy   string
	SortDesc bool
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List retrieves tasks matching the filter, plus the total count
	// ignoring pagination.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, int, error)

	// Update saves changes to an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateStatus sets the status of a task. Status assignment is
	// idempotent: applying the same status twice is not an error.
	// Returns ErrTaskNotFound if the task does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// UpdateStatusBefore sets the status of a task only if the task has not
	// been modified after the given cutoff. Returns false (and no error)
	// when the task was modified after the cutoff, letting callers discard
	// stale writes. Returns ErrTaskNotFound if the task does not exist.
	UpdateStatusBefore(ctx context.Context, id uuid.UUID, status domain.TaskStatus, cutoff time.Time) (bool, error)

	// FindByIDs retrieves all existing tasks among the given IDs in a single
	// query. Missing IDs are simply absent from the result, not an error.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error)

	// BulkUpdateStatus sets the status of every listed task in one statement.
	// Missing IDs are ignored. If the statement itself fails, nothing is
	// applied.
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.TaskStatus) error

	// BulkDelete removes every listed task in one statement. Missing IDs are
	// ignored.
	BulkDelete(ctx context.Context, ids []uuid.UUID) error

	// FindOverdueIDs returns the IDs of tasks whose due date is strictly
	// before the given instant and whose status is still PENDING. Only IDs
	// are projected; overdue result sets can be large.
	FindOverdueIDs(ctx context.Context, before time.Time) ([]uuid.UUID, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller,
	// typically via RunInTransaction.
	WithTx(tx *sql.Tx) TaskStore
}
