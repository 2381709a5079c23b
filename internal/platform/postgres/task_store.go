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
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// taskColumns is the canonical projection used by every task SELECT.
const taskColumns = "id, title, description, status, priority, due_date, owner_id, created_at, updated_at"

// sortableTaskColumns whitelists the columns List accepts in SortBy. Anything
// else falls back to created_at rather than being interpolated into SQL.
var sortableTaskColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"due_date":   true,
	"priority":   true,
	"title":      true,
	"status":     true,
}

// TaskStore implements the store.TaskStore interface using PostgreSQL.
type TaskStore struct {
	db store.DBTX
}

// NewTaskStore creates a new PostgreSQL implementation of store.TaskStore.
// It accepts a database connection (or transaction) managed by the caller.
func NewTaskStore(db store.DBTX) *TaskStore {
	return &TaskStore{
		db: db,
	}
}

// Ensure TaskStore implements store.TaskStore interface
var _ store.TaskStore = (*TaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return NewTaskStore(tx)
}

// Create implements store.TaskStore.Create
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (id, title, description, status, priority, due_date, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		nullableTime(task.DueDate),
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task", "task_id", task.ID, "error", err)
		return MapError(err)
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = $1", taskColumns)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// List implements store.TaskStore.List. It returns the page of tasks matching
// the filter plus the total match count ignoring pagination.
func (s *TaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	where, args := buildTaskFilter(filter)

	countQuery := "SELECT COUNT(*) FROM tasks" + where
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	sortBy := filter.SortBy
	if !sortableTaskColumns[sortBy] {
		sortBy = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(
		"SELECT %s FROM tasks%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		taskColumns, where, sortBy, direction, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, MapError(err)
	}

	return tasks, total, nil
}

// Update implements store.TaskStore.Update
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4, due_date = $5, updated_at = $6
		WHERE id = $7
	`

	task.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		nullableTime(task.DueDate),
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task", "task_id", task.ID, "error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	return nil
}

// Delete implements store.TaskStore.Delete
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	return nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus. The write is
// unconditional and idempotent: setting the current status again succeeds.
func (s *TaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	return nil
}

// UpdateStatusBefore implements store.TaskStore.UpdateStatusBefore. The guard
// lives in the WHERE clause so the check-and-set is a single atomic statement;
// zero affected rows then means either "task gone" or "task modified after the
// cutoff", distinguished by a follow-up existence probe.
func (s *TaskStore) UpdateStatusBefore(
	ctx context.Context,
	id uuid.UUID,
	status domain.TaskStatus,
	cutoff time.Time,
) (bool, error) {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = $2
		WHERE id = $3 AND updated_at <= $4
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id, cutoff)
	if err != nil {
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)", id).Scan(&exists); err != nil {
		return false, MapError(err)
	}
	if !exists {
		return false, store.ErrTaskNotFound
	}

	return false, nil
}

// FindByIDs implements store.TaskStore.FindByIDs
func (s *TaskStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := idPlaceholders(ids)
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id IN (%s)", taskColumns, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tasks, nil
}

// BulkUpdateStatus implements store.TaskStore.BulkUpdateStatus
func (s *TaskStore) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.TaskStatus) error {
	if len(ids) == 0 {
		return nil
	}

	args := []interface{}{status, time.Now().UTC()}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"UPDATE tasks SET status = $1, updated_at = $2 WHERE id IN (%s)",
		strings.Join(placeholders, ", "),
	)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return MapError(err)
	}

	return nil
}

// BulkDelete implements store.TaskStore.BulkDelete
func (s *TaskStore) BulkDelete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := idPlaceholders(ids)
	query := fmt.Sprintf("DELETE FROM tasks WHERE id IN (%s)", placeholders)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return MapError(err)
	}

	return nil
}

// FindOverdueIDs implements store.TaskStore.FindOverdueIDs. Only the id column
// is projected so the scan stays cheap even with a large overdue backlog.
func (s *TaskStore) FindOverdueIDs(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM tasks
		WHERE due_date IS NOT NULL AND due_date < $1 AND status = $2
		ORDER BY due_date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, before, domain.TaskStatusPending)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return ids, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var dueDate sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&dueDate,
		&task.OwnerID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		t := dueDate.Time.UTC()
		task.DueDate = &t
	}

	return &task, nil
}

// buildTaskFilter renders the WHERE clause for List. Values are always bound
// as parameters; only fixed column names appear in the SQL text.
func buildTaskFilter(filter store.TaskFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func idPlaceholders(ids []uuid.UUID) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
