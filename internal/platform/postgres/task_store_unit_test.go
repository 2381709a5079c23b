package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

func TestBuildTaskFilterEmpty(t *testing.T) {
	where, args := buildTaskFilter(store.TaskFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestBuildTaskFilterStatusOnly(t *testing.T) {
	where, args := buildTaskFilter(store.TaskFilter{Status: domain.TaskStatusPending})
	assert.Equal(t, " WHERE status = $1", where)
	require.Len(t, args, 1)
	assert.Equal(t, domain.TaskStatusPending, args[0])
}

func TestBuildTaskFilterStatusAndPriority(t *testing.T) {
	where, args := buildTaskFilter(store.TaskFilter{
		Status:   domain.TaskStatusInProgress,
		Priority: domain.TaskPriorityHigh,
	})
	assert.Equal(t, " WHERE status = $1 AND priority = $2", where)
	require.Len(t, args, 2)
	assert.Equal(t, domain.TaskStatusInProgress, args[0])
	assert.Equal(t, domain.TaskPriorityHigh, args[1])
}

func TestIDPlaceholders(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	placeholders, args := idPlaceholders(ids)

	assert.Equal(t, "$1, $2, $3", placeholders)
	require.Len(t, args, 3)
	for i, id := range ids {
		assert.Equal(t, id, args[i])
	}
}

func TestSortableTaskColumnsRejectsUnknown(t *testing.T) {
	assert.True(t, sortableTaskColumns["created_at"])
	assert.True(t, sortableTaskColumns["due_date"])
	assert.False(t, sortableTaskColumns["id; DROP TABLE tasks"])
	assert.False(t, sortableTaskColumns[""])
}

func TestNullableTime(t *testing.T) {
	assert.False(t, nullableTime(nil).Valid)

	task, err := domain.NewTask(uuid.New(), "title", "", domain.TaskPriorityMedium, nil)
	require.NoError(t, err)
	due := task.CreatedAt
	nt := nullableTime(&due)
	assert.True(t, nt.Valid)
	assert.Equal(t, due, nt.Time)
}

func TestNullableStatus(t *testing.T) {
	assert.False(t, nullableStatus(nil).Valid)

	status := domain.TaskStatusCompleted
	ns := nullableStatus(&status)
	assert.True(t, ns.Valid)
	assert.Equal(t, "COMPLETED", ns.String)
}
