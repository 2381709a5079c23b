package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	ownerID := uuid.New()
	due := time.Now().UTC().Add(24 * time.Hour)

	task, err := NewTask(ownerID, "Write report", "quarterly numbers", TaskPriorityHigh, &due)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, ownerID, task.OwnerID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, TaskPriorityHigh, task.Priority)
	assert.NotNil(t, task.DueDate)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestNewTaskValidation(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		priority TaskPriority
		wantErr  error
	}{
		{
			name:     "empty title",
			title:    "",
			priority: TaskPriorityLow,
			wantErr:  ErrTaskTitleEmpty,
		},
		{
			name:     "invalid priority",
			title:    "something",
			priority: TaskPriority("URGENT"),
			wantErr:  ErrInvalidTaskPriority,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTask(uuid.New(), tt.title, "", tt.priority, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTaskStatusIsValid(t *testing.T) {
	valid := []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "expected %q to be valid", s)
	}

	invalid := []TaskStatus{"", "pending", "DONE", "OVERDUE"}
	for _, s := range invalid {
		assert.False(t, s.IsValid(), "expected %q to be invalid", s)
	}
}

func TestParseTaskStatus(t *testing.T) {
	status, err := ParseTaskStatus("COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, status)

	_, err = ParseTaskStatus("completed")
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)
}

func TestParseTaskPriority(t *testing.T) {
	priority, err := ParseTaskPriority("MEDIUM")
	require.NoError(t, err)
	assert.Equal(t, TaskPriorityMedium, priority)

	_, err = ParseTaskPriority("critical")
	assert.ErrorIs(t, err, ErrInvalidTaskPriority)
}
