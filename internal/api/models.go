// Package api implements the HTTP surface: request decoding, validation,
// error mapping, and handlers delegating to the service layer.
package api

import (
	"time"

	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/service"
)

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Title       string     `json:"title"                 validate:"required,min=1,max=200"`
	Description string     `json:"description,omitempty" validate:"max=2000"`
	Priority    string     `json:"priority,omitempty"    validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// UpdateTaskRequest defines the payload for a partial task update.
// Absent fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty"       validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string    `json:"status,omitempty"      validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED CANCELLED"`
	Priority    *string    `json:"priority,omitempty"    validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// BatchProcessRequest defines the payload for the batch endpoint.
type BatchProcessRequest struct {
	TaskIDs []string `json:"taskIds" validate:"required,min=1,dive,uuid4"`
	Action  string   `json:"action"  validate:"required,oneof=complete delete"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskListResponse wraps a page of tasks with its total match count.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// BatchProcessResponse wraps the per-task results of a batch request.
type BatchProcessResponse struct {
	Results []service.BatchResult `json:"results"`
}

// DeadLetterResponse represents a dead-lettered job for inspection.
type DeadLetterResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	TaskID     string    `json:"taskId"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// taskToResponse converts a domain.Task to a TaskResponse.
func taskToResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID.String(),
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		DueDate:     task.DueDate,
		OwnerID:     task.OwnerID.String(),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// jobToDeadLetterResponse converts a queue.Job to a DeadLetterResponse.
func jobToDeadLetterResponse(job *queue.Job) DeadLetterResponse {
	return DeadLetterResponse{
		ID:         job.ID.String(),
		Kind:       string(job.Kind),
		TaskID:     job.TaskID.String(),
		Attempts:   job.Attempts,
		LastError:  job.LastError,
		EnqueuedAt: job.EnqueuedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}
