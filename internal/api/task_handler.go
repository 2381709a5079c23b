package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/taskdeck/taskdeck-api/internal/api/shared"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/platform/logger"
	"github.com/taskdeck/taskdeck-api/internal/service"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService service.TaskService
	validator   *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
	}
}

// CreateTask handles POST /api/tasks requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	priority := domain.TaskPriorityMedium
	if req.Priority != "" {
		parsed, err := domain.ParseTaskPriority(req.Priority)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
			return
		}
		priority = parsed
	}

	task, err := h.taskService.CreateTask(r.Context(), userID, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /api/tasks requests. Filtering, sorting and paging
// come from query parameters; unknown values are rejected, not ignored.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilterFromQuery(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
		return
	}

	tasks, total, err := h.taskService.ListTasks(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, taskToResponse(task))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks: responses,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// UpdateTask handles PATCH /api/tasks/{id} requests.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	input := service.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}

	if req.Status != nil {
		status, err := domain.ParseTaskStatus(*req.Status)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
			return
		}
		input.Status = &status
	}
	if req.Priority != nil {
		priority, err := domain.ParseTaskPriority(*req.Priority)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
			return
		}
		input.Priority = &priority
	}

	task, err := h.taskService.UpdateTask(r.Context(), id, input)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BatchProcess handles POST /api/tasks/batch requests. The response always
// carries one result per requested ID; per-task failures are reported inline
// rather than failing the request.
func (h *TaskHandler) BatchProcess(w http.ResponseWriter, r *http.Request) {
	var req BatchProcessRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ids := make([]uuid.UUID, len(req.TaskIDs))
	for i, raw := range req.TaskIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task id: "+raw)
			return
		}
		ids[i] = id
	}

	results, err := h.taskService.BatchProcess(r.Context(), service.BatchAction(req.Action), ids)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BatchProcessResponse{Results: results})
}

// ListDeadLetters handles GET /api/jobs/dead-letters requests, exposing
// dead-lettered jobs for operator inspection.
func (h *TaskHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	jobs, err := h.taskService.ListDeadLetteredJobs(r.Context(), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]DeadLetterResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToDeadLetterResponse(job))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// taskID extracts and parses the {id} route parameter, responding with 400 on
// a malformed value.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Debug("rejecting malformed task id", "raw_id", raw)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

// listFilterFromQuery builds a store.TaskFilter from the request query.
func listFilterFromQuery(r *http.Request) (store.TaskFilter, error) {
	q := r.URL.Query()
	filter := store.TaskFilter{Page: 1, Limit: 20}

	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseTaskStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if raw := q.Get("priority"); raw != "" {
		priority, err := domain.ParseTaskPriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = priority
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err == nil && page > 0 {
			filter.Page = page
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if raw := q.Get("sort_by"); raw != "" {
		filter.SortBy = raw
	}
	filter.SortDesc = q.Get("order") == "desc"

	return filter, nil
}
