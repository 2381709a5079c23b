package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/api/shared"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/service"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// fakeTaskService implements service.TaskService with canned behavior.
type fakeTaskService struct {
	task        *domain.Task
	tasks       []*domain.Task
	results     []service.BatchResult
	deadLetters []*queue.Job
	err         error

	lastBatchAction service.BatchAction
	lastBatchIDs    []uuid.UUID
}

func (s *fakeTaskService) CreateTask(ctx context.Context, ownerID uuid.UUID, input service.CreateTaskInput) (*domain.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	task, err := domain.NewTask(ownerID, input.Title, input.Description, input.Priority, input.DueDate)
	if err != nil {
		return nil, err
	}
	s.task = task
	return task, nil
}

func (s *fakeTaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.task, nil
}

func (s *fakeTaskService) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.tasks, len(s.tasks), nil
}

func (s *fakeTaskService) UpdateTask(ctx context.Context, id uuid.UUID, input service.UpdateTaskInput) (*domain.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.task, nil
}

func (s *fakeTaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return s.err
}

func (s *fakeTaskService) BatchProcess(ctx context.Context, action service.BatchAction, ids []uuid.UUID) ([]service.BatchResult, error) {
	s.lastBatchAction = action
	s.lastBatchIDs = ids
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *fakeTaskService) ListDeadLetteredJobs(ctx context.Context, limit int) ([]*queue.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.deadLetters, nil
}

var _ service.TaskService = (*fakeTaskService)(nil)

func authedRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(req.Context(), shared.UserIDContextKey, uuid.New())
	return req.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateTaskSuccess(t *testing.T) {
	svc := &fakeTaskService{}
	handler := NewTaskHandler(svc)

	req := authedRequest(t, http.MethodPost, "/api/tasks", CreateTaskRequest{
		Title:    "write report",
		Priority: "HIGH",
	})
	rec := httptest.NewRecorder()

	handler.CreateTask(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "write report", resp.Title)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "HIGH", resp.Priority)
}

func TestCreateTaskRequiresAuthenticatedUser(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	body, _ := json.Marshal(CreateTaskRequest{Title: "write report"})
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CreateTask(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTaskRejectsInvalidBody(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBufferString("{not json"))
	ctx := context.WithValue(req.Context(), shared.UserIDContextKey, uuid.New())
	rec := httptest.NewRecorder()

	handler.CreateTask(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskRejectsMissingTitle(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := authedRequest(t, http.MethodPost, "/api/tasks", CreateTaskRequest{Title: ""})
	rec := httptest.NewRecorder()

	handler.CreateTask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{err: service.ErrTaskNotFound})

	req := withURLParam(authedRequest(t, http.MethodGet, "/api/tasks/x", nil), "id", uuid.New().String())
	rec := httptest.NewRecorder()

	handler.GetTask(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Task not found", resp.Error)
}

func TestGetTaskRejectsMalformedID(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := withURLParam(authedRequest(t, http.MethodGet, "/api/tasks/nope", nil), "id", "nope")
	rec := httptest.NewRecorder()

	handler.GetTask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := authedRequest(t, http.MethodGet, "/api/tasks?status=DONE", nil)
	rec := httptest.NewRecorder()

	handler.ListTasks(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTaskNoContent(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := withURLParam(authedRequest(t, http.MethodDelete, "/api/tasks/x", nil), "id", uuid.New().String())
	rec := httptest.NewRecorder()

	handler.DeleteTask(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBatchProcessSuccess(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	svc := &fakeTaskService{results: []service.BatchResult{
		{TaskID: id1, Success: true, Result: "completed"},
		{TaskID: id2, Success: false, Error: "Task not found"},
	}}
	handler := NewTaskHandler(svc)

	req := authedRequest(t, http.MethodPost, "/api/tasks/batch", BatchProcessRequest{
		TaskIDs: []string{id1.String(), id2.String()},
		Action:  "complete",
	})
	rec := httptest.NewRecorder()

	handler.BatchProcess(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.BatchActionComplete, svc.lastBatchAction)
	assert.Equal(t, []uuid.UUID{id1, id2}, svc.lastBatchIDs)

	var resp BatchProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, "Task not found", resp.Results[1].Error)
}

func TestBatchProcessRejectsUnknownAction(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := authedRequest(t, http.MethodPost, "/api/tasks/batch", BatchProcessRequest{
		TaskIDs: []string{uuid.New().String()},
		Action:  "archive",
	})
	rec := httptest.NewRecorder()

	handler.BatchProcess(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchProcessRejectsEmptyIDs(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := authedRequest(t, http.MethodPost, "/api/tasks/batch", BatchProcessRequest{
		TaskIDs: []string{},
		Action:  "delete",
	})
	rec := httptest.NewRecorder()

	handler.BatchProcess(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDeadLetters(t *testing.T) {
	svc := &fakeTaskService{deadLetters: []*queue.Job{
		{
			ID:        uuid.New(),
			Kind:      queue.JobKindStatusUpdate,
			TaskID:    uuid.New(),
			Status:    queue.JobStatusDeadLettered,
			Attempts:  5,
			LastError: "store unavailable",
		},
	}}
	handler := NewTaskHandler(svc)

	req := authedRequest(t, http.MethodGet, "/api/jobs/dead-letters", nil)
	rec := httptest.NewRecorder()

	handler.ListDeadLetters(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []DeadLetterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, 5, resp[0].Attempts)
	assert.Equal(t, "store unavailable", resp[0].LastError)
}

func TestListDeadLettersRejectsBadLimit(t *testing.T) {
	handler := NewTaskHandler(&fakeTaskService{})

	req := authedRequest(t, http.MethodGet, "/api/jobs/dead-letters?limit=-1", nil)
	rec := httptest.NewRecorder()

	handler.ListDeadLetters(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
