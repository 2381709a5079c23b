package queue

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/domain"
)

// fakeJobStore implements JobStore in memory for testing.
type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*Job
	saveErr  error
	bulkErr  error
	requeued []uuid.UUID
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *fakeJobStore) Save(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeJobStore) SaveAll(ctx context.Context, jobs []*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulkErr != nil {
		return s.bulkErr
	}
	for _, job := range jobs {
		copied := *job
		s.jobs[job.ID] = &copied
	}
	return nil
}

func (s *fakeJobStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(id, JobStatusProcessing)
}

func (s *fakeJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = JobStatusCompleted
		job.Outcome = outcome
	}
	return nil
}

func (s *fakeJobStore) MarkRequeued(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = JobStatusQueued
		job.Attempts = attempts
		job.LastError = lastError
	}
	s.requeued = append(s.requeued, id)
	return nil
}

func (s *fakeJobStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = JobStatusDeadLettered
		job.Attempts = attempts
		job.LastError = lastError
	}
	return nil
}

func (s *fakeJobStore) ListByStatus(ctx context.Context, status JobStatus) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if job.Status == status {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (s *fakeJobStore) ListDeadLettered(ctx context.Context, limit int) ([]*Job, error) {
	return s.ListByStatus(ctx, JobStatusDeadLettered)
}

func (s *fakeJobStore) WithTx(tx *sql.Tx) JobStore { return s }

func (s *fakeJobStore) setStatus(id uuid.UUID, status JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (s *fakeJobStore) get(id uuid.UUID) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *fakeJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestEnqueuePersistsAndDispatches(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 10, setupTestLogger())

	target := domain.TaskStatusCompleted
	taskID := uuid.New()

	jobID, err := q.Enqueue(context.Background(), JobRequest{
		Kind:         JobKindStatusUpdate,
		TaskID:       taskID,
		TargetStatus: &target,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jobID)

	// Persisted as queued
	saved := jobStore.get(jobID)
	require.NotNil(t, saved)
	assert.Equal(t, JobStatusQueued, saved.Status)
	assert.Equal(t, taskID, saved.TaskID)
	assert.False(t, saved.EnqueuedAt.IsZero())

	// Visible to a consumer
	job := <-q.GetChannel()
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, JobKindStatusUpdate, job.Kind)
	require.NotNil(t, job.TargetStatus)
	assert.Equal(t, domain.TaskStatusCompleted, *job.TargetStatus)
}

func TestEnqueueStoreFailure(t *testing.T) {
	jobStore := newFakeJobStore()
	jobStore.saveErr = errors.New("store unavailable")
	q := NewQueue(jobStore, 10, setupTestLogger())

	_, err := q.Enqueue(context.Background(), JobRequest{
		Kind:   JobKindOverdueSweep,
		TaskID: uuid.New(),
	})
	assert.Error(t, err)
	assert.Len(t, q.GetChannel(), 0)
}

func TestEnqueueBulkAllOrNothing(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 10, setupTestLogger())

	reqs := []JobRequest{
		{Kind: JobKindOverdueSweep, TaskID: uuid.New()},
		{Kind: JobKindOverdueSweep, TaskID: uuid.New()},
		{Kind: JobKindOverdueSweep, TaskID: uuid.New()},
	}

	ids, err := q.EnqueueBulk(context.Background(), reqs)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, 3, jobStore.count())
	assert.Len(t, q.GetChannel(), 3)

	// A failing store rejects the whole batch
	jobStore.bulkErr = errors.New("store unavailable")
	_, err = q.EnqueueBulk(context.Background(), reqs)
	assert.Error(t, err)
	assert.Equal(t, 3, jobStore.count(), "failed batch must not be partially persisted")
}

func TestEnqueueInTxDefersDispatch(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 10, setupTestLogger())

	target := domain.TaskStatusPending
	job, err := q.EnqueueInTx(context.Background(), nil, JobRequest{
		Kind:         JobKindStatusUpdate,
		TaskID:       uuid.New(),
		TargetStatus: &target,
	})
	require.NoError(t, err)

	// Persisted as queued but invisible to consumers until Dispatch: a
	// worker must never claim a job whose transaction could still roll back.
	assert.Equal(t, JobStatusQueued, jobStore.get(job.ID).Status)
	assert.Len(t, q.GetChannel(), 0)

	q.Dispatch(job)

	got := <-q.GetChannel()
	assert.Equal(t, job.ID, got.ID)
}

func TestEnqueueBulkInTxDefersDispatch(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 10, setupTestLogger())

	jobs, err := q.EnqueueBulkInTx(context.Background(), nil, []JobRequest{
		{Kind: JobKindOverdueSweep, TaskID: uuid.New()},
		{Kind: JobKindOverdueSweep, TaskID: uuid.New()},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 2, jobStore.count())
	assert.Len(t, q.GetChannel(), 0)

	q.Dispatch(jobs...)
	assert.Len(t, q.GetChannel(), 2)
}

func TestDispatchSkipsNilJobs(t *testing.T) {
	q := NewQueue(newFakeJobStore(), 10, setupTestLogger())

	q.Dispatch(nil)
	assert.Len(t, q.GetChannel(), 0)
}

func TestEnqueueBulkEmpty(t *testing.T) {
	q := NewQueue(newFakeJobStore(), 10, setupTestLogger())

	ids, err := q.EnqueueBulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEnqueueFullBufferKeepsJobDurable(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 1, setupTestLogger())

	_, err := q.Enqueue(context.Background(), JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)

	// Buffer is full: the enqueue still succeeds and the job stays queued
	// in the store for recovery.
	overflowID, err := q.Enqueue(context.Background(), JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)
	assert.Len(t, q.GetChannel(), 1)
	assert.Equal(t, JobStatusQueued, jobStore.get(overflowID).Status)
}

func TestEnqueueAfterClose(t *testing.T) {
	q := NewQueue(newFakeJobStore(), 10, setupTestLogger())
	q.Close()

	_, err := q.Enqueue(context.Background(), JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.EnqueueBulk(context.Background(), []JobRequest{{Kind: JobKindOverdueSweep, TaskID: uuid.New()}})
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Close is idempotent
	q.Close()
}

func TestSweepRedeliversBufferDroppedJob(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 1, setupTestLogger())
	ctx := context.Background()

	firstID, err := q.Enqueue(ctx, JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)

	droppedID, err := q.Enqueue(ctx, JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)
	require.Len(t, q.GetChannel(), 1, "second send must have been dropped")

	// A worker takes the first job and claims it in the store.
	first := <-q.GetChannel()
	assert.Equal(t, firstID, first.ID)
	require.NoError(t, jobStore.MarkProcessing(ctx, first.ID))

	q.Sweep(ctx, 0)

	redelivered := <-q.GetChannel()
	assert.Equal(t, droppedID, redelivered.ID, "the dropped job is delivered without a restart")
}

func TestSweepSkipsFreshJobs(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 10, setupTestLogger())

	_, err := q.Enqueue(context.Background(), JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)
	require.Len(t, q.GetChannel(), 1)

	q.Sweep(context.Background(), time.Minute)

	assert.Len(t, q.GetChannel(), 1, "a job younger than the age floor is not re-offered")
}

func TestSweeperDeliversDroppedJobWhileRunning(t *testing.T) {
	jobStore := newFakeJobStore()
	q := NewQueue(jobStore, 1, setupTestLogger())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)
	droppedID, err := q.Enqueue(ctx, JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, err)

	first := <-q.GetChannel()
	require.NoError(t, jobStore.MarkProcessing(ctx, first.ID))

	q.StartSweeper(10 * time.Millisecond)
	defer q.Close()

	select {
	case job := <-q.GetChannel():
		assert.Equal(t, droppedID, job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("dropped job was never re-offered by the sweeper")
	}
}

func TestRecoverRequeuesUnfinishedJobs(t *testing.T) {
	jobStore := newFakeJobStore()
	ctx := context.Background()

	queued := NewJob(JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, jobStore.Save(ctx, queued))

	interrupted := NewJob(JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, jobStore.Save(ctx, interrupted))
	require.NoError(t, jobStore.MarkProcessing(ctx, interrupted.ID))

	done := NewJob(JobRequest{Kind: JobKindOverdueSweep, TaskID: uuid.New()})
	require.NoError(t, jobStore.Save(ctx, done))
	require.NoError(t, jobStore.MarkCompleted(ctx, done.ID, "completed"))

	q := NewQueue(jobStore, 10, setupTestLogger())
	require.NoError(t, q.Recover(ctx))

	// Both unfinished jobs are back on the channel; the completed one is not.
	assert.Len(t, q.GetChannel(), 2)

	// The interrupted job was reset to queued in the store.
	assert.Equal(t, JobStatusQueued, jobStore.get(interrupted.ID).Status)
	assert.Contains(t, jobStore.requeued, interrupted.ID)
}
