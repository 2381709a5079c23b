package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck-api/internal/domain"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// fakeOverdueStore implements only the store surface the scanner touches;
// every other TaskStore method is unreachable from a scan.
type fakeOverdueStore struct {
	store.TaskStore

	mu       sync.Mutex
	tasks    []*domain.Task
	queryErr error
	lastCut  time.Time
}

func (s *fakeOverdueStore) FindOverdueIDs(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	s.lastCut = before
	var ids []uuid.UUID
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusPending && task.DueDate != nil && task.DueDate.Before(before) {
			ids = append(ids, task.ID)
		}
	}
	return ids, nil
}

// fakeEnqueuer records bulk enqueues.
type fakeEnqueuer struct {
	mu      sync.Mutex
	batches [][]queue.JobRequest
	err     error
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, req queue.JobRequest) (uuid.UUID, error) {
	return uuid.Nil, errors.New("scanner must use bulk enqueue")
}

func (e *fakeEnqueuer) EnqueueBulk(ctx context.Context, reqs []queue.JobRequest) ([]uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, reqs)
	ids := make([]uuid.UUID, len(reqs))
	for i := range reqs {
		ids[i] = uuid.New()
	}
	return ids, nil
}

func (e *fakeEnqueuer) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func taskWith(t *testing.T, status domain.TaskStatus, due time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), "water the plants", "", domain.TaskPriorityLow, &due)
	require.NoError(t, err)
	task.Status = status
	return task
}

func TestRunEnqueuesOnlyOverduePending(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	tomorrow := time.Now().UTC().Add(24 * time.Hour)

	overduePending := taskWith(t, domain.TaskStatusPending, yesterday)
	overdueCompleted := taskWith(t, domain.TaskStatusCompleted, yesterday)
	futurePending := taskWith(t, domain.TaskStatusPending, tomorrow)

	taskStore := &fakeOverdueStore{tasks: []*domain.Task{overduePending, overdueCompleted, futurePending}}
	enqueuer := &fakeEnqueuer{}
	s := New(taskStore, enqueuer, time.Hour, testLogger())

	s.Run(context.Background())

	require.Equal(t, 1, enqueuer.batchCount())
	batch := enqueuer.batches[0]
	require.Len(t, batch, 1)
	assert.Equal(t, queue.JobKindOverdueSweep, batch[0].Kind)
	assert.Equal(t, overduePending.ID, batch[0].TaskID)
	assert.Nil(t, batch[0].TargetStatus)
}

func TestRunNoOverdueTasksIsQuiet(t *testing.T) {
	taskStore := &fakeOverdueStore{}
	enqueuer := &fakeEnqueuer{}
	s := New(taskStore, enqueuer, time.Hour, testLogger())

	s.Run(context.Background())

	assert.Zero(t, enqueuer.batchCount(), "empty scan must not enqueue anything")
}

func TestRunQueryFailureEndsRun(t *testing.T) {
	taskStore := &fakeOverdueStore{queryErr: errors.New("store unavailable")}
	enqueuer := &fakeEnqueuer{}
	s := New(taskStore, enqueuer, time.Hour, testLogger())

	s.Run(context.Background())

	assert.Zero(t, enqueuer.batchCount())
}

func TestRunEnqueueFailureIsNotRetried(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	taskStore := &fakeOverdueStore{tasks: []*domain.Task{taskWith(t, domain.TaskStatusPending, yesterday)}}
	enqueuer := &fakeEnqueuer{err: errors.New("queue store down")}
	s := New(taskStore, enqueuer, time.Hour, testLogger())

	// The run just logs and ends; the next scheduled run rediscovers.
	s.Run(context.Background())
	assert.Zero(t, enqueuer.batchCount())
}

func TestScannerLoopRunsOnSchedule(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	taskStore := &fakeOverdueStore{tasks: []*domain.Task{taskWith(t, domain.TaskStatusPending, yesterday)}}
	enqueuer := &fakeEnqueuer{}

	s := New(taskStore, enqueuer, 10*time.Millisecond, testLogger())
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return enqueuer.batchCount() >= 2
	}, 2*time.Second, 5*time.Millisecond, "scanner should keep running on its schedule")
}

var _ store.TaskStore = (*fakeOverdueStore)(nil)
