// Package scanner implements the timer-driven producer that discovers
// overdue tasks and enqueues sweep jobs for them.
package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/store"
)

// Scanner periodically queries the task store for tasks past due and still
// pending, then bulk-enqueues one overdue-sweep job per task. Each run is
// independent: a failed enqueue is only logged, because the next run will
// rediscover the same tasks. Running redundant scanners across processes is
// safe; sweep jobs re-check eligibility before acting.
type Scanner struct {
	taskStore store.TaskStore
	enqueuer  queue.Writer
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scanner with the given scan interval.
func New(taskStore store.TaskStore, enqueuer queue.Writer, interval time.Duration, logger *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scanner{
		taskStore: taskStore,
		enqueuer:  enqueuer,
		interval:  interval,
		logger:    logger.With("component", "overdue_scanner"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the scan loop in its own goroutine. The first scan happens
// one interval after start, not immediately.
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("overdue scanner started", "interval", s.interval)
}

// Stop terminates the scan loop and waits for any in-flight run.
func (s *Scanner) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("overdue scanner stopped")
}

func (s *Scanner) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Run(s.ctx)
		}
	}
}

// Run executes a single scan. Exported so operators (and tests) can trigger
// a sweep outside the regular schedule.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Debug("checking for overdue tasks")

	now := time.Now().UTC()

	// Only IDs are fetched; overdue backlogs can be large.
	ids, err := s.taskStore.FindOverdueIDs(ctx, now)
	if err != nil {
		s.logger.Error("failed to query overdue tasks", "error", err)
		return
	}

	if len(ids) == 0 {
		s.logger.Debug("no overdue tasks found")
		return
	}

	s.logger.Info("found overdue tasks", "count", len(ids))

	reqs := make([]queue.JobRequest, len(ids))
	for i, id := range ids {
		reqs[i] = queue.JobRequest{
			Kind:   queue.JobKindOverdueSweep,
			TaskID: id,
		}
	}

	// No retry here on failure: the next scheduled run rediscovers the same
	// tasks, so the scan is self-healing.
	if _, err := s.enqueuer.EnqueueBulk(ctx, reqs); err != nil {
		s.logger.Error("failed to enqueue overdue sweep jobs",
			"count", len(reqs),
			"error", err)
		return
	}

	s.logger.Info("queued overdue tasks for processing", "count", len(reqs))
}
