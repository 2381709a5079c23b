package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/platform/logger"
	"github.com/taskdeck/taskdeck-api/internal/platform/postgres"
	"github.com/taskdeck/taskdeck-api/internal/queue"
	"github.com/taskdeck/taskdeck-api/internal/ratelimit"
	"github.com/taskdeck/taskdeck-api/internal/scanner"
	"github.com/taskdeck/taskdeck-api/internal/service"
	"github.com/taskdeck/taskdeck-api/internal/service/auth"
	"github.com/taskdeck/taskdeck-api/internal/worker"
)

// application holds all wired components for the running server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	redisClient *redis.Client

	jobQueue   *queue.Queue
	workerPool *worker.Pool
	scanner    *scanner.Scanner

	taskService service.TaskService
	jwtService  auth.JWTService
	limiter     *ratelimit.Limiter
}

// initializeApp loads configuration and wires every component, in dependency
// order: config, logging, database (with migrations), redis, queue, workers,
// scanner, services. It does not start any background loop; start() does.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, log); err != nil {
		return nil, err
	}

	redisClient, err := setupRedis(cfg, log)
	if err != nil {
		return nil, err
	}

	taskStore := postgres.NewTaskStore(db)
	jobStore := postgres.NewJobStore(db)

	jobQueue := queue.NewQueue(jobStore, cfg.Queue.Size, log)

	workerPool := worker.NewPool(jobQueue, jobStore, taskStore, worker.Config{
		Count:          cfg.Worker.Count,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffBase:    cfg.Worker.BackoffBase,
		BackoffMax:     cfg.Worker.BackoffMax,
		AttemptTimeout: cfg.Worker.AttemptTimeout,
	}, log)

	overdueScanner := scanner.New(taskStore, jobQueue, cfg.Scanner.Interval, log)

	taskService := service.NewTaskService(db, taskStore, jobStore, jobQueue, log)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JWT service: %w", err)
	}

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisCounterStore(redisClient),
		ratelimit.Config{
			Limit:    cfg.RateLimit.Limit,
			Window:   cfg.RateLimit.Window,
			FailOpen: cfg.RateLimit.FailOpen,
		},
		log,
	)

	return &application{
		config:      cfg,
		logger:      log,
		db:          db,
		redisClient: redisClient,
		jobQueue:    jobQueue,
		workerPool:  workerPool,
		scanner:     overdueScanner,
		taskService: taskService,
		jwtService:  jwtService,
		limiter:     limiter,
	}, nil
}

// start brings up the background machinery. Recovery runs before the workers
// so jobs interrupted by the previous shutdown are back on the channel when
// consumption begins; the sweeper then keeps re-offering anything that misses
// the channel buffer while the process runs.
func (app *application) start(ctx context.Context) error {
	if err := app.jobQueue.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover queued jobs: %w", err)
	}

	app.jobQueue.StartSweeper(app.config.Queue.SweepInterval)
	app.workerPool.Start()
	app.scanner.Start()
	return nil
}

// cleanup tears components down in reverse start order. The scanner stops
// first so no new jobs are produced while the workers drain.
func (app *application) cleanup() {
	app.scanner.Stop()
	app.workerPool.Stop()
	app.jobQueue.Close()

	if err := app.redisClient.Close(); err != nil {
		app.logger.Error("failed to close redis client", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
	}
}
