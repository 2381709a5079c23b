package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskdeck/taskdeck-api/internal/api"
	apiMiddleware "github.com/taskdeck/taskdeck-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.taskService)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	rateLimit := apiMiddleware.NewRateLimitMiddleware(app.limiter)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Task endpoints share one admission budget per caller.
			r.Group(func(r chi.Router) {
				r.Use(rateLimit.Limit("tasks"))
				r.Post("/tasks", taskHandler.CreateTask)
				r.Get("/tasks", taskHandler.ListTasks)
				r.Get("/tasks/{id}", taskHandler.GetTask)
				r.Patch("/tasks/{id}", taskHandler.UpdateTask)
				r.Delete("/tasks/{id}", taskHandler.DeleteTask)
			})

			// Batch gets its own budget: one batch call can fan out to many
			// tasks, so it is limited separately from plain CRUD traffic.
			r.Group(func(r chi.Router) {
				r.Use(rateLimit.Limit("batch"))
				r.Post("/tasks/batch", taskHandler.BatchProcess)
			})

			r.Get("/jobs/dead-letters", taskHandler.ListDeadLetters)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
