// Package main implements the entry point for the TaskDeck API server:
// a task-management backend with an asynchronous job queue, overdue task
// scanning, and rate-limited batch processing.
package main

import (
	"context"
	"log"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx := context.Background()

	if err := app.start(ctx); err != nil {
		app.cleanup()
		log.Fatalf("Failed to start background workers: %v", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
