// Package queue defines the background tasks shared between the API and the
// worker: the overdue-loan sweep and PDF page counting after upload.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ExpireLoansTask transitions past-due active loans to expired.
	ExpireLoansTask = "loan:expire"
	// ReconcileLoansTask removes orphaned active loans left behind by
	// failed compensating deletes.
	ReconcileLoansTask = "loan:reconcile"
	// PageCountTask fills in books.pages after a PDF upload.
	PageCountTask = "book:pagecount"
)

// PageCountPayload tells the worker which stored object belongs to which book.
type PageCountPayload struct {
	BookID      string `json:"book_id"`
	StoragePath string `json:"storage_path"`
}

// Enqueuer submits background tasks; it is the producer half of the queue.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an asynq client for task submission.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueuePageCount schedules page counting for a freshly uploaded book file.
func (e *Enqueuer) EnqueuePageCount(ctx context.Context, bookID, storagePath string) error {
	return EnqueuePageCount(ctx, e.client, PageCountPayload{BookID: bookID, StoragePath: storagePath})
}

// EnqueuePageCount schedules page counting for a freshly uploaded book file.
func EnqueuePageCount(ctx context.Context, client *asynq.Client, payload PageCountPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(PageCountTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue page count task: %w", err)
	}
	return nil
}

// EnqueueExpireSweep schedules one run of the overdue-loan sweep.
func EnqueueExpireSweep(ctx context.Context, client *asynq.Client) error {
	task := asynq.NewTask(ExpireLoansTask, nil)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue expire sweep task: %w", err)
	}
	return nil
}

// EnqueueReconcile schedules one run of the orphaned-loan reconciliation.
func EnqueueReconcile(ctx context.Context, client *asynq.Client) error {
	task := asynq.NewTask(ReconcileLoansTask, nil)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue reconcile task: %w", err)
	}
	return nil
}
