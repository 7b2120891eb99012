// Package worker runs the background side of the library: the overdue-loan
// sweep and page counting for uploaded PDFs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"openshelf.org/internal/audit"
	"openshelf.org/internal/obs"
	"openshelf.org/internal/pdfinfo"
	"openshelf.org/internal/queue"
)

// Loans is the slice of the loan store the sweep needs.
type Loans interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	ReconcileOrphans(ctx context.Context) (int64, error)
}

// Books records worker-measured metadata.
type Books interface {
	SetBookPages(ctx context.Context, id string, pages int) error
}

// Files fetches stored objects for inspection.
type Files interface {
	FetchFile(ctx context.Context, path string) ([]byte, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	loans Loans
	books Books
	files Files
	now   func() time.Time
}

// NewProcessor constructs a worker processor.
func NewProcessor(loans Loans, books Books, files Files) *Processor {
	return &Processor{loans: loans, books: books, files: files, now: time.Now}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExpireLoansTask, p.handleExpireLoans)
	mux.HandleFunc(queue.ReconcileLoansTask, p.handleReconcileLoans)
	mux.HandleFunc(queue.PageCountTask, p.handlePageCount)
	return mux
}

// handleExpireLoans is the safety net behind the lazy expiry done on borrow
// requests: it catches loans whose readers never came back.
func (p *Processor) handleExpireLoans(ctx context.Context, _ *asynq.Task) error {
	n, err := p.loans.ExpireOverdue(ctx, p.now().UTC())
	if err != nil {
		return fmt.Errorf("expire overdue loans: %w", err)
	}
	if n > 0 {
		obs.LoansSwept(n)
		_ = audit.LogEvent(ctx, "loan.sweep", map[string]any{"expired": n})
	}
	return nil
}

// handleReconcileLoans removes active loans whose compensating delete failed,
// so a reader is never stuck with a loan that has no usable link.
func (p *Processor) handleReconcileLoans(ctx context.Context, _ *asynq.Task) error {
	n, err := p.loans.ReconcileOrphans(ctx)
	if err != nil {
		return fmt.Errorf("reconcile orphaned loans: %w", err)
	}
	if n > 0 {
		obs.LoansReconciled(n)
		_ = audit.LogEvent(ctx, "loan.reconcile", map[string]any{"removed": n})
	}
	return nil
}

func (p *Processor) handlePageCount(ctx context.Context, task *asynq.Task) error {
	var payload queue.PageCountPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	data, err := p.files.FetchFile(ctx, payload.StoragePath)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", payload.StoragePath, err)
	}
	pages, err := pdfinfo.PageCount(data)
	if err != nil {
		// Not a readable PDF; retrying will not change that.
		_ = audit.LogEvent(ctx, "book.pagecount_failed", map[string]any{
			"book_id": payload.BookID,
			"error":   err.Error(),
		})
		return nil
	}
	if err := p.books.SetBookPages(ctx, payload.BookID, pages); err != nil {
		return fmt.Errorf("record pages for book %s: %w", payload.BookID, err)
	}
	return nil
}
