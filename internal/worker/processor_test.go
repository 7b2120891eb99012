package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"openshelf.org/internal/queue"
)

type fakeLoans struct {
	swept      int64
	orphans    int64
	err        error
	at         time.Time
	reconciles int
}

func (f *fakeLoans) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	f.at = now
	return f.swept, f.err
}

func (f *fakeLoans) ReconcileOrphans(_ context.Context) (int64, error) {
	f.reconciles++
	return f.orphans, f.err
}

type fakeBooks struct {
	bookID string
	pages  int
	err    error
}

func (f *fakeBooks) SetBookPages(_ context.Context, id string, pages int) error {
	f.bookID = id
	f.pages = pages
	return f.err
}

type fakeFiles struct {
	data []byte
	err  error
	path string
}

func (f *fakeFiles) FetchFile(_ context.Context, path string) ([]byte, error) {
	f.path = path
	return f.data, f.err
}

func TestHandleExpireLoans(t *testing.T) {
	loans := &fakeLoans{swept: 2}
	p := NewProcessor(loans, &fakeBooks{}, &fakeFiles{})
	fixed := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	task := asynq.NewTask(queue.ExpireLoansTask, nil)
	if err := p.handleExpireLoans(context.Background(), task); err != nil {
		t.Fatalf("handleExpireLoans: %v", err)
	}
	if !loans.at.Equal(fixed) {
		t.Fatalf("sweep cutoff = %v, want %v", loans.at, fixed)
	}
}

func TestHandleExpireLoansPropagatesStoreError(t *testing.T) {
	loans := &fakeLoans{err: errors.New("pg down")}
	p := NewProcessor(loans, &fakeBooks{}, &fakeFiles{})

	task := asynq.NewTask(queue.ExpireLoansTask, nil)
	if err := p.handleExpireLoans(context.Background(), task); err == nil {
		t.Fatal("expected error so asynq retries the sweep")
	}
}

func TestHandleReconcileLoans(t *testing.T) {
	loans := &fakeLoans{orphans: 1}
	p := NewProcessor(loans, &fakeBooks{}, &fakeFiles{})

	task := asynq.NewTask(queue.ReconcileLoansTask, nil)
	if err := p.handleReconcileLoans(context.Background(), task); err != nil {
		t.Fatalf("handleReconcileLoans: %v", err)
	}
	if loans.reconciles != 1 {
		t.Fatalf("reconciles = %d, want 1", loans.reconciles)
	}
}

func TestHandlePageCountBadPayload(t *testing.T) {
	p := NewProcessor(&fakeLoans{}, &fakeBooks{}, &fakeFiles{})
	task := asynq.NewTask(queue.PageCountTask, []byte("{"))
	if err := p.handlePageCount(context.Background(), task); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestHandlePageCountUnreadablePDFIsTerminal(t *testing.T) {
	files := &fakeFiles{data: []byte("not a pdf")}
	books := &fakeBooks{}
	p := NewProcessor(&fakeLoans{}, books, files)

	payload, _ := json.Marshal(queue.PageCountPayload{BookID: "bk1", StoragePath: "bk1/book.pdf"})
	task := asynq.NewTask(queue.PageCountTask, payload)
	if err := p.handlePageCount(context.Background(), task); err != nil {
		t.Fatalf("unreadable pdf must not be retried: %v", err)
	}
	if books.bookID != "" {
		t.Fatal("pages must not be recorded for an unreadable file")
	}
	if files.path != "bk1/book.pdf" {
		t.Fatalf("fetched %q", files.path)
	}
}
