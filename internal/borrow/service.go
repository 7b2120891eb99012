package borrow

import (
	"context"
	"errors"
	"time"

	"openshelf.org/internal/audit"
	"openshelf.org/internal/catalog"
	"openshelf.org/internal/ids"
	"openshelf.org/internal/obs"
	"openshelf.org/internal/vault"
)

// Store persists loans.
type Store interface {
	// FindActiveLoan returns ErrNotFound when the pair has no active loan.
	FindActiveLoan(ctx context.Context, userID, bookID string) (*Loan, error)
	// InsertLoan returns ErrDuplicateLoan when the partial unique index
	// rejects a second active loan for the same pair.
	InsertLoan(ctx context.Context, loan *Loan) error
	DeleteLoan(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) error
	MarkReturned(ctx context.Context, id string, at time.Time) error
	FindLoan(ctx context.Context, id string) (*Loan, error)
	ListByUser(ctx context.Context, userID string) ([]Loan, error)
	ListActive(ctx context.Context, limit int) ([]Loan, error)
}

// Books is the slice of the catalog the workflow needs.
type Books interface {
	GetBook(ctx context.Context, id string) (catalog.BookDetail, error)
	IncrementBorrows(ctx context.Context, id string) error
}

// Vault issues time-limited signed links for stored book files.
type Vault interface {
	IssueSignedLink(ctx context.Context, path string, ttl time.Duration) (vault.SignedLink, error)
}

// Recorder persists workflow events that must outlive log retention. The
// reconciliation sweep reads compensation failures back from this store.
type Recorder interface {
	Record(ctx context.Context, act audit.Activity) error
}

// Service runs the borrow workflow: grant a fresh link with a new loan, or
// refresh the link of an existing unexpired one, never both.
type Service struct {
	loans    Store
	books    Books
	vault    Vault
	recorder Recorder
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRecorder enables durable recording of compensation failures.
func WithRecorder(rec Recorder) Option {
	return func(s *Service) {
		s.recorder = rec
	}
}

// NewService wires the workflow's collaborators.
func NewService(loans Store, books Books, v Vault, opts ...Option) *Service {
	svc := &Service{loans: loans, books: books, vault: v, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Borrow grants readerID timed access to bookID. Side effects per invocation:
// at most one loan insert, at most one compensating delete, at most one vault
// credential request.
func (s *Service) Borrow(ctx context.Context, readerID, bookID string) (Grant, error) {
	if readerID == "" {
		return Grant{}, ErrUnauthenticated
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, err
	}
	if !book.Borrowable() {
		return Grant{}, ErrNotBorrowable
	}

	existing, err := s.loans.FindActiveLoan(ctx, readerID, bookID)
	switch {
	case err == nil:
		return s.refreshExisting(ctx, book, existing)
	case errors.Is(err, ErrNotFound):
		// no active loan, fall through to create one
	default:
		return Grant{}, err
	}

	return s.createLoan(ctx, readerID, book)
}

// refreshExisting re-issues a link scoped to the remaining time on the loan.
// A stale loan is transitioned to expired at detection time instead of being
// left active with no usable link.
func (s *Service) refreshExisting(ctx context.Context, book catalog.BookDetail, loan *Loan) (Grant, error) {
	now := s.now().UTC()
	remaining := loan.Remaining(now)
	if remaining <= 0 {
		if err := s.loans.MarkExpired(ctx, loan.ID); err != nil {
			_ = audit.LogEvent(ctx, "borrow.expire_transition_failed", map[string]any{
				"loan_id": loan.ID,
				"error":   err.Error(),
			})
		}
		obs.BorrowExpired()
		return Grant{}, ErrBorrowExpired
	}

	path, err := vault.StoragePath(book.FileURL)
	if err != nil {
		return Grant{}, ErrInvalidContentReference
	}
	if remaining < time.Minute {
		remaining = time.Minute
	}
	link, err := s.vault.IssueSignedLink(ctx, path, remaining)
	if err != nil {
		return Grant{}, ErrCredentialIssuance
	}
	obs.BorrowReused()
	return Grant{
		LoanID:    loan.ID,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
		DueAt:     loan.DueAt,
		Reused:    true,
	}, nil
}

func (s *Service) createLoan(ctx context.Context, readerID string, book catalog.BookDetail) (Grant, error) {
	now := s.now().UTC()
	loan := &Loan{
		ID:         ids.New(),
		UserID:     readerID,
		BookID:     book.ID,
		BorrowedAt: now,
		DueAt:      now.Add(time.Duration(book.BorrowDays()) * 24 * time.Hour),
		Status:     StatusActive,
	}
	if err := s.loans.InsertLoan(ctx, loan); err != nil {
		if errors.Is(err, ErrDuplicateLoan) {
			// A concurrent request won the insert; the unique index is the
			// authoritative duplicate signal, so serve the winner's loan.
			winner, findErr := s.loans.FindActiveLoan(ctx, readerID, book.ID)
			if findErr != nil {
				return Grant{}, ErrLoanCreation
			}
			return s.refreshExisting(ctx, book, winner)
		}
		return Grant{}, ErrLoanCreation
	}

	path, err := vault.StoragePath(book.FileURL)
	if err != nil {
		s.compensate(ctx, loan, ErrInvalidContentReference)
		return Grant{}, ErrInvalidContentReference
	}

	ttl := loan.DueAt.Sub(now)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	link, err := s.vault.IssueSignedLink(ctx, path, ttl)
	if err != nil {
		s.compensate(ctx, loan, ErrCredentialIssuance)
		return Grant{}, ErrCredentialIssuance
	}

	if err := s.books.IncrementBorrows(ctx, book.ID); err != nil {
		// Counter drift only; the grant itself already succeeded.
		_ = audit.LogEvent(ctx, "borrow.counter_update_failed", map[string]any{
			"book_id": book.ID,
			"error":   err.Error(),
		})
	}
	obs.BorrowGranted()
	return Grant{
		LoanID:    loan.ID,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
		DueAt:     loan.DueAt,
	}, nil
}

// compensate deletes the loan created earlier in this invocation so a reader
// is never left with an active loan and no usable link. Best effort: its own
// failure is logged distinctly so the reconciliation sweep can find the
// orphan, and the original error is what the caller sees.
func (s *Service) compensate(ctx context.Context, loan *Loan, cause error) {
	if err := s.loans.DeleteLoan(ctx, loan.ID); err != nil {
		obs.BorrowCompensated(false)
		_ = audit.LogEvent(ctx, "borrow.compensation_failed", map[string]any{
			"loan_id": loan.ID,
			"book_id": loan.BookID,
			"cause":   cause.Error(),
			"error":   err.Error(),
		})
		if s.recorder != nil {
			// The durable row is what the reconciliation sweep queries.
			_ = s.recorder.Record(ctx, audit.Activity{
				UserID:     loan.UserID,
				Action:     "borrow.compensation_failed",
				EntityType: "loan",
				EntityID:   loan.ID,
				Details: map[string]any{
					"book_id": loan.BookID,
					"cause":   cause.Error(),
					"error":   err.Error(),
				},
			})
		}
		return
	}
	obs.BorrowCompensated(true)
	_ = audit.LogEvent(ctx, "borrow.compensated", map[string]any{
		"loan_id": loan.ID,
		"book_id": loan.BookID,
		"cause":   cause.Error(),
	})
}

// Return marks the reader's active loan returned.
func (s *Service) Return(ctx context.Context, readerID, loanID string) (*Loan, error) {
	if readerID == "" {
		return nil, ErrUnauthenticated
	}
	loan, err := s.loans.FindLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.UserID != readerID {
		return nil, ErrNotFound
	}
	if loan.Status != StatusActive {
		return nil, ErrNotActive
	}
	now := s.now().UTC()
	if err := s.loans.MarkReturned(ctx, loan.ID, now); err != nil {
		return nil, err
	}
	loan.Status = StatusReturned
	loan.ReturnedAt = &now
	return loan, nil
}

// History lists the reader's loans newest-first.
func (s *Service) History(ctx context.Context, readerID string) ([]Loan, error) {
	if readerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.loans.ListByUser(ctx, readerID)
}
