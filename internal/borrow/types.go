package borrow

import "time"

// Loan statuses. At most one active loan exists per (reader, book) pair,
// enforced by a partial unique index in the store.
const (
	StatusActive   = "active"
	StatusReturned = "returned"
	StatusExpired  = "expired"
)

// Loan grants a reader timed access to a book's content.
type Loan struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	BookID     string     `json:"book_id"`
	BookTitle  string     `json:"book_title,omitempty"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     string     `json:"status"`
}

// Remaining reports how long the loan is still usable at the given instant.
func (l Loan) Remaining(now time.Time) time.Duration {
	return l.DueAt.Sub(now)
}

// Grant is the outcome of a successful borrow: a time-limited link to the
// book's content. Reused marks grants resolved against an existing loan.
type Grant struct {
	LoanID    string    `json:"loan_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	DueAt     time.Time `json:"due_at"`
	Reused    bool      `json:"reused"`
}
