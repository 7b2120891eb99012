package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"openshelf.org/internal/borrow"
)

const loanColumns = `
    l.id, l.user_id, l.book_id, coalesce(b.title, '') as book_title,
    l.borrowed_at, l.due_at, l.returned_at, l.status`

func scanLoan(row interface{ Scan(...any) error }) (*borrow.Loan, error) {
	var l borrow.Loan
	var returned sql.NullTime
	if err := row.Scan(&l.ID, &l.UserID, &l.BookID, &l.BookTitle,
		&l.BorrowedAt, &l.DueAt, &returned, &l.Status); err != nil {
		return nil, err
	}
	if returned.Valid {
		l.ReturnedAt = &returned.Time
	}
	return &l, nil
}

func (s *Store) FindActiveLoan(ctx context.Context, userID, bookID string) (*borrow.Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx, `
        select`+loanColumns+`
        from loans l
        left join books b on b.id = l.book_id
        where l.user_id = $1 and l.book_id = $2 and l.status = 'active'`,
		userID, bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, borrow.ErrNotFound
	}
	return loan, err
}

// InsertLoan relies on the partial unique index over (user_id, book_id) for
// active loans; a violation surfaces as ErrDuplicateLoan.
func (s *Store) InsertLoan(ctx context.Context, loan *borrow.Loan) error {
	_, err := s.db.ExecContext(ctx, `
        insert into loans (id, user_id, book_id, borrowed_at, due_at, status)
        values ($1, $2, $3, $4, $5, $6)`,
		loan.ID, loan.UserID, loan.BookID, loan.BorrowedAt, loan.DueAt, loan.Status)
	if isUniqueViolation(err) {
		return borrow.ErrDuplicateLoan
	}
	return err
}

func (s *Store) DeleteLoan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from loans where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return borrow.ErrNotFound
	}
	return nil
}

func (s *Store) MarkExpired(ctx context.Context, id string) error {
	return s.setLoanStatus(ctx, id, borrow.StatusExpired, nil)
}

func (s *Store) MarkReturned(ctx context.Context, id string, at time.Time) error {
	return s.setLoanStatus(ctx, id, borrow.StatusReturned, &at)
}

func (s *Store) setLoanStatus(ctx context.Context, id, status string, returnedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
        update loans set status=$2, returned_at=$3 where id=$1 and status='active'`,
		id, status, returnedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return borrow.ErrNotFound
	}
	return nil
}

func (s *Store) FindLoan(ctx context.Context, id string) (*borrow.Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx, `
        select`+loanColumns+`
        from loans l
        left join books b on b.id = l.book_id
        where l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, borrow.ErrNotFound
	}
	return loan, err
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]borrow.Loan, error) {
	return s.listLoans(ctx, `
        select`+loanColumns+`
        from loans l
        left join books b on b.id = l.book_id
        where l.user_id = $1
        order by l.borrowed_at desc`, userID)
}

func (s *Store) ListActive(ctx context.Context, limit int) ([]borrow.Loan, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.listLoans(ctx, `
        select`+loanColumns+`
        from loans l
        left join books b on b.id = l.book_id
        where l.status = 'active'
        order by l.due_at asc
        limit $1`, limit)
}

// ExpireOverdue transitions every past-due active loan to expired and returns
// how many rows changed. The sweep worker calls this on a schedule; borrow
// requests handle the same transition lazily when they hit a stale loan.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        update loans set status='expired' where status='active' and due_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReconcileOrphans deletes active loans whose compensating delete failed
// during the borrow workflow. The failures are read back from the durable
// activity log, so a loan granted normally is never touched.
func (s *Store) ReconcileOrphans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        delete from loans l
        using activity_logs a
        where a.entity_id = l.id
          and a.action = 'borrow.compensation_failed'
          and l.status = 'active'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) listLoans(ctx context.Context, query string, args ...any) ([]borrow.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []borrow.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loan)
	}
	return out, rows.Err()
}
