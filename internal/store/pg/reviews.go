package pg

import (
	"context"

	"openshelf.org/internal/ids"
	"openshelf.org/internal/review"
)

func (s *Store) ListForBook(ctx context.Context, bookID string, limit, offset int) ([]review.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.listReviews(ctx, `
        select r.id, r.book_id, r.user_id,
               trim(concat(p.first_name, ' ', p.last_name)) as reviewer_name,
               coalesce(b.title, '') as book_title,
               r.rating, r.comment, r.approved, r.created_at
        from reviews r
        left join profiles p on p.user_id = r.user_id
        left join books b on b.id = r.book_id
        where r.book_id = $1 and r.approved
        order by r.created_at desc
        limit $2 offset $3`, bookID, limit, offset)
}

// Submit upserts the caller's review; an edit resets the approval flag so the
// new text goes back through moderation.
func (s *Store) Submit(ctx context.Context, rev *review.Review) error {
	if err := rev.Validate(); err != nil {
		return err
	}
	if rev.ID == "" {
		rev.ID = ids.New()
	}
	now := s.now().UTC()
	rev.Approved = false
	rev.CreatedAt = now
	// On a resubmission the original row survives; returning id keeps the
	// caller's view (and the audit trail) pointed at the real row.
	return s.db.QueryRowContext(ctx, `
        insert into reviews (id, book_id, user_id, rating, comment, approved, created_at)
        values ($1, $2, $3, $4, $5, false, $6)
        on conflict (book_id, user_id) do update
        set rating = excluded.rating,
            comment = excluded.comment,
            approved = false,
            created_at = excluded.created_at
        returning id`,
		rev.ID, rev.BookID, rev.UserID, rev.Rating, rev.Comment, now).Scan(&rev.ID)
}

func (s *Store) ListPending(ctx context.Context) ([]review.Review, error) {
	return s.listReviews(ctx, `
        select r.id, r.book_id, r.user_id,
               trim(concat(p.first_name, ' ', p.last_name)) as reviewer_name,
               coalesce(b.title, '') as book_title,
               r.rating, r.comment, r.approved, r.created_at
        from reviews r
        left join profiles p on p.user_id = r.user_id
        left join books b on b.id = r.book_id
        where not r.approved
        order by r.created_at asc`)
}

func (s *Store) SetApproved(ctx context.Context, id string, approved bool) error {
	res, err := s.db.ExecContext(ctx, `update reviews set approved=$2 where id=$1`, id, approved)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (s *Store) listReviews(ctx context.Context, query string, args ...any) ([]review.Review, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.Review
	for rows.Next() {
		var r review.Review
		if err := rows.Scan(&r.ID, &r.BookID, &r.UserID, &r.ReviewerName,
			&r.BookTitle, &r.Rating, &r.Comment, &r.Approved, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
