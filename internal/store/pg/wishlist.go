package pg

import (
	"context"

	"openshelf.org/internal/ids"
	"openshelf.org/internal/wishlist"
)

// Add is idempotent; re-saving a book returns the existing item.
func (s *Store) Add(ctx context.Context, userID, bookID string) (wishlist.Item, error) {
	item := wishlist.Item{
		ID:        ids.New(),
		UserID:    userID,
		BookID:    bookID,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
        insert into wishlist (id, user_id, book_id, created_at)
        values ($1, $2, $3, $4)
        on conflict (user_id, book_id) do nothing`,
		item.ID, item.UserID, item.BookID, item.CreatedAt)
	if err != nil {
		return wishlist.Item{}, err
	}
	err = s.db.QueryRowContext(ctx, `
        select w.id, w.created_at, coalesce(b.title,''), coalesce(b.cover_url,'')
        from wishlist w
        left join books b on b.id = w.book_id
        where w.user_id = $1 and w.book_id = $2`,
		userID, bookID).Scan(&item.ID, &item.CreatedAt, &item.BookTitle, &item.CoverURL)
	if err != nil {
		return wishlist.Item{}, err
	}
	return item, nil
}

func (s *Store) Remove(ctx context.Context, userID, bookID string) error {
	res, err := s.db.ExecContext(ctx, `
        delete from wishlist where user_id=$1 and book_id=$2`, userID, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wishlist.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]wishlist.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
        select w.id, w.user_id, w.book_id, coalesce(b.title,''), coalesce(b.cover_url,''), w.created_at
        from wishlist w
        left join books b on b.id = w.book_id
        where w.user_id = $1
        order by w.created_at desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wishlist.Item
	for rows.Next() {
		var it wishlist.Item
		if err := rows.Scan(&it.ID, &it.UserID, &it.BookID, &it.BookTitle, &it.CoverURL, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
