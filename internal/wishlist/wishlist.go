// Package wishlist tracks the books a reader has saved for later.
package wishlist

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("wishlist: not found")

// Item is a saved book on a reader's list.
type Item struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	BookTitle string    `json:"book_title,omitempty"`
	CoverURL  string    `json:"cover_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service defines wishlist operations. Add is idempotent: saving a book that
// is already on the list is not an error.
type Service interface {
	Add(ctx context.Context, userID, bookID string) (Item, error)
	Remove(ctx context.Context, userID, bookID string) error
	List(ctx context.Context, userID string) ([]Item, error)
}
