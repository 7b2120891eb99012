// Package review holds reader reviews and their moderation state. Only
// approved reviews are served to the public listing.
package review

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("review: not found")
	ErrInvalidRating = errors.New("review: rating must be between 1 and 5")
)

// Review is a reader's rating of a book, pending moderation until approved.
type Review struct {
	ID           string    `json:"id"`
	BookID       string    `json:"book_id"`
	UserID       string    `json:"user_id"`
	ReviewerName string    `json:"reviewer_name,omitempty"`
	BookTitle    string    `json:"book_title,omitempty"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment,omitempty"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate trims the comment and enforces the rating bounds.
func (r *Review) Validate() error {
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	r.Comment = strings.TrimSpace(r.Comment)
	return nil
}

// Service defines review operations. The durable implementation lives in
// internal/store/pg.
type Service interface {
	// ListForBook returns approved reviews newest-first.
	ListForBook(ctx context.Context, bookID string, limit, offset int) ([]Review, error)
	// Submit upserts the caller's review for a book; a resubmission resets
	// the approval flag so the edit goes back through moderation.
	Submit(ctx context.Context, rev *Review) error
	// ListPending returns reviews awaiting moderation, oldest-first.
	ListPending(ctx context.Context) ([]Review, error)
	// SetApproved flips the moderation flag.
	SetApproved(ctx context.Context, id string, approved bool) error
}
