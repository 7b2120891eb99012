package catalog

import (
	"context"
	"strings"
)

// Service defines catalog operations. The durable implementation lives in
// internal/store/pg.
type Service interface {
	ListBooks(ctx context.Context, filter Filter) ([]Book, int, error)
	GetBook(ctx context.Context, id string) (BookDetail, error)
	RelatedBooks(ctx context.Context, categoryID, excludeID string, limit int) ([]Book, error)
	CreateBook(ctx context.Context, book *Book) error
	UpdateBook(ctx context.Context, book *Book) error
	DeleteBook(ctx context.Context, id string) error
	IncrementBorrows(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]Category, error)
	Stats(ctx context.Context) (Stats, error)
}

// ValidateBook checks the fields an administrator controls on upload/update.
func ValidateBook(b *Book) error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	if b.Title == "" || b.Author == "" {
		return ErrInvalidInput
	}
	if b.BorrowDurationDays < 0 {
		return ErrInvalidInput
	}
	if b.BorrowDurationDays == 0 {
		b.BorrowDurationDays = DefaultBorrowDays
	}
	if b.PublishYear < 0 || b.PublishYear > 3000 {
		return ErrInvalidInput
	}
	if b.TotalCopies < 0 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return ErrInvalidInput
	}
	return nil
}
