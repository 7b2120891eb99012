package borrow

import "errors"

// Every error is terminal for the invocation; nothing is retried.
var (
	ErrUnauthenticated         = errors.New("borrow: caller is not authenticated")
	ErrNotFound                = errors.New("borrow: not found")
	ErrNotBorrowable           = errors.New("borrow: book has no readable content")
	ErrBorrowExpired           = errors.New("borrow: loan period has expired")
	ErrCredentialIssuance      = errors.New("borrow: failed to issue access link")
	ErrLoanCreation            = errors.New("borrow: failed to create loan")
	ErrInvalidContentReference = errors.New("borrow: content reference has no storage path")
	ErrNotActive               = errors.New("borrow: loan is not active")

	// ErrDuplicateLoan is the store's signal that an active loan already
	// exists for the (reader, book) pair; the workflow resolves it by
	// re-reading the winner, so it never reaches callers.
	ErrDuplicateLoan = errors.New("borrow: active loan already exists")
)
