package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"openshelf.org/internal/borrow"
	"openshelf.org/internal/stream"
)

func (a *API) handleBorrow(w http.ResponseWriter, r *http.Request, bookID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}

	grant, err := a.borrows.Borrow(r.Context(), principal.Account.ID, bookID)
	if err != nil {
		handleBorrowError(w, r, err)
		return
	}

	event := "loan.granted"
	if grant.Reused {
		event = "loan.link_reissued"
	} else if a.stream != nil {
		a.stream.Publish(stream.Event{
			Action: stream.ActionBorrowed,
			UserID: principal.Account.ID,
			BookID: bookID,
		})
	}
	a.audit(r.Context(), event, "loan", grant.LoanID, map[string]any{
		"book_id": bookID,
		"due_at":  grant.DueAt.Format(time.RFC3339),
	})

	code := http.StatusCreated
	if grant.Reused {
		code = http.StatusOK
	}
	writeJSON(w, code, grant)
}

func (a *API) handleLoans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	loans, err := a.borrows.History(r.Context(), principal.Account.ID)
	if err != nil {
		handleBorrowError(w, r, err)
		return
	}
	if loans == nil {
		loans = []borrow.Loan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": loans})
}

// handleLoanResource routes /v1/loans/{id}/return.
func (a *API) handleLoanResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/loans/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "return" || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}

	loan, err := a.borrows.Return(r.Context(), principal.Account.ID, parts[0])
	if err != nil {
		handleBorrowError(w, r, err)
		return
	}

	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Action:    stream.ActionReturned,
			UserID:    principal.Account.ID,
			BookID:    loan.BookID,
			BookTitle: loan.BookTitle,
		})
	}
	a.audit(r.Context(), "loan.returned", "loan", loan.ID, map[string]any{
		"book_id": loan.BookID,
	})
	writeJSON(w, http.StatusOK, loan)
}

func handleBorrowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, borrow.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, borrow.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, borrow.ErrNotBorrowable):
		writeError(w, r, http.StatusUnprocessableEntity, "this book has no readable content")
	case errors.Is(err, borrow.ErrBorrowExpired):
		writeError(w, r, http.StatusGone, "your borrowing period for this book has expired")
	case errors.Is(err, borrow.ErrInvalidContentReference):
		writeError(w, r, http.StatusUnprocessableEntity, "the book's content reference is invalid")
	case errors.Is(err, borrow.ErrCredentialIssuance):
		writeError(w, r, http.StatusBadGateway, "could not issue an access link, please try again")
	case errors.Is(err, borrow.ErrLoanCreation):
		writeError(w, r, http.StatusInternalServerError, "could not create the loan, please try again")
	case errors.Is(err, borrow.ErrNotActive):
		writeError(w, r, http.StatusConflict, "loan is not active")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
