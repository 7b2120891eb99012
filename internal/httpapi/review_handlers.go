package httpapi

import (
	"errors"
	"net/http"

	"openshelf.org/internal/review"
	"openshelf.org/internal/stream"
)

type submitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (a *API) handleBookReviews(w http.ResponseWriter, r *http.Request, bookID string) {
	switch r.Method {
	case http.MethodGet:
		a.listBookReviews(w, r, bookID)
	case http.MethodPost:
		a.submitReview(w, r, bookID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listBookReviews(w http.ResponseWriter, r *http.Request, bookID string) {
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	offset, err := parseBoundedInt(r.URL.Query().Get("offset"), 0, 0, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	reviews, err := a.reviews.ListForBook(r.Context(), bookID, limit, offset)
	if err != nil {
		handleReviewError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []review.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reviews})
}

func (a *API) submitReview(w http.ResponseWriter, r *http.Request, bookID string) {
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req submitReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// The book must exist before a review is attached to it.
	if _, err := a.catalog.GetBook(r.Context(), bookID); err != nil {
		handleCatalogError(w, r, err)
		return
	}

	rev := &review.Review{
		BookID:  bookID,
		UserID:  principal.Account.ID,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	if err := a.reviews.Submit(r.Context(), rev); err != nil {
		handleReviewError(w, r, err)
		return
	}

	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Action: stream.ActionReviewed,
			UserID: principal.Account.ID,
			BookID: bookID,
		})
	}
	a.audit(r.Context(), "review.submitted", "review", rev.ID, map[string]any{
		"book_id": bookID,
		"rating":  req.Rating,
	})
	writeJSON(w, http.StatusAccepted, rev)
}

func handleReviewError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, review.ErrInvalidRating):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, review.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "review not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
