package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"openshelf.org/internal/catalog"
)

type bookListResponse struct {
	Items []catalog.Book `json:"items"`
	Total int            `json:"total"`
	AsOf  time.Time      `json:"as_of"`
}

func (a *API) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	q := r.URL.Query()
	limit, err := parseBoundedInt(q.Get("limit"), 24, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	offset, err := parseBoundedInt(q.Get("offset"), 0, 0, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	filter := catalog.Filter{
		Query:         q.Get("q"),
		CategoryID:    q.Get("category"),
		GradeLevel:    q.Get("grade"),
		AvailableOnly: q.Get("available") == "true",
		Sort:          q.Get("sort"),
		Limit:         limit,
		Offset:        offset,
	}
	books, total, err := a.catalog.ListBooks(r.Context(), filter)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if books == nil {
		books = []catalog.Book{}
	}
	writeJSON(w, http.StatusOK, bookListResponse{Items: books, Total: total, AsOf: time.Now().UTC()})
}

// handleBookResource routes /v1/books/{id} and its sub-resources.
func (a *API) handleBookResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/books/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getBook(w, r, id)
	case len(parts) == 2 && parts[1] == "related":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getRelatedBooks(w, r, id)
	case len(parts) == 2 && parts[1] == "reviews":
		a.handleBookReviews(w, r, id)
	case len(parts) == 2 && parts[1] == "borrow":
		a.handleBorrow(w, r, id)
	case len(parts) == 2 && parts[1] == "wishlist":
		a.handleBookWishlist(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getBook(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := a.catalog.GetBook(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) getRelatedBooks(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := a.catalog.GetBook(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 4, 1, 12)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 12")
		return
	}
	books, err := a.catalog.RelatedBooks(r.Context(), detail.CategoryID, id, limit)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if books == nil {
		books = []catalog.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	cats, err := a.catalog.ListCategories(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cats})
}

func handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "book not found")
	case errors.Is(err, catalog.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
