package httpapi

import (
	"errors"
	"net/http"

	"openshelf.org/internal/wishlist"
)

func (a *API) handleWishlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	items, err := a.wishlist.List(r.Context(), principal.Account.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []wishlist.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleBookWishlist adds or removes a book on the caller's wishlist.
func (a *API) handleBookWishlist(w http.ResponseWriter, r *http.Request, bookID string) {
	principal, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		if _, err := a.catalog.GetBook(r.Context(), bookID); err != nil {
			handleCatalogError(w, r, err)
			return
		}
		item, err := a.wishlist.Add(r.Context(), principal.Account.ID, bookID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, item)
	case http.MethodDelete:
		err := a.wishlist.Remove(r.Context(), principal.Account.ID, bookID)
		if errors.Is(err, wishlist.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "book is not on your wishlist")
			return
		}
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}
