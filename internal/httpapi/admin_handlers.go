package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"openshelf.org/internal/auth"
	"openshelf.org/internal/borrow"
	"openshelf.org/internal/catalog"
	"openshelf.org/internal/ids"
	"openshelf.org/internal/review"
	"openshelf.org/internal/stream"
	"openshelf.org/internal/vault"
)

// handleAdminBooks creates a catalog entry from a multipart upload: metadata
// fields plus an optional book file and cover image.
func (a *API) handleAdminBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}

	book, err := bookFromForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := catalog.ValidateBook(book); err != nil {
		writeError(w, r, http.StatusBadRequest, "title and author are required")
		return
	}
	if book.ID == "" {
		// The id keys the vault paths, so it is fixed before any upload.
		book.ID = ids.New()
	}

	storagePath, err := a.storeUploads(w, r, book)
	if err != nil {
		return // storeUploads already wrote the response
	}

	if err := a.catalog.CreateBook(r.Context(), book); err != nil {
		if storagePath != "" {
			_ = a.vault.RemoveFile(r.Context(), storagePath)
		}
		handleCatalogError(w, r, err)
		return
	}

	if storagePath != "" && a.jobs != nil && book.FileType == "pdf" {
		if err := a.jobs.EnqueuePageCount(r.Context(), book.ID, storagePath); err != nil {
			// The catalog entry is fine without a page count.
			a.audit(r.Context(), "book.pagecount_enqueue_failed", "book", book.ID, map[string]any{
				"error": err.Error(),
			})
		}
	}
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Action:    stream.ActionUploaded,
			UserID:    principal.Account.ID,
			BookID:    book.ID,
			BookTitle: book.Title,
		})
	}
	a.audit(r.Context(), "book.created", "book", book.ID, map[string]any{
		"title": book.Title,
	})

	w.Header().Set("Location", "/v1/books/"+book.ID)
	writeJSON(w, http.StatusCreated, book)
}

// storeUploads pushes the optional file and cover into the vault, filling in
// FileURL/FileType/CoverURL. It returns the storage path of the book file so
// the caller can clean up if the catalog insert fails.
func (a *API) storeUploads(w http.ResponseWriter, r *http.Request, book *catalog.Book) (string, error) {
	file, header, err := r.FormFile("file")
	var storagePath string
	switch {
	case err == nil:
		defer file.Close()
		ext := normalizedExt(header)
		if ext != "pdf" && ext != "epub" {
			writeError(w, r, http.StatusBadRequest, "book file must be a PDF or EPUB")
			return "", errBadUpload
		}
		storagePath = book.ID + "/book." + ext
		if err := a.vault.UploadFile(r.Context(), storagePath, file, header.Size, contentTypeFor(ext)); err != nil {
			writeError(w, r, http.StatusBadGateway, "storing the book file failed")
			return "", errBadUpload
		}
		book.FileURL = a.vault.FileReference(storagePath)
		book.FileType = ext
	case errors.Is(err, http.ErrMissingFile):
		// metadata-only entry; the book stays non-borrowable
	default:
		writeError(w, r, http.StatusBadRequest, "invalid book file")
		return "", errBadUpload
	}

	cover, coverHeader, err := r.FormFile("cover")
	switch {
	case err == nil:
		defer cover.Close()
		ext := normalizedExt(coverHeader)
		coverPath := book.ID + "/cover." + ext
		url, err := a.vault.UploadCover(r.Context(), coverPath, cover, coverHeader.Size, coverHeader.Header.Get("Content-Type"))
		if err != nil {
			if storagePath != "" {
				_ = a.vault.RemoveFile(r.Context(), storagePath)
			}
			writeError(w, r, http.StatusBadGateway, "storing the cover image failed")
			return "", errBadUpload
		}
		book.CoverURL = url
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, r, http.StatusBadRequest, "invalid cover image")
		return "", errBadUpload
	}

	return storagePath, nil
}

var errBadUpload = errors.New("upload rejected")

func bookFromForm(r *http.Request) (*catalog.Book, error) {
	book := &catalog.Book{
		ID:          strings.TrimSpace(r.FormValue("id")),
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		ISBN:        strings.TrimSpace(r.FormValue("isbn")),
		Publisher:   strings.TrimSpace(r.FormValue("publisher")),
		Language:    strings.TrimSpace(r.FormValue("language")),
		GradeLevel:  strings.TrimSpace(r.FormValue("grade_level")),
		Description: strings.TrimSpace(r.FormValue("description")),
		CategoryID:  strings.TrimSpace(r.FormValue("category_id")),
		Available:   true,
	}
	if subjects := strings.TrimSpace(r.FormValue("subjects")); subjects != "" {
		for _, s := range strings.Split(subjects, ",") {
			if s = strings.TrimSpace(s); s != "" {
				book.Subjects = append(book.Subjects, s)
			}
		}
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"publish_year", &book.PublishYear},
		{"borrow_duration_days", &book.BorrowDurationDays},
		{"total_copies", &book.TotalCopies},
	} {
		raw := strings.TrimSpace(r.FormValue(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, errors.New(f.name + " must be a non-negative integer")
		}
		*f.dst = v
	}
	if book.TotalCopies == 0 {
		book.TotalCopies = 1
	}
	book.AvailableCopies = book.TotalCopies
	return book, nil
}

func normalizedExt(header *multipart.FileHeader) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
}

func contentTypeFor(ext string) string {
	switch ext {
	case "pdf":
		return "application/pdf"
	case "epub":
		return "application/epub+zip"
	default:
		return "application/octet-stream"
	}
}

// handleAdminBookResource routes PUT/DELETE /v1/admin/books/{id}.
func (a *API) handleAdminBookResource(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/books/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		a.updateBook(w, r, id)
	case http.MethodDelete:
		a.deleteBook(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

type updateBookRequest struct {
	Title              *string  `json:"title"`
	Author             *string  `json:"author"`
	ISBN               *string  `json:"isbn"`
	Publisher          *string  `json:"publisher"`
	PublishYear        *int     `json:"publish_year"`
	Language           *string  `json:"language"`
	GradeLevel         *string  `json:"grade_level"`
	Subjects           []string `json:"subjects"`
	Description        *string  `json:"description"`
	CategoryID         *string  `json:"category_id"`
	BorrowDurationDays *int     `json:"borrow_duration_days"`
	TotalCopies        *int     `json:"total_copies"`
	AvailableCopies    *int     `json:"available_copies"`
	Available          *bool    `json:"available"`
}

func (a *API) updateBook(w http.ResponseWriter, r *http.Request, id string) {
	var req updateBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	detail, err := a.catalog.GetBook(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	book := detail.Book

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&book.Title, req.Title)
	setString(&book.Author, req.Author)
	setString(&book.ISBN, req.ISBN)
	setString(&book.Publisher, req.Publisher)
	setString(&book.Language, req.Language)
	setString(&book.GradeLevel, req.GradeLevel)
	setString(&book.Description, req.Description)
	setString(&book.CategoryID, req.CategoryID)
	if req.PublishYear != nil {
		book.PublishYear = *req.PublishYear
	}
	if req.Subjects != nil {
		book.Subjects = req.Subjects
	}
	if req.BorrowDurationDays != nil {
		book.BorrowDurationDays = *req.BorrowDurationDays
	}
	if req.TotalCopies != nil {
		book.TotalCopies = *req.TotalCopies
	}
	if req.AvailableCopies != nil {
		book.AvailableCopies = *req.AvailableCopies
	}
	if req.Available != nil {
		book.Available = *req.Available
	}

	if err := a.catalog.UpdateBook(r.Context(), &book); err != nil {
		handleCatalogError(w, r, err)
		return
	}
	a.audit(r.Context(), "book.updated", "book", book.ID, nil)
	writeJSON(w, http.StatusOK, book)
}

func (a *API) deleteBook(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := a.catalog.GetBook(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if err := a.catalog.DeleteBook(r.Context(), id); err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if detail.FileURL != "" {
		if path, err := vault.StoragePath(detail.FileURL); err == nil {
			// best effort; an orphaned object is cheaper than a failed delete
			_ = a.vault.RemoveFile(r.Context(), path)
		}
	}
	a.audit(r.Context(), "book.deleted", "book", id, map[string]any{
		"title": detail.Title,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	stats, err := a.catalog.Stats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type adminUserResponse struct {
	UserID    string   `json:"user_id"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Grade     string   `json:"grade,omitempty"`
	Roles     []string `json:"roles"`
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	profiles, err := a.users.ListProfiles(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]adminUserResponse, 0, len(profiles))
	for _, p := range profiles {
		roles, err := a.users.RolesForUser(r.Context(), p.UserID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if roles == nil {
			roles = []string{}
		}
		out = append(out, adminUserResponse{
			UserID:    p.UserID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Grade:     p.Grade,
			Roles:     roles,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// handleAdminUserResource routes PUT /v1/admin/users/{id}/role.
func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "role" || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if parts[0] == principal.Account.ID {
		writeError(w, r, http.StatusConflict, "you cannot change your own role")
		return
	}
	if err := a.auth.SetRole(r.Context(), parts[0], req.Role); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "role must be student or admin")
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "user not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	a.audit(r.Context(), "user.role_changed", "user", parts[0], map[string]any{
		"role": strings.ToLower(strings.TrimSpace(req.Role)),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	pending, err := a.reviews.ListPending(r.Context())
	if err != nil {
		handleReviewError(w, r, err)
		return
	}
	if pending == nil {
		pending = []review.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": pending})
}

type moderateReviewRequest struct {
	Approved bool `json:"approved"`
}

// handleAdminReviewResource routes PUT /v1/admin/reviews/{id}.
func (a *API) handleAdminReviewResource(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/reviews/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req moderateReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.reviews.SetApproved(r.Context(), id, req.Approved); err != nil {
		handleReviewError(w, r, err)
		return
	}
	a.audit(r.Context(), "review.moderated", "review", id, map[string]any{
		"approved": req.Approved,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminLoans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	loans, err := a.loans.ListActive(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if loans == nil {
		loans = []borrow.Loan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": loans})
}

func (a *API) handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	if a.activity == nil {
		writeError(w, r, http.StatusServiceUnavailable, "activity feed unavailable")
		return
	}
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 200")
		return
	}
	items, err := a.activity.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
