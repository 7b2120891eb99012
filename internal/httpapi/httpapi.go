// Package httpapi is the HTTP surface of the library service.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"openshelf.org/api/spec"
	"openshelf.org/internal/audit"
	"openshelf.org/internal/auth"
	"openshelf.org/internal/borrow"
	"openshelf.org/internal/catalog"
	"openshelf.org/internal/obs"
	"openshelf.org/internal/review"
	"openshelf.org/internal/stream"
	"openshelf.org/internal/wishlist"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReadyProbe pings the database so /readyz reflects storage health.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Borrower runs the borrow workflow.
type Borrower interface {
	Borrow(ctx context.Context, readerID, bookID string) (borrow.Grant, error)
	Return(ctx context.Context, readerID, loanID string) (*borrow.Loan, error)
	History(ctx context.Context, readerID string) ([]borrow.Loan, error)
}

// Uploads is the slice of the vault the admin upload endpoints need.
type Uploads interface {
	UploadFile(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	UploadCover(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error)
	RemoveFile(ctx context.Context, path string) error
	FileReference(path string) string
}

// ActivityFeed serves the admin activity listing.
type ActivityFeed interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Activity, error)
	Record(ctx context.Context, act audit.Activity) error
}

// Enqueuer schedules background jobs; nil disables them.
type Enqueuer interface {
	EnqueuePageCount(ctx context.Context, bookID, storagePath string) error
}

// Limits tunes the outer middleware; zero values fall back to defaults.
type Limits struct {
	MaxUploadBytes int64
	RateBurst      int
	RatePerSecond  int
}

// Deps collects the collaborators the API serves.
type Deps struct {
	Auth     *auth.Service
	Users    auth.Store
	Catalog  catalog.Service
	Reviews  review.Service
	Wishlist wishlist.Service
	Borrows  Borrower
	Loans    borrow.Store
	Vault    Uploads
	Activity ActivityFeed
	Jobs     Enqueuer
	Stream   *stream.Stream
	Limits   Limits
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	users    auth.Store
	catalog  catalog.Service
	reviews  review.Service
	wishlist wishlist.Service
	borrows  Borrower
	loans    borrow.Store
	vault    Uploads
	activity ActivityFeed
	jobs     Enqueuer
	stream   *stream.Stream

	maxUploadBytes int64
	rateBurst      int
	ratePerSec     int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,

		auth:     deps.Auth,
		users:    deps.Users,
		catalog:  deps.Catalog,
		reviews:  deps.Reviews,
		wishlist: deps.Wishlist,
		borrows:  deps.Borrows,
		loans:    deps.Loans,
		vault:    deps.Vault,
		activity: deps.Activity,
		jobs:     deps.Jobs,
		stream:   deps.Stream,

		maxUploadBytes: deps.Limits.MaxUploadBytes,
		rateBurst:      deps.Limits.RateBurst,
		ratePerSec:     deps.Limits.RatePerSecond,
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = 64 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// catalog
	a.mux.HandleFunc("/v1/books", a.handleBooks)
	a.mux.HandleFunc("/v1/books/", a.handleBookResource)
	a.mux.HandleFunc("/v1/categories", a.handleCategories)

	// loans and wishlist
	a.mux.HandleFunc("/v1/loans", a.handleLoans)
	a.mux.HandleFunc("/v1/loans/", a.handleLoanResource)
	a.mux.HandleFunc("/v1/wishlist", a.handleWishlist)

	// admin
	a.mux.HandleFunc("/v1/admin/books", a.handleAdminBooks)
	a.mux.HandleFunc("/v1/admin/books/", a.handleAdminBookResource)
	a.mux.HandleFunc("/v1/admin/stats", a.handleAdminStats)
	a.mux.HandleFunc("/v1/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUserResource)
	a.mux.HandleFunc("/v1/admin/reviews", a.handleAdminReviews)
	a.mux.HandleFunc("/v1/admin/reviews/", a.handleAdminReviewResource)
	a.mux.HandleFunc("/v1/admin/loans", a.handleAdminLoans)
	a.mux.HandleFunc("/v1/admin/activity", a.handleAdminActivity)
	a.mux.HandleFunc("/v1/admin/activity/stream", a.StreamActivity)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxUploadBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "openshelf-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "openshelf-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// audit writes the durable activity row and the structured audit log line.
func (a *API) audit(ctx context.Context, event, entityType, entityID string, details map[string]any) {
	fields := make(map[string]any, len(details)+2)
	for k, v := range details {
		fields[k] = v
	}
	fields["entity_type"] = entityType
	fields["entity_id"] = entityID
	_ = audit.LogEvent(ctx, event, fields)

	if a.activity == nil {
		return
	}
	userID, _ := auth.UserIDFromContext(ctx)
	_ = a.activity.Record(ctx, audit.Activity{
		UserID:     userID,
		Action:     event,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseBoundedInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}
