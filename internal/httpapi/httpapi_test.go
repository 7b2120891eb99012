package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"openshelf.org/internal/audit"
	"openshelf.org/internal/auth"
	"openshelf.org/internal/borrow"
	"openshelf.org/internal/catalog"
	"openshelf.org/internal/review"
	"openshelf.org/internal/stream"
	"openshelf.org/internal/vault"
	"openshelf.org/internal/wishlist"
)

// --- in-memory collaborators ---

type memAuthStore struct {
	accounts map[string]*auth.Account
	profiles map[string]*auth.Profile
	roles    map[string][]string
	nextID   int
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{
		accounts: map[string]*auth.Account{},
		profiles: map[string]*auth.Profile{},
		roles:    map[string][]string{},
	}
}

func (m *memAuthStore) CreateAccount(_ context.Context, acc *auth.Account, profile *auth.Profile) error {
	for _, existing := range m.accounts {
		if existing.Email == acc.Email {
			return auth.ErrAlreadyExists
		}
	}
	m.nextID++
	acc.ID = "user" + strconv.Itoa(m.nextID)
	cp := *acc
	m.accounts[acc.ID] = &cp
	profile.UserID = acc.ID
	pc := *profile
	m.profiles[acc.ID] = &pc
	return nil
}

func (m *memAuthStore) FindAccount(_ context.Context, id string) (*auth.Account, error) {
	if acc, ok := m.accounts[id]; ok {
		cp := *acc
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (m *memAuthStore) FindAccountByEmail(_ context.Context, email string) (*auth.Account, error) {
	for _, acc := range m.accounts {
		if acc.Email == email {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAuthStore) Profile(_ context.Context, userID string) (*auth.Profile, error) {
	if p, ok := m.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (m *memAuthStore) UpdateProfile(_ context.Context, profile *auth.Profile) error {
	if _, ok := m.profiles[profile.UserID]; !ok {
		return auth.ErrNotFound
	}
	cp := *profile
	m.profiles[profile.UserID] = &cp
	return nil
}

func (m *memAuthStore) ListProfiles(_ context.Context) ([]*auth.Profile, error) {
	out := make([]*auth.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memAuthStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	return m.roles[userID], nil
}

func (m *memAuthStore) SetRole(_ context.Context, userID, role string) error {
	if _, ok := m.accounts[userID]; !ok {
		return auth.ErrNotFound
	}
	m.roles[userID] = []string{role}
	return nil
}

type memCatalog struct {
	books map[string]catalog.BookDetail
}

func (m *memCatalog) ListBooks(_ context.Context, filter catalog.Filter) ([]catalog.Book, int, error) {
	var out []catalog.Book
	for _, b := range m.books {
		out = append(out, b.Book)
	}
	return out, len(out), nil
}

func (m *memCatalog) GetBook(_ context.Context, id string) (catalog.BookDetail, error) {
	if b, ok := m.books[id]; ok {
		return b, nil
	}
	return catalog.BookDetail{}, catalog.ErrNotFound
}

func (m *memCatalog) RelatedBooks(_ context.Context, categoryID, excludeID string, limit int) ([]catalog.Book, error) {
	var out []catalog.Book
	for _, b := range m.books {
		if b.CategoryID == categoryID && b.ID != excludeID {
			out = append(out, b.Book)
		}
	}
	return out, nil
}

func (m *memCatalog) CreateBook(_ context.Context, book *catalog.Book) error {
	if book.ID == "" {
		book.ID = "generated"
	}
	m.books[book.ID] = catalog.BookDetail{Book: *book}
	return nil
}

func (m *memCatalog) UpdateBook(_ context.Context, book *catalog.Book) error {
	if _, ok := m.books[book.ID]; !ok {
		return catalog.ErrNotFound
	}
	m.books[book.ID] = catalog.BookDetail{Book: *book}
	return nil
}

func (m *memCatalog) DeleteBook(_ context.Context, id string) error {
	if _, ok := m.books[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.books, id)
	return nil
}

func (m *memCatalog) IncrementBorrows(_ context.Context, id string) error { return nil }

func (m *memCatalog) ListCategories(_ context.Context) ([]catalog.Category, error) {
	return []catalog.Category{{ID: "cat1", Name: "History"}}, nil
}

func (m *memCatalog) Stats(_ context.Context) (catalog.Stats, error) {
	return catalog.Stats{Books: len(m.books), Readers: 2, ActiveLoans: 1, Reviews: 3}, nil
}

type memLoans struct {
	active map[string]*borrow.Loan
	byID   map[string]*borrow.Loan
}

func newMemLoans() *memLoans {
	return &memLoans{active: map[string]*borrow.Loan{}, byID: map[string]*borrow.Loan{}}
}

func (m *memLoans) FindActiveLoan(_ context.Context, userID, bookID string) (*borrow.Loan, error) {
	if l, ok := m.active[userID+"/"+bookID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, borrow.ErrNotFound
}

func (m *memLoans) InsertLoan(_ context.Context, loan *borrow.Loan) error {
	if _, ok := m.active[loan.UserID+"/"+loan.BookID]; ok {
		return borrow.ErrDuplicateLoan
	}
	cp := *loan
	m.active[loan.UserID+"/"+loan.BookID] = &cp
	m.byID[loan.ID] = &cp
	return nil
}

func (m *memLoans) DeleteLoan(_ context.Context, id string) error {
	l, ok := m.byID[id]
	if !ok {
		return borrow.ErrNotFound
	}
	delete(m.active, l.UserID+"/"+l.BookID)
	delete(m.byID, id)
	return nil
}

func (m *memLoans) MarkExpired(_ context.Context, id string) error {
	if l, ok := m.byID[id]; ok {
		l.Status = borrow.StatusExpired
		delete(m.active, l.UserID+"/"+l.BookID)
	}
	return nil
}

func (m *memLoans) MarkReturned(_ context.Context, id string, at time.Time) error {
	l, ok := m.byID[id]
	if !ok {
		return borrow.ErrNotFound
	}
	l.Status = borrow.StatusReturned
	l.ReturnedAt = &at
	delete(m.active, l.UserID+"/"+l.BookID)
	return nil
}

func (m *memLoans) FindLoan(_ context.Context, id string) (*borrow.Loan, error) {
	if l, ok := m.byID[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, borrow.ErrNotFound
}

func (m *memLoans) ListByUser(_ context.Context, userID string) ([]borrow.Loan, error) {
	var out []borrow.Loan
	for _, l := range m.byID {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memLoans) ListActive(_ context.Context, _ int) ([]borrow.Loan, error) {
	var out []borrow.Loan
	for _, l := range m.active {
		out = append(out, *l)
	}
	return out, nil
}

type memVault struct {
	objects map[string][]byte
	fail    bool
}

func (m *memVault) IssueSignedLink(_ context.Context, path string, ttl time.Duration) (vault.SignedLink, error) {
	if m.fail {
		return vault.SignedLink{}, context.DeadlineExceeded
	}
	return vault.SignedLink{
		URL:       "https://vault.test/book-files/" + path + "?sig=x",
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (m *memVault) UploadFile(_ context.Context, path string, r io.Reader, size int64, _ string) error {
	data, _ := io.ReadAll(r)
	m.objects[path] = data
	return nil
}

func (m *memVault) UploadCover(_ context.Context, path string, r io.Reader, size int64, _ string) (string, error) {
	data, _ := io.ReadAll(r)
	m.objects[path] = data
	return "https://vault.test/book-covers/" + path, nil
}

func (m *memVault) RemoveFile(_ context.Context, path string) error {
	delete(m.objects, path)
	return nil
}

func (m *memVault) FileReference(path string) string {
	return "https://vault.test/book-files/" + path
}

type memReviews struct {
	reviews map[string]*review.Review
}

func (m *memReviews) ListForBook(_ context.Context, bookID string, _, _ int) ([]review.Review, error) {
	var out []review.Review
	for _, rev := range m.reviews {
		if rev.BookID == bookID && rev.Approved {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (m *memReviews) Submit(_ context.Context, rev *review.Review) error {
	if err := rev.Validate(); err != nil {
		return err
	}
	rev.ID = rev.BookID + ":" + rev.UserID
	rev.Approved = false
	cp := *rev
	m.reviews[rev.ID] = &cp
	return nil
}

func (m *memReviews) ListPending(_ context.Context) ([]review.Review, error) {
	var out []review.Review
	for _, rev := range m.reviews {
		if !rev.Approved {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (m *memReviews) SetApproved(_ context.Context, id string, approved bool) error {
	rev, ok := m.reviews[id]
	if !ok {
		return review.ErrNotFound
	}
	rev.Approved = approved
	return nil
}

type memWishlist struct {
	items map[string]wishlist.Item
}

func (m *memWishlist) Add(_ context.Context, userID, bookID string) (wishlist.Item, error) {
	key := userID + "/" + bookID
	if item, ok := m.items[key]; ok {
		return item, nil
	}
	item := wishlist.Item{ID: key, UserID: userID, BookID: bookID, CreatedAt: time.Now()}
	m.items[key] = item
	return item, nil
}

func (m *memWishlist) Remove(_ context.Context, userID, bookID string) error {
	key := userID + "/" + bookID
	if _, ok := m.items[key]; !ok {
		return wishlist.ErrNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *memWishlist) List(_ context.Context, userID string) ([]wishlist.Item, error) {
	var out []wishlist.Item
	for _, item := range m.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

type memActivity struct {
	rows []audit.Activity
}

func (m *memActivity) Record(_ context.Context, act audit.Activity) error {
	m.rows = append(m.rows, act)
	return nil
}

func (m *memActivity) ListRecent(_ context.Context, limit int) ([]audit.Activity, error) {
	if len(m.rows) > limit {
		return m.rows[len(m.rows)-limit:], nil
	}
	return m.rows, nil
}

type memJobs struct {
	enqueued []string
}

func (m *memJobs) EnqueuePageCount(_ context.Context, bookID, storagePath string) error {
	m.enqueued = append(m.enqueued, bookID+"@"+storagePath)
	return nil
}

// --- test harness ---

type testEnv struct {
	api      *API
	store    *memAuthStore
	catalog  *memCatalog
	loans    *memLoans
	vault    *memVault
	activity *memActivity
	jobs     *memJobs
	clock    *time.Time
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func borrowableBook(id, categoryID string) catalog.BookDetail {
	return catalog.BookDetail{Book: catalog.Book{
		ID:                 id,
		Title:              "Book " + id,
		Author:             "Author",
		CategoryID:         categoryID,
		FileURL:            "https://vault.test/book-files/" + id + "/book.pdf",
		FileType:           "pdf",
		BorrowDurationDays: 14,
		Available:          true,
	}}
}

func newTestEnv(t *testing.T) (*testEnv, *apiClient) {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		store: newMemAuthStore(),
		catalog: &memCatalog{books: map[string]catalog.BookDetail{
			"bk1":      borrowableBook("bk1", "cat1"),
			"bk2":      borrowableBook("bk2", "cat1"),
			"bk-empty": {Book: catalog.Book{ID: "bk-empty", Title: "No File", Author: "Author"}},
		}},
		loans:    newMemLoans(),
		vault:    &memVault{objects: map[string][]byte{}},
		activity: &memActivity{},
		jobs:     &memJobs{},
		clock:    &now,
	}

	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	authSvc := auth.NewService(env.store, tokens)
	borrows := borrow.NewService(env.loans, env.catalog, env.vault,
		borrow.WithClock(func() time.Time { return *env.clock }))

	env.api = New(ReadyProbe{}, "test", Deps{
		Auth:     authSvc,
		Users:    env.store,
		Catalog:  env.catalog,
		Reviews:  &memReviews{reviews: map[string]*review.Review{}},
		Wishlist: &memWishlist{items: map[string]wishlist.Item{}},
		Borrows:  borrows,
		Loans:    env.loans,
		Vault:    env.vault,
		Activity: env.activity,
		Jobs:     env.jobs,
		Stream:   stream.New(),
		Limits:   Limits{RateBurst: 1000, RatePerSecond: 1000},
	})

	srv := httptest.NewServer(env.api.Handler())
	t.Cleanup(srv.Close)

	return env, &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func TestConfiguredLimitsReachMiddleware(t *testing.T) {
	tuned := New(ReadyProbe{}, "test", Deps{Limits: Limits{
		MaxUploadBytes: 1 << 20,
		RateBurst:      3,
		RatePerSecond:  2,
	}})
	if tuned.maxUploadBytes != 1<<20 || tuned.rateBurst != 3 || tuned.ratePerSec != 2 {
		t.Fatalf("limits not applied: max=%d burst=%d rate=%d",
			tuned.maxUploadBytes, tuned.rateBurst, tuned.ratePerSec)
	}

	def := New(ReadyProbe{}, "test", Deps{})
	if def.maxUploadBytes != 64<<20 || def.rateBurst != 20 || def.ratePerSec != 10 {
		t.Fatalf("zero limits must fall back to defaults: max=%d burst=%d rate=%d",
			def.maxUploadBytes, def.rateBurst, def.ratePerSec)
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) decode(resp *http.Response, dst any) {
	c.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		c.t.Fatalf("decode response: %v", err)
	}
}

func (c *apiClient) register(email string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email":      email,
		"password":   "correct-horse",
		"first_name": "Test",
		"last_name":  "Reader",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register: status %d", resp.StatusCode)
	}
	var session struct {
		Token string `json:"token"`
	}
	c.decode(resp, &session)
	return session.Token
}

// --- tests ---

func TestRegisterLoginMe(t *testing.T) {
	_, client := newTestEnv(t)

	token := client.register("reader@school.test")
	if token == "" {
		t.Fatal("empty token")
	}

	resp := client.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    "reader@school.test",
		"password": "correct-horse",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var session struct {
		Token string `json:"token"`
		User  struct {
			Email string   `json:"email"`
			Roles []string `json:"roles"`
		} `json:"user"`
	}
	client.decode(resp, &session)
	if session.User.Email != "reader@school.test" {
		t.Fatalf("email = %q", session.User.Email)
	}
	if len(session.User.Roles) != 1 || session.User.Roles[0] != "student" {
		t.Fatalf("roles = %v, want [student]", session.User.Roles)
	}

	resp = client.do(http.MethodGet, "/v1/auth/me", nil, session.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginWrongPassword(t *testing.T) {
	_, client := newTestEnv(t)
	client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    "reader@school.test",
		"password": "wrong",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestBooksArePublic(t *testing.T) {
	_, client := newTestEnv(t)

	resp := client.do(http.MethodGet, "/v1/books", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var list struct {
		Items []catalog.Book `json:"items"`
		Total int            `json:"total"`
	}
	client.decode(resp, &list)
	if list.Total != 3 {
		t.Fatalf("total = %d, want 3", list.Total)
	}

	resp = client.do(http.MethodGet, "/v1/books/bk1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBorrowRequiresAuth(t *testing.T) {
	_, client := newTestEnv(t)

	resp := client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestBorrowGrantsLink(t *testing.T) {
	_, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var grant borrow.Grant
	client.decode(resp, &grant)
	if grant.URL == "" || grant.Reused {
		t.Fatalf("grant = %+v", grant)
	}

	// the same reader asking again gets the existing loan back
	resp = client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second borrow: status %d, want 200", resp.StatusCode)
	}
	var second borrow.Grant
	client.decode(resp, &second)
	if !second.Reused || second.LoanID != grant.LoanID {
		t.Fatalf("second = %+v", second)
	}
}

func TestBorrowExpiredLoanIsGone(t *testing.T) {
	env, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("borrow: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	*env.clock = env.clock.Add(15 * 24 * time.Hour)
	resp = client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want 410", resp.StatusCode)
	}
}

func TestBorrowBookWithoutFile(t *testing.T) {
	_, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/books/bk-empty/borrow", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestBorrowVaultOutage(t *testing.T) {
	env, client := newTestEnv(t)
	token := client.register("reader@school.test")
	env.vault.fail = true

	resp := client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	// compensation removed the loan, so recovery works once the vault is back
	env.vault.fail = false
	resp2 := client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusCreated {
		t.Fatalf("retry status = %d, want 201", resp2.StatusCode)
	}
}

func TestReturnLoan(t *testing.T) {
	_, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/books/bk1/borrow", nil, token)
	var grant borrow.Grant
	client.decode(resp, &grant)

	resp = client.do(http.MethodPost, "/v1/loans/"+grant.LoanID+"/return", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("return: status %d", resp.StatusCode)
	}
	var loan borrow.Loan
	client.decode(resp, &loan)
	if loan.Status != borrow.StatusReturned {
		t.Fatalf("status = %q", loan.Status)
	}

	resp = client.do(http.MethodPost, "/v1/loans/"+grant.LoanID+"/return", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second return: status %d, want 409", resp.StatusCode)
	}
}

func TestWishlistRoundTrip(t *testing.T) {
	_, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/books/bk1/wishlist", nil, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = client.do(http.MethodGet, "/v1/wishlist", nil, token)
	var list struct {
		Items []wishlist.Item `json:"items"`
	}
	client.decode(resp, &list)
	if len(list.Items) != 1 {
		t.Fatalf("items = %v", list.Items)
	}

	resp = client.do(http.MethodDelete, "/v1/books/bk1/wishlist", nil, token)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSubmitReviewGoesToModeration(t *testing.T) {
	env, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodPost, "/v1/books/bk1/reviews", map[string]any{
		"rating":  5,
		"comment": "loved it",
	}, token)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// not served publicly until approved
	resp = client.do(http.MethodGet, "/v1/books/bk1/reviews", nil, "")
	var list struct {
		Items []review.Review `json:"items"`
	}
	client.decode(resp, &list)
	if len(list.Items) != 0 {
		t.Fatalf("unapproved review served: %v", list.Items)
	}

	adminToken := makeAdmin(t, env, client)
	resp = client.do(http.MethodGet, "/v1/admin/reviews", nil, adminToken)
	client.decode(resp, &list)
	if len(list.Items) != 1 {
		t.Fatalf("pending items = %v", list.Items)
	}

	resp = client.do(http.MethodPut, "/v1/admin/reviews/"+list.Items[0].ID, map[string]any{
		"approved": true,
	}, adminToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("moderate: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = client.do(http.MethodGet, "/v1/books/bk1/reviews", nil, "")
	client.decode(resp, &list)
	if len(list.Items) != 1 {
		t.Fatalf("approved review missing: %v", list.Items)
	}
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	_, client := newTestEnv(t)
	token := client.register("reader@school.test")

	resp := client.do(http.MethodGet, "/v1/admin/stats", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestAdminStats(t *testing.T) {
	env, client := newTestEnv(t)
	adminToken := makeAdmin(t, env, client)

	resp := client.do(http.MethodGet, "/v1/admin/stats", nil, adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats catalog.Stats
	client.decode(resp, &stats)
	if stats.Books != 3 {
		t.Fatalf("books = %d, want 3", stats.Books)
	}
}

func TestAdminSetRoleRejectsSelf(t *testing.T) {
	env, client := newTestEnv(t)
	adminToken := makeAdmin(t, env, client)

	var adminID string
	for id, roles := range env.store.roles {
		if len(roles) == 1 && roles[0] == auth.RoleAdmin {
			adminID = id
		}
	}
	resp := client.do(http.MethodPut, "/v1/admin/users/"+adminID+"/role", map[string]any{
		"role": "student",
	}, adminToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthAndReady(t *testing.T) {
	_, client := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := client.do(http.MethodGet, path, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

// makeAdmin registers an account and promotes it directly in the store.
func makeAdmin(t *testing.T, env *testEnv, client *apiClient) string {
	t.Helper()
	client.register("admin@school.test")
	acc, err := env.store.FindAccountByEmail(context.Background(), "admin@school.test")
	if err != nil {
		t.Fatalf("find admin account: %v", err)
	}
	if err := env.store.SetRole(context.Background(), acc.ID, auth.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	resp := client.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    "admin@school.test",
		"password": "correct-horse",
	}, "")
	var session struct {
		Token string `json:"token"`
	}
	client.decode(resp, &session)
	return session.Token
}
