package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/libcatalog/internal/csrf"
	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/and161185/libcatalog/internal/service"
	"github.com/and161185/libcatalog/internal/token"
)

var alice = &model.User{ID: uuid.Must(uuid.NewV4()), Username: "alice"}

type fakeAuth struct {
	mu       sync.Mutex
	users    map[string]string // username -> password
	limited  bool
	loginErr error
}

func (f *fakeAuth) Register(_ context.Context, username, password string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if username == "" || password == "" {
		return nil, errs.ErrInvalidInput
	}
	if _, ok := f.users[username]; ok {
		return nil, errs.ErrAlreadyExists
	}
	f.users[username] = password
	return &model.User{ID: uuid.Must(uuid.NewV4()), Username: username}, nil
}

func (f *fakeAuth) Login(_ context.Context, username, password, _ string) (model.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return model.Tokens{}, f.loginErr
	}
	if f.limited {
		return model.Tokens{}, errs.ErrRateLimited
	}
	if pw, ok := f.users[username]; !ok || pw != password {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	return model.Tokens{AccessToken: "good", TokenType: "bearer", ExpiresAt: time.Now().Add(time.Minute), ExpiresIn: time.Minute}, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, bearer string) (*model.User, error) {
	switch bearer {
	case "good":
		return alice, nil
	case "expired":
		return nil, fmt.Errorf("%w: %w", errs.ErrUnauthorized, token.ErrExpired)
	case "db-down":
		return nil, fmt.Errorf("db down")
	default:
		return nil, fmt.Errorf("%w: %w", errs.ErrUnauthorized, token.ErrMalformedToken)
	}
}

type fakeCatalog struct {
	mu      sync.Mutex
	authors map[int64]model.Author
	books   map[int64]model.Book
	next    int64
}

func newFakeCatalog() *fakeCatalog {
	country := "Україна"
	return &fakeCatalog{
		authors: map[int64]model.Author{1: {ID: 1, FullName: "Леся Українка", Country: &country}},
		books:   map[int64]model.Book{},
	}
}

func (f *fakeCatalog) ListAuthors(context.Context, int, int) ([]model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Author, 0, len(f.authors))
	for _, a := range f.authors {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeCatalog) GetAuthor(_ context.Context, id int64) (*model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.authors[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (f *fakeCatalog) CreateAuthor(_ context.Context, a model.Author) (*model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.FullName == "" {
		return nil, fmt.Errorf("%w: full_name required", errs.ErrInvalidInput)
	}
	a.ID = int64(len(f.authors) + 1)
	f.authors[a.ID] = a
	return &a, nil
}

func (f *fakeCatalog) ListBooks(context.Context, int, int) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Book, 0, len(f.books))
	for _, b := range f.books {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeCatalog) GetBook(_ context.Context, id int64) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &b, nil
}

func (f *fakeCatalog) CreateBook(_ context.Context, userID uuid.UUID, b model.Book) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.Title == "" {
		return nil, fmt.Errorf("%w: title required", errs.ErrInvalidInput)
	}
	a, ok := f.authors[b.AuthorID]
	if !ok {
		return nil, errs.ErrReferenceMissing
	}
	f.next++
	b.ID, b.UserID, b.Author = f.next, userID, &a
	f.books[b.ID] = b
	return &b, nil
}

func (f *fakeCatalog) UpdateBook(_ context.Context, id int64, p model.BookPatch) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if p.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrInvalidInput)
	}
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Genre != nil {
		b.Genre = p.Genre
	}
	f.books[id] = b
	return &b, nil
}

func (f *fakeCatalog) DeleteBook(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.books[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.books, id)
	return nil
}

type testEnv struct {
	srv   *Server
	h     http.Handler
	auth  *fakeAuth
	guard *csrf.Guard
}

const testMaxUpload = 1024

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	guard, err := csrf.NewGuard([]byte("csrf-secret"))
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	uploads, err := service.NewDiskUploads(t.TempDir(), testMaxUpload)
	if err != nil {
		t.Fatalf("NewDiskUploads: %v", err)
	}
	auth := &fakeAuth{users: map[string]string{"alice": "secret"}}
	srv := New(zaptest.NewLogger(t), auth, newFakeCatalog(), uploads, guard, Config{
		CSRFMaxAge: time.Hour,
		MaxUpload:  testMaxUpload,
	})
	return &testEnv{srv: srv, h: srv.Handler(), auth: auth, guard: guard}
}

// csrfFor returns a session cookie and a matching token.
func (e *testEnv) csrfFor(t *testing.T, sid string) (*http.Cookie, string) {
	t.Helper()
	tok, err := e.guard.Generate(sid)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return &http.Cookie{Name: SessionCookie, Value: sid}, tok
}

// do sends req through the router, attaching CSRF material and a bearer token when given.
func (e *testEnv) do(t *testing.T, req *http.Request, withCSRF bool, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	if withCSRF {
		c, tok := e.csrfFor(t, "sess-1")
		req.AddCookie(c)
		req.Header.Set(CSRFHeader, tok)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}
