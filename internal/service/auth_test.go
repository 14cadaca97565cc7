package service

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/libcatalog/internal/crypto"
	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/limiter"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/and161185/libcatalog/internal/repository"
	"github.com/and161185/libcatalog/internal/token"
	"github.com/gofrs/uuid/v5"
)

type fakeUsers struct {
	byName map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool

	allowCalls   int
	failureCalls int
	successCalls int
	lastClient   []byte
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, _ string, client []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastClient = client
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, nil
}

var fastHash = pkgcrypto.Params{Time: 1, Memory: 8 * 1024, Threads: 1}

func newTestAuth(t *testing.T, users *fakeUsers, lim limiter.Limiter) (*AuthServiceImpl, *token.Authority) {
	t.Helper()
	ta, err := token.NewAuthority([]byte("jwt-secret"), token.HS512)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	return NewAuthService(users, pkgcrypto.NewHasher(fastHash), ta, 15*time.Minute, lim), ta
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s, _ := newTestAuth(t, users, &fakeLimiter{})

	if _, err := s.Register(context.Background(), "  ", "pwd"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on blank username, got %v", err)
	}
	if _, err := s.Register(context.Background(), "alice", ""); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on empty password, got %v", err)
	}

	u, err := s.Register(context.Background(), " alice ", "pwd")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == uuid.Nil || u.Username != "alice" || len(u.Salt) == 0 || len(u.PwdHash) == 0 {
		t.Fatalf("bad user: %+v", u)
	}

	if _, err := s.Register(context.Background(), "alice", "pwd2"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, err := s.Register(context.Background(), "bob", "pwd"); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Login_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byName: map[string]*model.User{}}
	lim := &fakeLimiter{allowOK: true}
	s, ta := newTestAuth(t, users, lim)
	if _, err := s.Register(context.Background(), "alice", "correct"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	lim.allowErr = errors.New("lim-err")
	if _, err := s.Login(context.Background(), "alice", "correct", "1.2.3.4:1"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, err := s.Login(context.Background(), "alice", "correct", "1.2.3.4:1"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, err := s.Login(context.Background(), "nope", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	lim.failBlocked = true
	if _, err := s.Login(context.Background(), "alice", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited once blocked, got %v", err)
	}
	lim.failBlocked = false

	if _, err := s.Login(context.Background(), "alice", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	users.getErr = errors.New("db down")
	if _, err := s.Login(context.Background(), "alice", "correct", ""); errors.Is(err, errs.ErrUnauthorized) || err == nil {
		t.Fatalf("want infrastructure error, got %v", err)
	}
	users.getErr = nil

	tok, err := s.Login(context.Background(), "alice", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.AccessToken == "" || tok.TokenType != "bearer" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", tok)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}
	if string(lim.lastClient) != string(limiter.HashClient("127.0.0.1")) {
		t.Fatalf("limiter keyed on unexpected client")
	}

	claims, err := ta.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("Verify issued token: %v", err)
	}
	if claims.Subject != "alice" || claims.ExpiresAt.Sub(claims.IssuedAt) != 15*time.Minute {
		t.Fatalf("claims=%+v", claims)
	}
}

func TestAuth_Authenticate(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byName: map[string]*model.User{}}
	s, ta := newTestAuth(t, users, nil)
	reg, err := s.Register(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	tok, err := s.Login(context.Background(), "alice", "pw", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	u, err := s.Authenticate(context.Background(), tok.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.ID != reg.ID {
		t.Fatalf("resolved wrong user")
	}

	_, err = s.Authenticate(context.Background(), "garbage")
	if !errors.Is(err, errs.ErrUnauthorized) || !errors.Is(err, token.ErrMalformedToken) {
		t.Fatalf("want ErrUnauthorized+ErrMalformedToken, got %v", err)
	}

	ghost, err := ta.Issue("ghost", nil, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Authenticate(context.Background(), ghost); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for unknown subject, got %v", err)
	}
}

func TestAuth_Login_ExpiryFromTokenClock(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{byName: map[string]*model.User{}}
	issued := time.Unix(1_000, 0)
	ta, err := token.NewAuthority([]byte("jwt-secret"), token.HS512,
		token.WithClock(func() time.Time { return issued }))
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	s := NewAuthService(users, pkgcrypto.NewHasher(fastHash), ta, 15*time.Minute, nil)
	if _, err := s.Register(context.Background(), "alice", "correct"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tok, err := s.Login(context.Background(), "alice", "correct", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !tok.ExpiresAt.Equal(issued.Add(15*time.Minute)) || tok.ExpiresIn != 15*time.Minute {
		t.Fatalf("expiry=%v in=%v", tok.ExpiresAt, tok.ExpiresIn)
	}
	claims, err := ta.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !claims.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Fatalf("token exp %v, reported %v", claims.ExpiresAt, tok.ExpiresAt)
	}
}
