// Package service contains application services for authentication, the catalog and uploads.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/libcatalog/internal/crypto"
	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/limiter"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/and161185/libcatalog/internal/repository"
	"github.com/and161185/libcatalog/internal/token"
	"github.com/gofrs/uuid/v5"
)

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new user with a hashed password.
	Register(ctx context.Context, username, password string) (*model.User, error)
	// Login checks credentials, applies rate limiting per (username, client) and issues an access token.
	Login(ctx context.Context, username, password, remoteAddr string) (model.Tokens, error)
	// Authenticate verifies a bearer token and resolves its subject to a user.
	Authenticate(ctx context.Context, bearer string) (*model.User, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	hasher    *pkgcrypto.Hasher
	tokens    *token.Authority
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository,
	hasher *pkgcrypto.Hasher,
	tokens *token.Authority,
	accessTTL time.Duration,
	lim limiter.Limiter,
) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{users: users, hasher: hasher, tokens: tokens, accessTTL: accessTTL, lim: lim}
}

const maxUsernameLen = 64

// Register validates input and stores a new account.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: empty username/password", errs.ErrInvalidInput)
	}
	if len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username too long", errs.ErrInvalidInput)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, salt, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}

	u := &model.User{ID: uid, Username: username, PwdHash: hash, Salt: salt}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login authenticates with rate limiting by (username, client address).
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, remoteAddr string) (model.Tokens, error) {
	client := limiter.HashClient(remoteAddr)

	allowed, _, err := s.lim.Allow(ctx, username, client)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, err
	}
	if err != nil || !s.hasher.Verify([]byte(password), u.Salt, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, client); ferr == nil && blocked {
			return model.Tokens{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, client)

	access, claims, err := s.tokens.IssueClaims(u.Username, map[string]any{"uid": u.ID.String()}, s.accessTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt,
		ExpiresIn:   claims.ExpiresAt.Sub(claims.IssuedAt),
	}, nil
}

// Authenticate returns the user named by a valid token. Any failure wraps
// errs.ErrUnauthorized; token failures also wrap the token package sentinel.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, bearer string) (*model.User, error) {
	claims, err := s.tokens.Verify(bearer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	u, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", errs.ErrUnauthorized)
		}
		return nil, err
	}
	return u, nil
}
