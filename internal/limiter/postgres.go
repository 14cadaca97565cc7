package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG is a PostgreSQL-backed limiter over the login_attempts table.
type PG struct {
	q   Querier
	p   Policy
	now func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter. Zero policy fields fall back to DefaultPolicy.
func NewPG(q Querier, p Policy) *PG {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxFails <= 0 {
		p.MaxFails = DefaultPolicy.MaxFails
	}
	if p.BlockFor <= 0 {
		p.BlockFor = DefaultPolicy.BlockFor
	}
	return &PG{q: q, p: p, now: time.Now}
}

// Allow reports whether login is currently allowed and the remaining block time.
func (l *PG) Allow(ctx context.Context, username string, client []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE username=$1 AND client_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, username, client).Scan(&blockedUntil)
	switch {
	case err == nil:
		if left := blockedUntil.Sub(l.now()); left > 0 {
			return false, left, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for the pair.
func (l *PG) Success(ctx context.Context, username string, client []byte) error {
	const q = `
INSERT INTO login_attempts (username, client_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', now())
ON CONFLICT (username, client_hash)
DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`
	_, err := l.q.Exec(ctx, q, username, client)
	return err
}

// Failure records a failed attempt; reaching MaxFails inside Window blocks for BlockFor.
func (l *PG) Failure(ctx context.Context, username string, client []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (username, client_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (username, client_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - login_attempts.updated_at > $3::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, username, client, l.p.Window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.p.MaxFails {
		return false, 0, nil
	}

	const upd = `UPDATE login_attempts SET blocked_until = $3 WHERE username = $1 AND client_hash = $2`
	if _, err := l.q.Exec(ctx, upd, username, client, l.now().Add(l.p.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.p.BlockFor, nil
}
