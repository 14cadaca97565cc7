package postgres

import (
	"context"
	"errors"

	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/jackc/pgx/v5"
)

// AuthorRepo implements repository.AuthorRepository using PostgreSQL.
type AuthorRepo struct{ db *DB }

// NewAuthorRepo constructs an author repository.
func NewAuthorRepo(db *DB) *AuthorRepo { return &AuthorRepo{db: db} }

// Create inserts an author and sets its ID.
func (r *AuthorRepo) Create(ctx context.Context, a *model.Author) error {
	const q = `INSERT INTO authors (full_name, country) VALUES ($1, $2) RETURNING id`
	return r.db.Pool.QueryRow(ctx, q, a.FullName, a.Country).Scan(&a.ID)
}

// Get selects an author by ID.
func (r *AuthorRepo) Get(ctx context.Context, id int64) (*model.Author, error) {
	const q = `SELECT id, full_name, country FROM authors WHERE id=$1`
	var a model.Author
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.FullName, &a.Country); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// List selects a page of authors ordered by ID.
func (r *AuthorRepo) List(ctx context.Context, limit, offset int) ([]model.Author, error) {
	const q = `SELECT id, full_name, country FROM authors ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Author, 0)
	for rows.Next() {
		var a model.Author
		if err := rows.Scan(&a.ID, &a.FullName, &a.Country); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
