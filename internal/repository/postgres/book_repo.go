package postgres

import (
	"context"
	"errors"

	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/jackc/pgx/v5"
)

// BookRepo implements repository.BookRepository using PostgreSQL.
type BookRepo struct{ db *DB }

// NewBookRepo constructs a book repository.
func NewBookRepo(db *DB) *BookRepo { return &BookRepo{db: db} }

const bookSelect = `
SELECT b.id, b.title, b.publication_year, b.genre, b.description, b.author_id, b.user_id, b.created_at,
       a.full_name, a.country
FROM books b JOIN authors a ON a.id = b.author_id`

// Create inserts a book and sets ID and CreatedAt.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	const q = `
INSERT INTO books (title, publication_year, genre, description, author_id, user_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q, b.Title, b.PublicationYear, b.Genre, b.Description, b.AuthorID, b.UserID).
		Scan(&b.ID, &b.CreatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrReferenceMissing
	}
	return err
}

// Get selects one book with its author.
func (r *BookRepo) Get(ctx context.Context, id int64) (*model.Book, error) {
	return scanBook(r.db.Pool.QueryRow(ctx, bookSelect+` WHERE b.id=$1`, id))
}

// List selects a page of books ordered by ID.
func (r *BookRepo) List(ctx context.Context, limit, offset int) ([]model.Book, error) {
	rows, err := r.db.Pool.Query(ctx, bookSelect+` ORDER BY b.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of p inside a transaction and returns the new row.
func (r *BookRepo) Update(ctx context.Context, id int64, p model.BookPatch) (book *model.Book, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const upd = `
UPDATE books SET
  title = COALESCE($2, title),
  publication_year = COALESCE($3, publication_year),
  genre = COALESCE($4, genre),
  description = COALESCE($5, description),
  author_id = COALESCE($6, author_id)
WHERE id = $1`
	tag, err := tx.Exec(ctx, upd, id, p.Title, p.PublicationYear, p.Genre, p.Description, p.AuthorID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, errs.ErrReferenceMissing
		}
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, errs.ErrNotFound
	}
	return scanBook(tx.QueryRow(ctx, bookSelect+` WHERE b.id=$1`, id))
}

// Delete removes a book by ID.
func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var (
		b model.Book
		a model.Author
	)
	err := row.Scan(&b.ID, &b.Title, &b.PublicationYear, &b.Genre, &b.Description, &b.AuthorID, &b.UserID, &b.CreatedAt,
		&a.FullName, &a.Country)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	a.ID = b.AuthorID
	b.Author = &a
	return &b, nil
}
