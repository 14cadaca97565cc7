package repository

import (
	"context"

	"github.com/and161185/libcatalog/internal/model"
)

// AuthorRepository provides access to authors.
type AuthorRepository interface {
	// Create inserts an author and fills its ID.
	Create(ctx context.Context, a *model.Author) error
	// Get loads one author.
	Get(ctx context.Context, id int64) (*model.Author, error)
	// List returns authors ordered by ID.
	List(ctx context.Context, limit, offset int) ([]model.Author, error)
}

// BookRepository provides access to books with their authors joined.
type BookRepository interface {
	// Create inserts a book and fills ID and CreatedAt.
	Create(ctx context.Context, b *model.Book) error
	// Get loads one book with its author.
	Get(ctx context.Context, id int64) (*model.Book, error)
	// List returns books ordered by ID.
	List(ctx context.Context, limit, offset int) ([]model.Book, error)
	// Update applies a partial update and returns the new state.
	Update(ctx context.Context, id int64, p model.BookPatch) (*model.Book, error)
	// Delete removes a book; errs.ErrNotFound if absent.
	Delete(ctx context.Context, id int64) error
}
