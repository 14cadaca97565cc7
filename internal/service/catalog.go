package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/and161185/libcatalog/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// CatalogService defines operations over authors and books.
type CatalogService interface {
	ListAuthors(ctx context.Context, limit, offset int) ([]model.Author, error)
	GetAuthor(ctx context.Context, id int64) (*model.Author, error)
	CreateAuthor(ctx context.Context, a model.Author) (*model.Author, error)

	ListBooks(ctx context.Context, limit, offset int) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	// CreateBook stores a book owned by userID and returns it with its author.
	CreateBook(ctx context.Context, userID uuid.UUID, b model.Book) (*model.Book, error)
	UpdateBook(ctx context.Context, id int64, p model.BookPatch) (*model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
}

type CatalogServiceImpl struct {
	authors  repository.AuthorRepository
	books    repository.BookRepository
	maxLimit int
}

// NewCatalogService constructs CatalogService with a page size cap.
func NewCatalogService(authors repository.AuthorRepository, books repository.BookRepository, maxLimit int) *CatalogServiceImpl {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &CatalogServiceImpl{authors: authors, books: books, maxLimit: maxLimit}
}

func (s *CatalogServiceImpl) page(limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: negative offset", errs.ErrInvalidInput)
	}
	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit, offset, nil
}

// ListAuthors returns a page of authors.
func (s *CatalogServiceImpl) ListAuthors(ctx context.Context, limit, offset int) ([]model.Author, error) {
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	return s.authors.List(ctx, limit, offset)
}

// GetAuthor returns one author.
func (s *CatalogServiceImpl) GetAuthor(ctx context.Context, id int64) (*model.Author, error) {
	if id <= 0 {
		return nil, errs.ErrNotFound
	}
	return s.authors.Get(ctx, id)
}

// CreateAuthor validates and stores an author.
func (s *CatalogServiceImpl) CreateAuthor(ctx context.Context, a model.Author) (*model.Author, error) {
	a.FullName = strings.TrimSpace(a.FullName)
	if a.FullName == "" {
		return nil, fmt.Errorf("%w: full_name required", errs.ErrInvalidInput)
	}
	a.ID = 0
	if err := s.authors.Create(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListBooks returns a page of books.
func (s *CatalogServiceImpl) ListBooks(ctx context.Context, limit, offset int) ([]model.Book, error) {
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	return s.books.List(ctx, limit, offset)
}

// GetBook returns one book.
func (s *CatalogServiceImpl) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	if id <= 0 {
		return nil, errs.ErrNotFound
	}
	return s.books.Get(ctx, id)
}

// CreateBook validates input, stores the book and reads it back with its author.
// Validation rules:
// - title not blank
// - author_id > 0 and referencing an existing author
// - publication_year, when set, not negative
func (s *CatalogServiceImpl) CreateBook(ctx context.Context, userID uuid.UUID, b model.Book) (*model.Book, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user", errs.ErrInvalidInput)
	}
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return nil, fmt.Errorf("%w: title required", errs.ErrInvalidInput)
	}
	if b.AuthorID <= 0 {
		return nil, fmt.Errorf("%w: author_id required", errs.ErrInvalidInput)
	}
	if b.PublicationYear != nil && *b.PublicationYear < 0 {
		return nil, fmt.Errorf("%w: negative publication_year", errs.ErrInvalidInput)
	}
	b.ID = 0
	b.UserID = userID
	if err := s.books.Create(ctx, &b); err != nil {
		return nil, err
	}
	return s.books.Get(ctx, b.ID)
}

// UpdateBook applies a partial update.
func (s *CatalogServiceImpl) UpdateBook(ctx context.Context, id int64, p model.BookPatch) (*model.Book, error) {
	if id <= 0 {
		return nil, errs.ErrNotFound
	}
	if p.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrInvalidInput)
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: blank title", errs.ErrInvalidInput)
		}
		p.Title = &t
	}
	if p.AuthorID != nil && *p.AuthorID <= 0 {
		return nil, fmt.Errorf("%w: bad author_id", errs.ErrInvalidInput)
	}
	if p.PublicationYear != nil && *p.PublicationYear < 0 {
		return nil, fmt.Errorf("%w: negative publication_year", errs.ErrInvalidInput)
	}
	return s.books.Update(ctx, id, p)
}

// DeleteBook removes a book.
func (s *CatalogServiceImpl) DeleteBook(ctx context.Context, id int64) error {
	if id <= 0 {
		return errs.ErrNotFound
	}
	return s.books.Delete(ctx, id)
}
