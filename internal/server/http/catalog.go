package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/model"
)

type authorDTO struct {
	ID       int64   `json:"id"`
	FullName string  `json:"full_name"`
	Country  *string `json:"country,omitempty"`
}

type bookDTO struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	PublicationYear *int32     `json:"publication_year,omitempty"`
	Genre           *string    `json:"genre,omitempty"`
	Description     *string    `json:"description,omitempty"`
	AuthorID        int64      `json:"author_id"`
	UserID          string     `json:"user_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at,omitzero"`
	Author          *authorDTO `json:"author,omitempty"`
}

type bookInput struct {
	Title           *string `json:"title"`
	PublicationYear *int32  `json:"publication_year"`
	Genre           *string `json:"genre"`
	Description     *string `json:"description"`
	AuthorID        *int64  `json:"author_id"`
}

func toAuthorDTO(a model.Author) authorDTO {
	return authorDTO{ID: a.ID, FullName: a.FullName, Country: a.Country}
}

func toBookDTO(b model.Book) bookDTO {
	out := bookDTO{
		ID:              b.ID,
		Title:           b.Title,
		PublicationYear: b.PublicationYear,
		Genre:           b.Genre,
		Description:     b.Description,
		AuthorID:        b.AuthorID,
		CreatedAt:       b.CreatedAt,
	}
	if !b.UserID.IsNil() {
		out.UserID = b.UserID.String()
	}
	if b.Author != nil {
		a := toAuthorDTO(*b.Author)
		out.Author = &a
	}
	return out
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.ErrNotFound
	}
	return id, nil
}

// paging reads ?limit=&offset=; absent values mean the service defaults.
func paging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: limit", errs.ErrInvalidInput)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: offset", errs.ErrInvalidInput)
		}
	}
	return limit, offset, nil
}

// --- Authors ---

func (s *Server) listAuthors(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.catalog.ListAuthors(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]authorDTO, 0, len(list))
	for _, a := range list {
		out = append(out, toAuthorDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.catalog.GetAuthor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorDTO(*a))
}

func (s *Server) createAuthor(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName string  `json:"full_name"`
		Country  *string `json:"country"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.catalog.CreateAuthor(r.Context(), model.Author{FullName: in.FullName, Country: in.Country})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthorDTO(*a))
}

// --- Books ---

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.catalog.ListBooks(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]bookDTO, 0, len(list))
	for _, b := range list {
		out = append(out, toBookDTO(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.catalog.GetBook(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*b))
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromCtx(r.Context())
	if !ok {
		s.writeError(w, r, errs.ErrUnauthorized)
		return
	}
	var in bookInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	b := model.Book{
		PublicationYear: in.PublicationYear,
		Genre:           in.Genre,
		Description:     in.Description,
	}
	if in.Title != nil {
		b.Title = *in.Title
	}
	if in.AuthorID != nil {
		b.AuthorID = *in.AuthorID
	}
	created, err := s.catalog.CreateBook(r.Context(), u.ID, b)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(*created))
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in bookInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.catalog.UpdateBook(r.Context(), id, model.BookPatch{
		Title:           in.Title,
		PublicationYear: in.PublicationYear,
		Genre:           in.Genre,
		Description:     in.Description,
		AuthorID:        in.AuthorID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*b))
}

func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.catalog.DeleteBook(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
