// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens is the result of a successful login.
type Tokens struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	// ExpiresIn is exp minus iat as signed into the token.
	ExpiresIn time.Duration
}

// User is an account allowed to curate the catalog.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique, also the access token subject
	PwdHash   []byte    // Argon2id(password, Salt)
	Salt      []byte
	CreatedAt time.Time
}

// Author of one or more books.
type Author struct {
	ID       int64
	FullName string
	Country  *string
}

// Book is a catalog entry. Author is populated on reads.
type Book struct {
	ID              int64
	Title           string
	PublicationYear *int32
	Genre           *string
	Description     *string
	AuthorID        int64
	UserID          uuid.UUID // creator
	CreatedAt       time.Time
	Author          *Author
}

// BookPatch carries the fields of a partial update; nil means "keep".
type BookPatch struct {
	Title           *string
	PublicationYear *int32
	Genre           *string
	Description     *string
	AuthorID        *int64
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.PublicationYear == nil && p.Genre == nil &&
		p.Description == nil && p.AuthorID == nil
}

// Upload describes a stored file.
type Upload struct {
	Filename    string // original client file name
	StoredAs    string // name on disk
	ContentType string
	Size        int64
}
