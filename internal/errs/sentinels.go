// Package errs contains sentinel errors shared by repositories, services and
// the HTTP layer so that status mapping happens in one place.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary login lock.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g. username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReferenceMissing indicates a foreign key points at a missing row (e.g. unknown author).
	ErrReferenceMissing = errors.New("referenced entity missing")

	// ErrUnsupportedType indicates an upload with a content type that is not accepted.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrTooLarge indicates an upload above the size limit.
	ErrTooLarge = errors.New("too large")
)
