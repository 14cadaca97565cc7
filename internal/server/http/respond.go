package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/libcatalog/internal/errs"
)

const maxJSONBody = 1 << 20

type detail struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrUnsupportedType):
		writeDetail(w, http.StatusBadRequest, "only PDF files are accepted")
	case errors.Is(err, errs.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		writeDetail(w, http.StatusConflict, "already exists")
	case errors.Is(err, errs.ErrReferenceMissing):
		writeDetail(w, http.StatusUnprocessableEntity, "referenced author does not exist")
	case errors.Is(err, errs.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, authRejected)
	case errors.Is(err, errs.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "too many login attempts")
	case errors.Is(err, errs.ErrTooLarge):
		writeDetail(w, http.StatusRequestEntityTooLarge, "file too large")
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal")
	}
}

// decodeJSON reads a single JSON object into dst. Syntax and type errors
// become errs.ErrInvalidInput.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return nil
}
