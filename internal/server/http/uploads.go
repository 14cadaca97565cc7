package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/and161185/libcatalog/internal/errs"
)

const uploadField = "file"

type uploadResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_in_bytes"`
}

// upload stores one multipart file. The body is capped slightly above the
// file limit to leave room for multipart framing.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload+64<<10)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: multipart body required", errs.ErrInvalidInput))
		return
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				s.writeError(w, r, errs.ErrTooLarge)
				return
			}
			s.writeError(w, r, fmt.Errorf("%w: missing %q field", errs.ErrInvalidInput, uploadField))
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		up, err := s.uploads.Save(r.Context(), part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				err = errs.ErrTooLarge
			}
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{
			Filename:    up.Filename,
			ContentType: up.ContentType,
			Size:        up.Size,
		})
		return
	}
}
