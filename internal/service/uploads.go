package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UploadService stores user-supplied documents.
type UploadService interface {
	// Save validates and writes r to the upload directory.
	Save(ctx context.Context, filename, contentType string, r io.Reader) (model.Upload, error)
}

// DiskUploads writes uploads into a local directory under generated names.
type DiskUploads struct {
	dir     string
	maxSize int64
	allowed map[string]struct{}
}

// DefaultMaxUpload is the size limit applied when none is configured.
const DefaultMaxUpload = 5 << 20

// NewDiskUploads creates dir if needed. Only the listed content types are accepted.
func NewDiskUploads(dir string, maxSize int64, contentTypes ...string) (*DiskUploads, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxUpload
	}
	if len(contentTypes) == 0 {
		contentTypes = []string{"application/pdf"}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(contentTypes))
	for _, ct := range contentTypes {
		allowed[ct] = struct{}{}
	}
	return &DiskUploads{dir: dir, maxSize: maxSize, allowed: allowed}, nil
}

// MaxSize reports the configured limit in bytes.
func (d *DiskUploads) MaxSize() int64 { return d.maxSize }

// Save copies at most maxSize bytes; larger bodies are removed and rejected.
func (d *DiskUploads) Save(ctx context.Context, filename, contentType string, r io.Reader) (up model.Upload, err error) {
	if _, ok := d.allowed[contentType]; !ok {
		return model.Upload{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, contentType)
	}
	if err := ctx.Err(); err != nil {
		return model.Upload{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Upload{}, err
	}
	stored := id.String() + filepath.Ext(filepath.Base(filename))
	path := filepath.Join(d.dir, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return model.Upload{}, err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(f, io.LimitReader(r, d.maxSize+1))
	if err != nil {
		return model.Upload{}, fmt.Errorf("save upload: %w", err)
	}
	if n > d.maxSize {
		return model.Upload{}, errors.Join(errs.ErrTooLarge, fmt.Errorf("limit %d bytes", d.maxSize))
	}
	return model.Upload{
		Filename:    filepath.Base(filename),
		StoredAs:    stored,
		ContentType: contentType,
		Size:        n,
	}, nil
}
