package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/and161185/libcatalog/internal/errs"
)

func TestDiskUploads_Save(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "uploads")
	d, err := NewDiskUploads(dir, 16)
	if err != nil {
		t.Fatalf("NewDiskUploads: %v", err)
	}

	up, err := d.Save(context.Background(), "../../etc/book.pdf", "application/pdf", strings.NewReader("%PDF-1.4 tiny"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if up.Filename != "book.pdf" || up.Size != int64(len("%PDF-1.4 tiny")) || !strings.HasSuffix(up.StoredAs, ".pdf") {
		t.Fatalf("upload=%+v", up)
	}
	got, err := os.ReadFile(filepath.Join(dir, up.StoredAs))
	if err != nil || string(got) != "%PDF-1.4 tiny" {
		t.Fatalf("stored content: %q %v", got, err)
	}
}

func TestDiskUploads_Rejects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d, err := NewDiskUploads(dir, 16)
	if err != nil {
		t.Fatalf("NewDiskUploads: %v", err)
	}

	if _, err := d.Save(context.Background(), "a.txt", "text/plain", strings.NewReader("x")); !errors.Is(err, errs.ErrUnsupportedType) {
		t.Fatalf("want ErrUnsupportedType, got %v", err)
	}

	// exactly the limit is fine, one more byte is not
	if _, err := d.Save(context.Background(), "ok.pdf", "application/pdf", bytes.NewReader(make([]byte, 16))); err != nil {
		t.Fatalf("Save at limit: %v", err)
	}
	if _, err := d.Save(context.Background(), "big.pdf", "application/pdf", bytes.NewReader(make([]byte, 17))); !errors.Is(err, errs.ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("oversized upload left on disk: %d files", len(entries))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Save(ctx, "c.pdf", "application/pdf", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNewDiskUploads_Defaults(t *testing.T) {
	t.Parallel()

	d, err := NewDiskUploads(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskUploads: %v", err)
	}
	if d.MaxSize() != DefaultMaxUpload {
		t.Fatalf("MaxSize=%d", d.MaxSize())
	}
}
