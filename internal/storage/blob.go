// Package storage is the content-addressed blob store for uploaded
// documents and generated report PDFs.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore reads and writes immutable blobs under deterministic keys.
// Keys follow cases/{case_uuid}/docs/{document_uuid}{ext} and
// cases/{case_uuid}/reports/{report_id}.pdf.
type BlobStore interface {
	Write(ctx context.Context, key string, r io.Reader) (int64, error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Healthy(ctx context.Context) error
}

// DocumentKey builds the canonical blob key for a document.
func DocumentKey(caseUUID, documentUUID, ext string) string {
	return fmt.Sprintf("cases/%s/docs/%s%s", caseUUID, documentUUID, ext)
}

// ReportKey builds the canonical blob key for a report PDF.
func ReportKey(caseUUID, reportID string) string {
	return fmt.Sprintf("cases/%s/reports/%s.pdf", caseUUID, reportID)
}

// LocalStore is a filesystem-backed BlobStore. Writes go through a temp
// file and rename, so readers never see partial blobs; rewriting the
// same content under the same key is idempotent.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (ls *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key: %s", key)
	}
	return filepath.Join(ls.root, clean), nil
}

// Write streams r into the blob at key and returns the byte count.
func (ls *LocalStore) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := ls.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("finalize blob %s: %w", key, err)
	}
	return n, nil
}

// Read opens the blob at key for streaming.
func (ls *LocalStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := ls.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return f, nil
}

// Exists reports whether the blob is present.
func (ls *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := ls.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Healthy verifies the root is writable (used by /health).
func (ls *LocalStore) Healthy(ctx context.Context) error {
	probe := filepath.Join(ls.root, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("blob store not writable: %w", err)
	}
	return os.Remove(probe)
}
