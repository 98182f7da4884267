// Package ingest accepts borrower document uploads, validates and
// de-duplicates them, persists blobs, and enqueues per-document OCR work.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/storage"
)

// allowedExtensions is the accepted upload surface. Archives (.zip) are
// expanded before this check applies.
var allowedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true,
	".png": true, ".tif": true, ".tiff": true,
}

// Enqueuer is the slice of the job queue the ingester needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, kind, caseUUID string, payload map[string]string) (string, error)
}

// IncomingFile is one upload item after multipart decoding.
type IncomingFile struct {
	Name string
	Data []byte
}

// CreatedDoc describes a newly ingested document.
type CreatedDoc struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
}

// DuplicateDoc points at the existing document a duplicate upload
// collided with.
type DuplicateDoc struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
}

// RejectedDoc names a file that failed validation and why.
type RejectedDoc struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Result is the partial-success outcome of a batch upload.
type Result struct {
	Created    []CreatedDoc   `json:"created"`
	Duplicates []DuplicateDoc `json:"duplicates"`
	Rejected   []RejectedDoc  `json:"rejected"`
}

// Ingester drives upload processing for a case.
type Ingester struct {
	store  *database.Store
	blobs  storage.BlobStore
	queue  Enqueuer
	cfg    config.UploadConfig
	logger *log.Logger
}

// New builds an Ingester.
func New(store *database.Store, blobs storage.BlobStore, queue Enqueuer, cfg config.UploadConfig) *Ingester {
	return &Ingester{
		store:  store,
		blobs:  blobs,
		queue:  queue,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// Ingest processes a batch of uploads for a case. Archives are expanded
// to leaf files first; each leaf file is validated, hashed, de-duplicated
// against (case, hash), stored, recorded, and queued for OCR. The result
// lists every per-file outcome; validation failures never abort the batch.
func (ing *Ingester) Ingest(ctx context.Context, c *core.Case, files []IncomingFile, ocrJobKind string) (*Result, error) {
	leaves, rejected := ExpandArchives(files)

	result := &Result{Rejected: rejected}

	aggregate, err := ing.store.CaseAggregateSize(ctx, c.UUID)
	if err != nil {
		return nil, err
	}

	for _, f := range leaves {
		outcome, err := ing.ingestOne(ctx, c, f, &aggregate, ocrJobKind)
		if err != nil {
			return nil, err
		}
		switch o := outcome.(type) {
		case CreatedDoc:
			result.Created = append(result.Created, o)
		case DuplicateDoc:
			result.Duplicates = append(result.Duplicates, o)
		case RejectedDoc:
			result.Rejected = append(result.Rejected, o)
		}
	}

	if len(result.Created) > 0 {
		if err := ing.store.AdvanceCaseStatus(ctx, c.UUID, core.CaseDocumentsUploaded); err != nil {
			return nil, err
		}
	}

	ing.logger.Printf("case %s: %d created, %d duplicate, %d rejected",
		c.CaseID, len(result.Created), len(result.Duplicates), len(result.Rejected))
	return result, nil
}

// ingestOne handles a single leaf file. The returned value is one of
// CreatedDoc, DuplicateDoc, or RejectedDoc.
func (ing *Ingester) ingestOne(ctx context.Context, c *core.Case, f IncomingFile, aggregate *int64, ocrJobKind string) (interface{}, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !allowedExtensions[ext] {
		return RejectedDoc{Filename: f.Name, Reason: fmt.Sprintf("unsupported extension %q", ext)}, nil
	}
	if int64(len(f.Data)) > ing.cfg.MaxFileBytes {
		return RejectedDoc{Filename: f.Name,
			Reason: fmt.Sprintf("file exceeds %d MB limit", ing.cfg.MaxFileBytes>>20)}, nil
	}
	if *aggregate+int64(len(f.Data)) > ing.cfg.MaxCaseBytes {
		return RejectedDoc{Filename: f.Name,
			Reason: fmt.Sprintf("case exceeds %d MB aggregate limit", ing.cfg.MaxCaseBytes>>20)}, nil
	}

	// Hash while streaming into the blob write below; data is already
	// in memory at this point so a single pass is enough.
	sum := sha256.Sum256(f.Data)
	hash := hex.EncodeToString(sum[:])

	existing, err := ing.store.FindDocumentByHash(ctx, c.UUID, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return DuplicateDoc{DocID: existing.ID, Filename: f.Name}, nil
	}

	doc := &core.Document{
		ID:               uuid.NewString(),
		CaseUUID:         c.UUID,
		OriginalFilename: f.Name,
		ContentHash:      hash,
		SizeBytes:        int64(len(f.Data)),
		Extension:        ext,
	}
	doc.StorageKey = storage.DocumentKey(c.UUID, doc.ID, ext)

	// Blob first: a blob without a row is harmless garbage, a row
	// without a blob is a broken document.
	if _, err := ing.blobs.Write(ctx, doc.StorageKey, bytes.NewReader(f.Data)); err != nil {
		return nil, fmt.Errorf("store blob for %s: %w", f.Name, err)
	}

	if err := ing.store.CreateDocument(ctx, doc); err != nil {
		if core.CodeOf(err) == core.CodeDuplicateDocument {
			// Lost a race with a concurrent identical upload.
			existing, lookupErr := ing.store.FindDocumentByHash(ctx, c.UUID, hash)
			if lookupErr == nil && existing != nil {
				return DuplicateDoc{DocID: existing.ID, Filename: f.Name}, nil
			}
		}
		return nil, err
	}
	*aggregate += doc.SizeBytes

	if _, err := ing.queue.EnqueueJob(ctx, ocrJobKind, c.UUID, map[string]string{"document_id": doc.ID}); err != nil {
		return nil, fmt.Errorf("enqueue OCR for %s: %w", doc.ID, err)
	}

	return CreatedDoc{DocID: doc.ID, Filename: f.Name}, nil
}

// CopyLimit wraps an upload reader so oversized bodies are cut off at
// one byte past the per-file limit, letting the caller distinguish
// "too large" from "at the limit".
func CopyLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	return data, nil
}
