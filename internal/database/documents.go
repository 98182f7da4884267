package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/lendflow/backend/internal/core"
)

// ============================================================================
// DOCUMENT OPERATIONS
// ============================================================================

// CreateDocument inserts a document row. The (case_uuid, content_hash)
// unique index is the dedup guard; a conflicting insert returns
// ErrDuplicateDocument with the existing row.
func (s *Store) CreateDocument(ctx context.Context, d *core.Document) error {
	d.Status = core.DocUploaded
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, case_uuid, storage_key, filename, content_hash,
			size_bytes, extension, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		d.ID, d.CaseUUID, d.StorageKey, d.OriginalFilename, d.ContentHash,
		d.SizeBytes, d.Extension, d.Status, now)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return core.NewError(core.CodeDuplicateDocument,
				"document with identical content already exists in case")
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const docColumns = `id, case_uuid, storage_key, filename, content_hash, size_bytes,
	extension, doc_type, confidence, classify_method, ocr_text, page_count,
	status, failure_reason, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*core.Document, error) {
	var d core.Document
	var docType, ocrText sql.NullString
	err := row.Scan(&d.ID, &d.CaseUUID, &d.StorageKey, &d.OriginalFilename,
		&d.ContentHash, &d.SizeBytes, &d.Extension, &docType, &d.Confidence,
		&d.ClassifyMethod, &ocrText, &d.PageCount, &d.Status, &d.FailureReason,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.DocType = core.DocumentType(docType.String)
	d.OCRText = ocrText.String
	return &d, nil
}

// GetDocument fetches one document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// FindDocumentByHash returns the existing document for (case, hash),
// or nil. Used for dedup responses that echo the original doc id.
func (s *Store) FindDocumentByHash(ctx context.Context, caseUUID, hash string) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE case_uuid = $1 AND content_hash = $2`,
		caseUUID, hash)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}
	return d, nil
}

// ListDocuments returns all documents for a case in upload order.
func (s *Store) ListDocuments(ctx context.Context, caseUUID string) ([]*core.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE case_uuid = $1 ORDER BY created_at`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetDocumentOCR records the OCR output and advances status.
func (s *Store) SetDocumentOCR(ctx context.Context, id, text string, pageCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET ocr_text = $2, page_count = $3, status = $4, updated_at = now()
		WHERE id = $1`, id, text, pageCount, core.DocOCRComplete)
	return err
}

// SetDocumentClassification records the classifier verdict.
func (s *Store) SetDocumentClassification(ctx context.Context, id string, docType core.DocumentType, confidence float64, method string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET doc_type = $2, confidence = $3, classify_method = $4,
			status = $5, updated_at = now()
		WHERE id = $1`, id, docType, confidence, method, core.DocClassified)
	return err
}

// SetDocumentStatus moves a document to the given status.
func (s *Store) SetDocumentStatus(ctx context.Context, id string, status core.DocumentStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

// FailDocument marks a document FAILED with a reason code. A failed
// document never blocks the rest of the case.
func (s *Store) FailDocument(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1`, id, core.DocFailed, reason)
	return err
}

// AllDocumentsTerminal reports whether every document of a case has
// reached EXTRACTED or FAILED. Gate for the feature-assembly stage.
func (s *Store) AllDocumentsTerminal(ctx context.Context, caseUUID string) (bool, error) {
	var pending int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE case_uuid = $1 AND status NOT IN ($2, $3)`,
		caseUUID, core.DocExtracted, core.DocFailed).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("count pending documents: %w", err)
	}
	return pending == 0, nil
}

// ClassifiedDocumentTypes returns the distinct successfully classified
// types present in a case (checklist and documentation scoring input).
func (s *Store) ClassifiedDocumentTypes(ctx context.Context, caseUUID string) ([]core.DocumentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT doc_type FROM documents
		WHERE case_uuid = $1 AND doc_type IS NOT NULL AND doc_type <> $2`,
		caseUUID, core.DocTypeUnknown)
	if err != nil {
		return nil, fmt.Errorf("classified document types: %w", err)
	}
	defer rows.Close()

	var types []core.DocumentType
	for rows.Next() {
		var t core.DocumentType
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}
