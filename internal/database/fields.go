package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lendflow/backend/internal/core"
)

// ============================================================================
// EXTRACTED FIELD OPERATIONS
// ============================================================================

// InsertExtractedFields writes a batch of field rows in one transaction.
func (s *Store) InsertExtractedFields(ctx context.Context, fields []core.ExtractedField) error {
	if len(fields) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO extracted_fields (id, case_uuid, document_id, field_name, field_value, confidence, source, created_at)
			VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8)`)
		if err != nil {
			return fmt.Errorf("prepare field insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, f := range fields {
			id := f.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, id, f.CaseUUID, f.DocumentID,
				f.FieldName, f.FieldValue, f.Confidence, f.Source, now); err != nil {
				return fmt.Errorf("insert field %s: %w", f.FieldName, err)
			}
		}
		return nil
	})
}

// ReplaceExternalFields swaps all source=external rows for a case in one
// transaction, so a re-run of an enricher never duplicates its output.
func (s *Store) ReplaceExternalFields(ctx context.Context, caseUUID string, fields []core.ExtractedField) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM extracted_fields WHERE case_uuid = $1 AND source = $2`,
			caseUUID, core.SourceExternal); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, f := range fields {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO extracted_fields (id, case_uuid, document_id, field_name, field_value, confidence, source, created_at)
				VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8)`,
				uuid.NewString(), caseUUID, f.DocumentID, f.FieldName, f.FieldValue,
				f.Confidence, core.SourceExternal, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListExtractedFields returns all field rows for a case in insertion order.
func (s *Store) ListExtractedFields(ctx context.Context, caseUUID string) ([]core.ExtractedField, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_uuid, COALESCE(document_id::text, ''), field_name, field_value, confidence, source, created_at
		FROM extracted_fields WHERE case_uuid = $1 ORDER BY created_at, field_name`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("list extracted fields: %w", err)
	}
	defer rows.Close()

	var fields []core.ExtractedField
	for rows.Next() {
		var f core.ExtractedField
		if err := rows.Scan(&f.ID, &f.CaseUUID, &f.DocumentID, &f.FieldName,
			&f.FieldValue, &f.Confidence, &f.Source, &f.CreatedAt); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// CountExtractedFields returns the number of field rows for a case.
func (s *Store) CountExtractedFields(ctx context.Context, caseUUID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM extracted_fields WHERE case_uuid = $1`, caseUUID).Scan(&n)
	return n, err
}

// ============================================================================
// BORROWER FEATURES (one vector per case, upsert)
// ============================================================================

// SaveBorrowerFeatures upserts the assembled feature vector.
func (s *Store) SaveBorrowerFeatures(ctx context.Context, f *core.BorrowerFeatures) error {
	f.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO borrower_features (case_uuid, features, completeness, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_uuid) DO UPDATE
		SET features = EXCLUDED.features, completeness = EXCLUDED.completeness,
			updated_at = EXCLUDED.updated_at`,
		f.CaseUUID, data, f.Completeness, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save borrower features: %w", err)
	}
	return nil
}

// GetBorrowerFeatures returns the feature vector for a case, or nil.
func (s *Store) GetBorrowerFeatures(ctx context.Context, caseUUID string) (*core.BorrowerFeatures, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT features FROM borrower_features WHERE case_uuid = $1`, caseUUID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get borrower features: %w", err)
	}
	var f core.BorrowerFeatures
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}
	return &f, nil
}
