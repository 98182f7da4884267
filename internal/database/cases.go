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
// CASE OPERATIONS
// ============================================================================

// CreateCase inserts a new case, assigning the next CASE-YYYYMMDD-NNNN
// identifier. The daily counter row is incremented inside the same
// transaction under a row lock, so concurrent creates never collide.
func (s *Store) CreateCase(ctx context.Context, c *core.Case) error {
	c.UUID = uuid.NewString()
	c.Status = core.CaseCreated
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		day := now.Format("2006-01-02")
		var counter int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO case_counters (day, counter) VALUES ($1, 1)
			ON CONFLICT (day) DO UPDATE SET counter = case_counters.counter + 1
			RETURNING counter`, day).Scan(&counter)
		if err != nil {
			return fmt.Errorf("advance daily counter: %w", err)
		}
		c.CaseID = fmt.Sprintf("CASE-%s-%04d", now.Format("20060102"), counter)

		overrides, _ := json.Marshal(c.Overrides)
		if c.Overrides == nil {
			overrides = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cases (uuid, case_id, operator_id, borrower_name, program_type, status, overrides, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			c.UUID, c.CaseID, c.OperatorID, c.BorrowerName, c.ProgramType, c.Status, overrides, now)
		if err != nil {
			return fmt.Errorf("insert case: %w", err)
		}
		return nil
	})
}

const caseColumns = `uuid, case_id, operator_id, borrower_name, program_type, status,
	overrides, gstin, address, entity_type, pincode, vintage_years, annual_turnover,
	gstin_profile, deleted, created_at, updated_at`

func scanCase(row interface{ Scan(...interface{}) error }) (*core.Case, error) {
	var c core.Case
	var overrides []byte
	var profile []byte
	err := row.Scan(&c.UUID, &c.CaseID, &c.OperatorID, &c.BorrowerName, &c.ProgramType,
		&c.Status, &overrides, &c.GSTIN, &c.Address, &c.EntityType, &c.Pincode,
		&c.VintageYears, &c.AnnualTurnover, &profile, &c.Deleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		json.Unmarshal(overrides, &c.Overrides)
	}
	if len(profile) > 0 {
		json.Unmarshal(profile, &c.GSTINProfile)
	}
	return &c, nil
}

// GetCase looks up a case by public id (CASE-...) or by internal UUID.
// Returns nil when not found or soft-deleted.
func (s *Store) GetCase(ctx context.Context, id string) (*core.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+caseColumns+` FROM cases
		WHERE (case_id = $1 OR uuid::text = $1) AND NOT deleted`, id)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", id, err)
	}
	return c, nil
}

// ListCases returns an operator's cases, newest first.
func (s *Store) ListCases(ctx context.Context, operatorID string, limit int) ([]*core.Case, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+caseColumns+` FROM cases
		WHERE operator_id = $1 AND NOT deleted
		ORDER BY created_at DESC LIMIT $2`, operatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []*core.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// AdvanceCaseStatus moves the case forward along the pipeline. Backward
// or same-status transitions are silently ignored, which keeps stage
// handlers idempotent under retries.
func (s *Store) AdvanceCaseStatus(ctx context.Context, caseUUID string, next core.CaseStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current core.CaseStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM cases WHERE uuid = $1 FOR UPDATE`, caseUUID).Scan(&current)
		if err != nil {
			return fmt.Errorf("lock case %s: %w", caseUUID, err)
		}
		if !current.Advances(next) {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE cases SET status = $2, updated_at = now() WHERE uuid = $1`, caseUUID, next)
		return err
	})
}

// UpdateCaseDerived persists the derived business fields filled by
// enrichment and feature assembly.
func (s *Store) UpdateCaseDerived(ctx context.Context, c *core.Case) error {
	profile, _ := json.Marshal(c.GSTINProfile)
	if c.GSTINProfile == nil {
		profile = nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE cases SET gstin = $2, address = $3, entity_type = $4, pincode = $5,
			vintage_years = $6, annual_turnover = $7, gstin_profile = COALESCE($8, gstin_profile),
			updated_at = now()
		WHERE uuid = $1`,
		c.UUID, c.GSTIN, c.Address, c.EntityType, c.Pincode,
		c.VintageYears, c.AnnualTurnover, profile)
	if err != nil {
		return fmt.Errorf("update case derived fields: %w", err)
	}
	return nil
}

// SetCaseOverrides replaces the manual-override map on a case.
func (s *Store) SetCaseOverrides(ctx context.Context, caseUUID string, overrides map[string]interface{}) error {
	data, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE cases SET overrides = $2, updated_at = now() WHERE uuid = $1`, caseUUID, data)
	return err
}

// SoftDeleteCase marks a case deleted and cancels its outstanding jobs
// in the same transaction. Owned rows are retained for audit.
func (s *Store) SoftDeleteCase(ctx context.Context, caseUUID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cases SET deleted = TRUE, updated_at = now() WHERE uuid = $1 AND NOT deleted`, caseUUID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET state = 'cancelled', updated_at = now()
			WHERE case_uuid = $1 AND state IN ('queued', 'running')`, caseUUID)
		return err
	})
}

// CaseAggregateSize returns the total stored bytes for a case, used to
// enforce the per-case upload budget.
func (s *Store) CaseAggregateSize(ctx context.Context, caseUUID string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(size_bytes) FROM documents WHERE case_uuid = $1`, caseUUID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("case aggregate size: %w", err)
	}
	return total.Int64, nil
}
