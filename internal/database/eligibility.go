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
// ELIGIBILITY RESULT OPERATIONS
// ============================================================================

// InsertEligibilityRun writes all result rows of one run atomically.
// Earlier runs for the case are retained for audit.
func (s *Store) InsertEligibilityRun(ctx context.Context, results []core.EligibilityResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO eligibility_results (id, case_uuid, lender_product_id, run_id,
				hard_filter_status, hard_filter_details, eligibility_score, probability,
				ticket_min, ticket_max, confidence, missing_improvement, rank, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`)
		if err != nil {
			return fmt.Errorf("prepare result insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, r := range results {
			id := r.ID
			if id == "" {
				id = uuid.NewString()
			}
			details, _ := json.Marshal(r.HardFilterDetails)
			missing, _ := json.Marshal(r.MissingImprovement)
			if r.HardFilterDetails == nil {
				details = []byte("{}")
			}
			if r.MissingImprovement == nil {
				missing = []byte("[]")
			}
			if _, err := stmt.ExecContext(ctx, id, r.CaseUUID, r.LenderProductID,
				r.RunID, r.HardFilterStatus, details, r.EligibilityScore, r.Probability,
				r.ExpectedTicketMin, r.ExpectedTicketMax, r.Confidence, missing,
				r.Rank, now); err != nil {
				return fmt.Errorf("insert eligibility result: %w", err)
			}
		}
		return nil
	})
}

// LatestEligibilityRun returns the most recent run's rows for a case,
// PASS rows first in rank order.
func (s *Store) LatestEligibilityRun(ctx context.Context, caseUUID string) ([]core.EligibilityResult, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id::text FROM eligibility_results
		WHERE case_uuid = $1 ORDER BY created_at DESC LIMIT 1`, caseUUID).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT er.id, er.case_uuid, er.lender_product_id, lp.lender_name, lp.product_name,
			er.run_id, er.hard_filter_status, er.hard_filter_details, er.eligibility_score,
			er.probability, er.ticket_min, er.ticket_max, er.confidence,
			er.missing_improvement, er.rank, er.created_at
		FROM eligibility_results er
		JOIN lender_products lp ON lp.id = er.lender_product_id
		WHERE er.case_uuid = $1 AND er.run_id = $2::uuid
		ORDER BY er.rank NULLS LAST, lp.lender_name`, caseUUID, runID)
	if err != nil {
		return nil, fmt.Errorf("latest eligibility run: %w", err)
	}
	defer rows.Close()

	var results []core.EligibilityResult
	for rows.Next() {
		var r core.EligibilityResult
		var details, missing []byte
		if err := rows.Scan(&r.ID, &r.CaseUUID, &r.LenderProductID, &r.LenderName,
			&r.ProductName, &r.RunID, &r.HardFilterStatus, &details, &r.EligibilityScore,
			&r.Probability, &r.ExpectedTicketMin, &r.ExpectedTicketMax, &r.Confidence,
			&missing, &r.Rank, &r.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(details, &r.HardFilterDetails)
		json.Unmarshal(missing, &r.MissingImprovement)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ============================================================================
// CASE REPORT OPERATIONS
// ============================================================================

// SaveCaseReport inserts a generated report.
func (s *Store) SaveCaseReport(ctx context.Context, r *core.CaseReport) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.GeneratedAt = time.Now().UTC()
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("marshal report payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO case_reports (id, case_uuid, payload, pdf_key, whatsapp_summary, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.CaseUUID, payload, r.PDFKey, r.WhatsAppSummary, r.GeneratedAt)
	if err != nil {
		return fmt.Errorf("save case report: %w", err)
	}
	return nil
}

// LatestCaseReport returns the newest report for a case, or nil.
func (s *Store) LatestCaseReport(ctx context.Context, caseUUID string) (*core.CaseReport, error) {
	var r core.CaseReport
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, case_uuid, payload, pdf_key, whatsapp_summary, generated_at
		FROM case_reports WHERE case_uuid = $1
		ORDER BY generated_at DESC LIMIT 1`, caseUUID).
		Scan(&r.ID, &r.CaseUUID, &payload, &r.PDFKey, &r.WhatsAppSummary, &r.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest case report: %w", err)
	}
	json.Unmarshal(payload, &r.Payload)
	return &r, nil
}

// ============================================================================
// COPILOT QUERY LOG
// ============================================================================

// InsertCopilotQuery persists one question/answer turn.
func (s *Store) InsertCopilotQuery(ctx context.Context, q *core.CopilotQuery) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.CreatedAt = time.Now().UTC()
	sources, _ := json.Marshal(q.Sources)
	if q.Sources == nil {
		sources = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copilot_queries (id, operator_id, case_uuid, query_text, detected_type, sources, response_text, answer_mode, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9)`,
		q.ID, q.OperatorID, q.CaseUUID, q.QueryText, q.DetectedType, sources, q.ResponseText, q.AnswerMode, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert copilot query: %w", err)
	}
	return nil
}

// RecentCopilotQueries returns the operator's last n turns, newest first.
func (s *Store) RecentCopilotQueries(ctx context.Context, operatorID string, n int) ([]core.CopilotQuery, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operator_id, COALESCE(case_uuid::text, ''), query_text, detected_type, sources, response_text, answer_mode, created_at
		FROM copilot_queries WHERE operator_id = $1
		ORDER BY created_at DESC LIMIT $2`, operatorID, n)
	if err != nil {
		return nil, fmt.Errorf("recent copilot queries: %w", err)
	}
	defer rows.Close()

	var queries []core.CopilotQuery
	for rows.Next() {
		var q core.CopilotQuery
		var sources []byte
		if err := rows.Scan(&q.ID, &q.OperatorID, &q.CaseUUID, &q.QueryText,
			&q.DetectedType, &sources, &q.ResponseText, &q.AnswerMode, &q.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(sources, &q.Sources)
		queries = append(queries, q)
	}
	return queries, rows.Err()
}
