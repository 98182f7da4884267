// Package database is the relational store for all case-processing
// entities. One Store handle is constructed at process start and passed
// explicitly to every component; there are no package-level singletons.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/lendflow/backend/internal/config"
)

// Store wraps the Postgres connection pool with typed operations for
// every table. All multi-row updates run inside transactions.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres, verifies connectivity, and ensures the
// schema exists.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema bootstrap: %w", err)
	}
	return s, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity (used by /health).
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// withTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ensureSchema creates all tables and indexes if absent. The schema is
// additive only; destructive migrations go through ops tooling.
func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS case_counters (
			day        DATE PRIMARY KEY,
			counter    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
			uuid            UUID PRIMARY KEY,
			case_id         TEXT UNIQUE NOT NULL,
			operator_id     TEXT NOT NULL,
			borrower_name   TEXT NOT NULL DEFAULT '',
			program_type    TEXT NOT NULL DEFAULT 'hybrid',
			status          TEXT NOT NULL DEFAULT 'CREATED',
			overrides       JSONB NOT NULL DEFAULT '{}',
			gstin           TEXT NOT NULL DEFAULT '',
			address         TEXT NOT NULL DEFAULT '',
			entity_type     TEXT NOT NULL DEFAULT '',
			pincode         TEXT NOT NULL DEFAULT '',
			vintage_years   DOUBLE PRECISION NOT NULL DEFAULT 0,
			annual_turnover DOUBLE PRECISION NOT NULL DEFAULT 0,
			gstin_profile   JSONB,
			deleted         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_operator ON cases(operator_id) WHERE NOT deleted`,
		`CREATE TABLE IF NOT EXISTS documents (
			id              UUID PRIMARY KEY,
			case_uuid       UUID NOT NULL REFERENCES cases(uuid),
			storage_key     TEXT NOT NULL,
			filename        TEXT NOT NULL,
			content_hash    TEXT NOT NULL,
			size_bytes      BIGINT NOT NULL,
			extension       TEXT NOT NULL,
			doc_type        TEXT,
			confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
			classify_method TEXT NOT NULL DEFAULT '',
			ocr_text        TEXT,
			page_count      INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'UPLOADED',
			failure_reason  TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (case_uuid, content_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_case ON documents(case_uuid)`,
		`CREATE TABLE IF NOT EXISTS extracted_fields (
			id          UUID PRIMARY KEY,
			case_uuid   UUID NOT NULL REFERENCES cases(uuid),
			document_id UUID,
			field_name  TEXT NOT NULL,
			field_value TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL,
			source      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fields_case ON extracted_fields(case_uuid)`,
		`CREATE TABLE IF NOT EXISTS borrower_features (
			case_uuid  UUID PRIMARY KEY REFERENCES cases(uuid),
			features   JSONB NOT NULL,
			completeness DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS lender_products (
			id                  UUID PRIMARY KEY,
			lender_name         TEXT NOT NULL,
			product_name        TEXT NOT NULL,
			program_type        TEXT NOT NULL,
			is_active           BOOLEAN NOT NULL DEFAULT TRUE,
			policy_available    BOOLEAN NOT NULL DEFAULT TRUE,
			min_cibil_score     INTEGER,
			min_vintage_years   DOUBLE PRECISION,
			min_turnover_annual DOUBLE PRECISION,
			min_abb             DOUBLE PRECISION,
			age_min             INTEGER,
			age_max             INTEGER,
			max_ticket_size     DOUBLE PRECISION,
			max_dpd_30plus      INTEGER,
			eligible_entity_types JSONB NOT NULL DEFAULT '[]',
			required_documents  JSONB NOT NULL DEFAULT '[]',
			enforces_geo        BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (lender_name, product_name)
		)`,
		`CREATE TABLE IF NOT EXISTS lender_pincodes (
			lender_product_id UUID NOT NULL REFERENCES lender_products(id) ON DELETE CASCADE,
			pincode           TEXT NOT NULL,
			PRIMARY KEY (lender_product_id, pincode)
		)`,
		`CREATE TABLE IF NOT EXISTS eligibility_results (
			id                  UUID PRIMARY KEY,
			case_uuid           UUID NOT NULL REFERENCES cases(uuid),
			lender_product_id   UUID NOT NULL,
			run_id              UUID NOT NULL,
			hard_filter_status  TEXT NOT NULL,
			hard_filter_details JSONB NOT NULL DEFAULT '{}',
			eligibility_score   DOUBLE PRECISION,
			probability         TEXT NOT NULL,
			ticket_min          DOUBLE PRECISION,
			ticket_max          DOUBLE PRECISION,
			confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
			missing_improvement JSONB NOT NULL DEFAULT '[]',
			rank                INTEGER,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_case_run ON eligibility_results(case_uuid, run_id)`,
		`CREATE TABLE IF NOT EXISTS case_reports (
			id          UUID PRIMARY KEY,
			case_uuid   UUID NOT NULL REFERENCES cases(uuid),
			payload     JSONB NOT NULL,
			pdf_key     TEXT NOT NULL,
			whatsapp_summary TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_case ON case_reports(case_uuid, generated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS copilot_queries (
			id            UUID PRIMARY KEY,
			operator_id   TEXT NOT NULL,
			case_uuid     UUID,
			query_text    TEXT NOT NULL,
			detected_type TEXT NOT NULL,
			sources       JSONB NOT NULL DEFAULT '[]',
			response_text TEXT NOT NULL,
			answer_mode   TEXT NOT NULL DEFAULT 'template',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_copilot_operator ON copilot_queries(operator_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id         UUID PRIMARY KEY,
			kind       TEXT NOT NULL,
			case_uuid  UUID NOT NULL,
			payload    JSONB NOT NULL DEFAULT '{}',
			attempts   INTEGER NOT NULL DEFAULT 0,
			state      TEXT NOT NULL DEFAULT 'queued',
			last_error TEXT NOT NULL DEFAULT '',
			not_before TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_poll ON jobs(state, not_before)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_case ON jobs(case_uuid)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
