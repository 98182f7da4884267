package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lendflow/backend/internal/core"
)

// ============================================================================
// LENDER REFERENCE DATA
// ============================================================================
// Lender products and pincodes are read-mostly process-wide reference
// data. Mutation happens only through ReplaceLenderData (staged swap).

// ReplaceLenderData swaps the full lender reference set inside one
// transaction so readers never observe a half-loaded catalogue.
func (s *Store) ReplaceLenderData(ctx context.Context, products []core.LenderProduct, pincodes map[string][]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM lender_pincodes`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lender_products`); err != nil {
			return err
		}

		for i := range products {
			p := &products[i]
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			entities, _ := json.Marshal(p.EligibleEntityTypes)
			docs, _ := json.Marshal(p.RequiredDocuments)
			_, err := tx.ExecContext(ctx, `
				INSERT INTO lender_products (id, lender_name, product_name, program_type,
					is_active, policy_available, min_cibil_score, min_vintage_years,
					min_turnover_annual, min_abb, age_min, age_max, max_ticket_size,
					max_dpd_30plus, eligible_entity_types, required_documents, enforces_geo)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
				p.ID, p.LenderName, p.ProductName, p.ProgramType,
				p.IsActive, p.PolicyAvailable, p.MinCIBILScore, p.MinVintageYears,
				p.MinTurnoverAnnual, p.MinABB, p.AgeMin, p.AgeMax, p.MaxTicketSize,
				p.MaxDPD30Plus, entities, docs, p.EnforcesGeo)
			if err != nil {
				return fmt.Errorf("insert lender product %s/%s: %w", p.LenderName, p.ProductName, err)
			}

			for _, pin := range pincodes[p.LenderName+"/"+p.ProductName] {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO lender_pincodes (lender_product_id, pincode) VALUES ($1, $2)
					ON CONFLICT DO NOTHING`, p.ID, pin); err != nil {
					return fmt.Errorf("insert lender pincode: %w", err)
				}
			}
		}
		return nil
	})
}

const lenderColumns = `id, lender_name, product_name, program_type, is_active,
	policy_available, min_cibil_score, min_vintage_years, min_turnover_annual,
	min_abb, age_min, age_max, max_ticket_size, max_dpd_30plus,
	eligible_entity_types, required_documents, enforces_geo`

func scanLender(row interface{ Scan(...interface{}) error }) (*core.LenderProduct, error) {
	var p core.LenderProduct
	var entities, docs []byte
	err := row.Scan(&p.ID, &p.LenderName, &p.ProductName, &p.ProgramType,
		&p.IsActive, &p.PolicyAvailable, &p.MinCIBILScore, &p.MinVintageYears,
		&p.MinTurnoverAnnual, &p.MinABB, &p.AgeMin, &p.AgeMax, &p.MaxTicketSize,
		&p.MaxDPD30Plus, &entities, &docs, &p.EnforcesGeo)
	if err != nil {
		return nil, err
	}
	json.Unmarshal(entities, &p.EligibleEntityTypes)
	json.Unmarshal(docs, &p.RequiredDocuments)
	return &p, nil
}

func collectLenders(rows *sql.Rows) ([]*core.LenderProduct, error) {
	defer rows.Close()
	var products []*core.LenderProduct
	for rows.Next() {
		p, err := scanLender(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListActiveLenderProducts returns products with is_active AND
// policy_available, optionally narrowed to a program type. Both flags
// are required for a product to enter any eligibility run.
func (s *Store) ListActiveLenderProducts(ctx context.Context, program core.ProgramType) ([]*core.LenderProduct, error) {
	query := `SELECT ` + lenderColumns + ` FROM lender_products
		WHERE is_active AND policy_available`
	args := []interface{}{}
	if program != "" && program != core.ProgramHybrid {
		query += ` AND (program_type = $1 OR program_type = 'hybrid')`
		args = append(args, program)
	}
	query += ` ORDER BY lender_name, product_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active lender products: %w", err)
	}
	return collectLenders(rows)
}

// LenderServesPincode reports whether a geo-restricted product covers
// the given pincode.
func (s *Store) LenderServesPincode(ctx context.Context, lenderProductID, pincode string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lender_pincodes
		WHERE lender_product_id = $1 AND pincode = $2`, lenderProductID, pincode).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("pincode lookup: %w", err)
	}
	return n > 0, nil
}

// ============================================================================
// COPILOT RETRIEVAL QUERIES
// ============================================================================
// Parameterized lookups against the lender tables. No row limit is
// imposed: the catalogue is small and answers should see all matches.

// LendersByMinCIBIL returns products whose CIBIL floor is at or below
// the given score.
func (s *Store) LendersByMinCIBIL(ctx context.Context, score int) ([]*core.LenderProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lenderColumns+` FROM lender_products
		WHERE is_active AND policy_available
			AND (min_cibil_score IS NULL OR min_cibil_score <= $1)
		ORDER BY COALESCE(min_cibil_score, 0)`, score)
	if err != nil {
		return nil, fmt.Errorf("lenders by cibil: %w", err)
	}
	return collectLenders(rows)
}

// LendersByPincode returns products serviceable at a pincode, including
// products that do not enforce geography.
func (s *Store) LendersByPincode(ctx context.Context, pincode string) ([]*core.LenderProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lenderColumns+` FROM lender_products lp
		WHERE is_active AND policy_available AND (
			NOT enforces_geo OR EXISTS (
				SELECT 1 FROM lender_pincodes pin
				WHERE pin.lender_product_id = lp.id AND pin.pincode = $1))
		ORDER BY lender_name`, pincode)
	if err != nil {
		return nil, fmt.Errorf("lenders by pincode: %w", err)
	}
	return collectLenders(rows)
}

// LendersByName returns products whose lender name matches the given
// fragment, case-insensitively.
func (s *Store) LendersByName(ctx context.Context, name string) ([]*core.LenderProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lenderColumns+` FROM lender_products
		WHERE is_active AND policy_available AND lender_name ILIKE '%' || $1 || '%'
		ORDER BY lender_name, product_name`, name)
	if err != nil {
		return nil, fmt.Errorf("lenders by name: %w", err)
	}
	return collectLenders(rows)
}

// LendersByEntityType returns products accepting the given entity type.
func (s *Store) LendersByEntityType(ctx context.Context, entityType string) ([]*core.LenderProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lenderColumns+` FROM lender_products
		WHERE is_active AND policy_available
			AND eligible_entity_types @> to_jsonb(ARRAY[$1::text])
		ORDER BY lender_name`, entityType)
	if err != nil {
		return nil, fmt.Errorf("lenders by entity type: %w", err)
	}
	return collectLenders(rows)
}
