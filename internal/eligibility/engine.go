// Package eligibility evaluates a case's feature vector against lender
// product policies in three layers: hard filters, a weighted component
// score, and a dense ranking over the passing products.
package eligibility

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
)

// Engine evaluates lender products for a case.
type Engine struct {
	cfg      config.EligibilityConfig
	pincodes PincodeChecker
	logger   *log.Logger
}

func New(cfg config.EligibilityConfig, pincodes PincodeChecker) *Engine {
	return &Engine{
		cfg:      cfg,
		pincodes: pincodes,
		logger:   log.New(log.Writer(), "[ELIGIBILITY] ", log.LstdFlags),
	}
}

// Evaluate runs all three layers over the given products and returns
// one result row per product, ranked, under a fresh run_id. The caller
// persists the rows atomically.
func (e *Engine) Evaluate(ctx context.Context, caseUUID string, f *core.BorrowerFeatures,
	docTypes map[core.DocumentType]bool, products []core.LenderProduct) ([]core.EligibilityResult, error) {

	runID := uuid.NewString()
	now := time.Now().UTC()
	confidence := f.Completeness / 100

	results := make([]core.EligibilityResult, 0, len(products))
	for i := range products {
		p := &products[i]

		r := core.EligibilityResult{
			ID:              uuid.NewString(),
			CaseUUID:        caseUUID,
			LenderProductID: p.ID,
			LenderName:      p.LenderName,
			ProductName:     p.ProductName,
			RunID:           runID,
			Confidence:      confidence,
			CreatedAt:       now,
		}

		outcome, err := e.runHardFilters(ctx, f, p)
		if err != nil {
			return nil, err
		}
		r.HardFilterDetails = outcome.details

		if outcome.failed > 0 || outcome.skipped > e.cfg.MaxSkippedFilters {
			if outcome.failed == 0 {
				r.HardFilterDetails["_overall"] = "too many filters skipped for missing data"
			}
			r.HardFilterStatus = core.FilterFail
			r.Probability = core.ProbabilityNone
			results = append(results, r)
			continue
		}

		components := e.scoreComponents(f, p, docTypes)
		if len(components) < e.cfg.MinComponents {
			r.HardFilterStatus = core.FilterFail
			r.HardFilterDetails["_overall"] = "insufficient data"
			r.Probability = core.ProbabilityNone
			results = append(results, r)
			continue
		}

		score := weightedScore(components)
		r.HardFilterStatus = core.FilterPass
		r.EligibilityScore = &score
		r.Probability = probabilityFor(score)
		r.ExpectedTicketMin, r.ExpectedTicketMax = ticketRange(f, p, score)
		r.MissingImprovement = improvements(components, p, docTypes)
		results = append(results, r)
	}

	rank(results)

	e.logger.Printf("case %s run %s: %d products evaluated, %d passed",
		caseUUID, runID, len(results), countPassed(results))
	return results, nil
}

func probabilityFor(score float64) core.ApprovalProbability {
	switch {
	case score >= 75:
		return core.ProbabilityHigh
	case score >= 50:
		return core.ProbabilityMedium
	default:
		return core.ProbabilityLow
	}
}

// ticketRange derives the expected loan band from annual turnover,
// capped at the product's max ticket. A strong score stretches the
// upper bound to the full 25% of turnover.
func ticketRange(f *core.BorrowerFeatures, p *core.LenderProduct, score float64) (*float64, *float64) {
	if f.AnnualTurnover == nil || *f.AnnualTurnover <= 0 {
		return nil, nil
	}
	turnover := *f.AnnualTurnover

	lower := 0.10 * turnover
	upperFactor := 0.18
	if score >= 75 {
		upperFactor = 0.25
	}
	upper := upperFactor * turnover

	if p.MaxTicketSize != nil {
		if upper > *p.MaxTicketSize {
			upper = *p.MaxTicketSize
		}
		if lower > *p.MaxTicketSize {
			lower = *p.MaxTicketSize
		}
	}
	return &lower, &upper
}

// improvements lists weak components in descending weight order, then
// the required documents the case has not produced.
func improvements(components []component, p *core.LenderProduct,
	docTypes map[core.DocumentType]bool) []string {

	weak := make([]component, 0, len(components))
	for _, c := range components {
		if c.score < 50 {
			weak = append(weak, c)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].weight > weak[j].weight })

	var out []string
	for _, c := range weak {
		out = append(out, c.name)
	}
	for _, d := range p.RequiredDocuments {
		if !docTypes[d] {
			out = append(out, "document: "+string(d))
		}
	}
	return out
}

// rank assigns a dense 1..k ordering over PASS rows by descending
// score, ties broken by lender name. FAIL rows stay unranked.
func rank(results []core.EligibilityResult) {
	passed := make([]*core.EligibilityResult, 0, len(results))
	for i := range results {
		if results[i].HardFilterStatus == core.FilterPass {
			passed = append(passed, &results[i])
		}
	}
	sort.SliceStable(passed, func(i, j int) bool {
		if *passed[i].EligibilityScore != *passed[j].EligibilityScore {
			return *passed[i].EligibilityScore > *passed[j].EligibilityScore
		}
		return passed[i].LenderName < passed[j].LenderName
	})
	for i, r := range passed {
		pos := i + 1
		r.Rank = &pos
	}
}

func countPassed(results []core.EligibilityResult) int {
	n := 0
	for _, r := range results {
		if r.HardFilterStatus == core.FilterPass {
			n++
		}
	}
	return n
}
