package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
)

type stubPincodes struct {
	serves bool
}

func (s stubPincodes) LenderServesPincode(context.Context, string, string) (bool, error) {
	return s.serves, nil
}

func testConfig() config.EligibilityConfig {
	return config.EligibilityConfig{
		MaxSkippedFilters: 2,
		MinComponents:     3,
		WeightCIBIL:       0.25,
		WeightTurnover:    0.20,
		WeightVintage:     0.15,
		WeightBanking:     0.20,
		WeightFOIR:        0.10,
		WeightDocs:        0.10,
	}
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func strongFeatures() *core.BorrowerFeatures {
	dob := time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC)
	return &core.BorrowerFeatures{
		CaseUUID:          "case-1",
		EntityType:        "proprietorship",
		Pincode:           "411001",
		DOB:               &dob,
		VintageYears:      floatp(6.0),
		AnnualTurnover:    floatp(24000000),
		MonthlyTurnover:   floatp(2000000),
		AvgMonthlyBalance: floatp(400000),
		Bounces12M:        intp(0),
		CashDepositRatio:  floatp(0.1),
		ExistingEMIs:      floatp(100000),
		CIBILScore:        intp(760),
		Completeness:      80,
	}
}

func product() core.LenderProduct {
	return core.LenderProduct{
		ID:                  "prod-1",
		LenderName:          "Axis Finance",
		ProductName:         "Business Loan",
		ProgramType:         core.ProgramBanking,
		IsActive:            true,
		PolicyAvailable:     true,
		MinCIBILScore:       intp(700),
		MinVintageYears:     floatp(2),
		MinTurnoverAnnual:   floatp(6000000),
		MinABB:              floatp(100000),
		AgeMin:              intp(21),
		AgeMax:              intp(65),
		MaxTicketSize:       floatp(5000000),
		EligibleEntityTypes: []string{"proprietorship", "partnership"},
		RequiredDocuments:   []core.DocumentType{core.DocTypePAN, core.DocTypeBankStmt},
		EnforcesGeo:         true,
	}
}

func evaluate(t *testing.T, f *core.BorrowerFeatures, products ...core.LenderProduct) []core.EligibilityResult {
	t.Helper()
	e := New(testConfig(), stubPincodes{serves: true})
	docs := map[core.DocumentType]bool{core.DocTypePAN: true, core.DocTypeBankStmt: true}
	results, err := e.Evaluate(context.Background(), "case-1", f, docs, products)
	require.NoError(t, err)
	return results
}

func TestEvaluateStrongBorrowerPasses(t *testing.T) {
	results := evaluate(t, strongFeatures(), product())
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, core.FilterPass, r.HardFilterStatus)
	require.NotNil(t, r.EligibilityScore)
	assert.Greater(t, *r.EligibilityScore, 75.0)
	assert.Equal(t, core.ProbabilityHigh, r.Probability)
	require.NotNil(t, r.Rank)
	assert.Equal(t, 1, *r.Rank)
	assert.Equal(t, 0.8, r.Confidence)

	// Strong score stretches the upper bound to 25% of turnover,
	// clamped at the product's max ticket.
	require.NotNil(t, r.ExpectedTicketMax)
	assert.Equal(t, 5000000.0, *r.ExpectedTicketMax)
	require.NotNil(t, r.ExpectedTicketMin)
	assert.Equal(t, 2400000.0, *r.ExpectedTicketMin)
}

func TestEvaluateBorderlineCIBIL(t *testing.T) {
	f := strongFeatures()
	f.CIBILScore = intp(700)
	results := evaluate(t, f, product())
	assert.Equal(t, core.FilterPass, results[0].HardFilterStatus)

	f.CIBILScore = intp(699)
	results = evaluate(t, f, product())
	r := results[0]
	assert.Equal(t, core.FilterFail, r.HardFilterStatus)
	assert.Equal(t, "CIBIL 699 < required 700", r.HardFilterDetails["cibil_score"])
	assert.Nil(t, r.EligibilityScore)
	assert.Nil(t, r.Rank)
	assert.Equal(t, core.ProbabilityNone, r.Probability)
}

func TestEvaluateSkippedFiltersWithinBudget(t *testing.T) {
	f := strongFeatures()
	f.CIBILScore = nil
	f.AvgMonthlyBalance = nil

	results := evaluate(t, f, product())
	r := results[0]
	assert.Equal(t, core.FilterPass, r.HardFilterStatus)
	assert.Equal(t, "skipped: data missing", r.HardFilterDetails["cibil_score"])
	assert.Equal(t, "skipped: data missing", r.HardFilterDetails["abb"])
}

func TestEvaluateTooManySkippedFiltersFails(t *testing.T) {
	f := strongFeatures()
	f.CIBILScore = nil
	f.AvgMonthlyBalance = nil
	f.VintageYears = nil

	results := evaluate(t, f, product())
	r := results[0]
	assert.Equal(t, core.FilterFail, r.HardFilterStatus)
	assert.Contains(t, r.HardFilterDetails["_overall"], "skipped")
}

func TestEvaluateInsufficientComponents(t *testing.T) {
	// Only entity, pincode and age data: passes hard filters with two
	// skips, but yields fewer than three scoring components.
	dob := time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC)
	f := &core.BorrowerFeatures{
		CaseUUID:     "case-1",
		EntityType:   "proprietorship",
		Pincode:      "411001",
		DOB:          &dob,
		CIBILScore:   intp(760),
		VintageYears: floatp(6.0),
		Completeness: 30,
	}
	p := product()
	p.MinTurnoverAnnual = nil
	p.MinABB = nil
	p.RequiredDocuments = nil

	results := evaluate(t, f, p)
	r := results[0]
	assert.Equal(t, core.FilterFail, r.HardFilterStatus)
	assert.Equal(t, "insufficient data", r.HardFilterDetails["_overall"])
}

func TestEvaluateRankingOrderAndTies(t *testing.T) {
	f := strongFeatures()

	strong := product()
	weakCIBIL := product()
	weakCIBIL.ID = "prod-2"
	weakCIBIL.LenderName = "Bajaj Capital"
	weakCIBIL.MinTurnoverAnnual = floatp(20000000) // ratio ~1.2 lowers its turnover band

	tied := product()
	tied.ID = "prod-3"
	tied.LenderName = "Aditya Birla" // same thresholds as strong, sorts first on tie

	results := evaluate(t, f, strong, weakCIBIL, tied)
	require.Len(t, results, 3)

	byLender := map[string]core.EligibilityResult{}
	for _, r := range results {
		byLender[r.LenderName] = r
	}

	assert.Equal(t, 1, *byLender["Aditya Birla"].Rank)
	assert.Equal(t, 2, *byLender["Axis Finance"].Rank)
	assert.Equal(t, 3, *byLender["Bajaj Capital"].Rank)

	// All rows carry the same run id.
	run := results[0].RunID
	for _, r := range results {
		assert.Equal(t, run, r.RunID)
	}
}

func TestEvaluateRenormalizesMissingComponents(t *testing.T) {
	// Only CIBIL, vintage and documentation available: 760 → 100,
	// 6y → 100, both required docs present → 100. Weighted average of
	// all-100 components is 100 regardless of renormalization.
	f := strongFeatures()
	f.AnnualTurnover = nil
	f.MonthlyTurnover = nil
	f.AvgMonthlyBalance = nil
	f.Bounces12M = nil
	f.CashDepositRatio = nil
	f.ExistingEMIs = nil

	p := product()
	p.MinTurnoverAnnual = nil
	p.MinABB = nil

	results := evaluate(t, f, p)
	r := results[0]
	require.Equal(t, core.FilterPass, r.HardFilterStatus)
	require.NotNil(t, r.EligibilityScore)
	assert.Equal(t, 100.0, *r.EligibilityScore)
}

func TestEvaluateMissingImprovementListsWeakComponents(t *testing.T) {
	f := strongFeatures()
	f.CIBILScore = intp(655) // band 40
	f.Bounces12M = intp(5)   // drags banking down

	p := product()
	p.MinCIBILScore = intp(650)
	p.RequiredDocuments = []core.DocumentType{core.DocTypePAN, core.DocTypeCIBILReport}

	e := New(testConfig(), stubPincodes{serves: true})
	docs := map[core.DocumentType]bool{core.DocTypePAN: true}
	results, err := e.Evaluate(context.Background(), "case-1", f, docs, []core.LenderProduct{p})
	require.NoError(t, err)

	r := results[0]
	require.Equal(t, core.FilterPass, r.HardFilterStatus)
	assert.Contains(t, r.MissingImprovement, "cibil")
	assert.Contains(t, r.MissingImprovement, "document: CIBIL_REPORT")
}

func TestBands(t *testing.T) {
	assert.Equal(t, 100.0, cibilBand(750))
	assert.Equal(t, 90.0, cibilBand(749))
	assert.Equal(t, 75.0, cibilBand(700))
	assert.Equal(t, 60.0, cibilBand(699))
	assert.Equal(t, 20.0, cibilBand(600))

	assert.Equal(t, 100.0, turnoverBand(3.1))
	assert.Equal(t, 80.0, turnoverBand(2.0))
	assert.Equal(t, 60.0, turnoverBand(1.5))
	assert.Equal(t, 40.0, turnoverBand(1.0))

	assert.Equal(t, 100.0, vintageBand(5))
	assert.Equal(t, 80.0, vintageBand(3))
	assert.Equal(t, 20.0, vintageBand(0.5))

	assert.Equal(t, 100.0, bounceBand(0))
	assert.Equal(t, 70.0, bounceBand(2))
	assert.Equal(t, 30.0, bounceBand(3))
}

func TestFOIRBands(t *testing.T) {
	f := strongFeatures() // EMIs 100000 against monthly 2000000 = 5%
	s, ok := foirScore(f)
	require.True(t, ok)
	assert.Equal(t, 100.0, s)

	f.ExistingEMIs = floatp(1000000) // 50%
	s, _ = foirScore(f)
	assert.Equal(t, 50.0, s)

	f.ExistingEMIs = floatp(1400000) // 70%
	s, _ = foirScore(f)
	assert.Equal(t, 0.0, s)

	// Annual falls back to /12 when no monthly figure exists.
	f.MonthlyTurnover = nil
	f.ExistingEMIs = floatp(500000) // 500000 / (24000000/12) = 25%
	s, _ = foirScore(f)
	assert.Equal(t, 100.0, s)
}
