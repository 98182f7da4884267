package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/core"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func reportFixture() (*core.Case, *core.BorrowerFeatures, []core.Document, []core.EligibilityResult) {
	c := &core.Case{
		CaseID:       "CASE-20260815-0007",
		BorrowerName: "Shree Traders",
		ProgramType:  core.ProgramBanking,
	}
	f := &core.BorrowerFeatures{
		EntityType:        "proprietorship",
		PAN:               "ABCPE1234F",
		Pincode:           "411001",
		VintageYears:      floatp(6),
		AnnualTurnover:    floatp(24000000),
		AvgMonthlyBalance: floatp(350000),
		CIBILScore:        intp(762),
		Bounces12M:        intp(4),
		Overdues:          intp(1),
		Completeness:      78,
	}
	docs := []core.Document{
		{DocType: core.DocTypePAN, Status: core.DocExtracted},
		{DocType: core.DocTypeBankStmt, Status: core.DocExtracted},
		{DocType: core.DocTypeCIBILReport, Status: core.DocFailed},
	}
	score1, score2 := 82.0, 64.0
	r1, r2 := 1, 2
	results := []core.EligibilityResult{
		{
			LenderName: "Axis Finance", ProductName: "Business Loan",
			HardFilterStatus: core.FilterPass, EligibilityScore: &score1,
			Probability: core.ProbabilityHigh, Rank: &r1,
			ExpectedTicketMin: floatp(2400000), ExpectedTicketMax: floatp(5000000),
		},
		{
			LenderName: "Bajaj Capital", ProductName: "Flexi Loan",
			HardFilterStatus: core.FilterPass, EligibilityScore: &score2,
			Probability: core.ProbabilityMedium, Rank: &r2,
			ExpectedTicketMin: floatp(2000000), ExpectedTicketMax: floatp(4000000),
			MissingImprovement: []string{"banking"},
		},
		{
			LenderName: "HDFC", ProductName: "SME Loan",
			HardFilterStatus: core.FilterFail, Probability: core.ProbabilityNone,
		},
	}
	return c, f, docs, results
}

func TestBuildReport(t *testing.T) {
	g := NewGenerator()
	c, f, docs, results := reportFixture()

	d := g.Build(c, f, docs, results)

	assert.Equal(t, "CASE-20260815-0007", d.CaseID)
	assert.Equal(t, "Shree Traders", d.Borrower.Name)

	// Checklist covers the banking program template.
	byType := map[core.DocumentType]string{}
	for _, e := range d.Checklist {
		byType[e.DocType] = e.Status
	}
	assert.Equal(t, "present", byType[core.DocTypePAN])
	assert.Equal(t, "present", byType[core.DocTypeBankStmt])
	assert.Equal(t, "unreadable", byType[core.DocTypeCIBILReport])
	assert.Equal(t, "missing", byType[core.DocTypeAadhaar])
	assert.Equal(t, "missing", byType[core.DocTypeITR])

	assert.Equal(t, 3, d.LendersEvaluated)
	assert.Equal(t, 2, d.LendersPassed)

	// FAIL rows never appear among the matches.
	require.Len(t, d.TopMatches, 2)
	assert.Equal(t, "Axis Finance", d.TopMatches[0].LenderName)
	assert.Equal(t, 1, d.TopMatches[0].Rank)

	// bounces >= 3 and overdues > 0 flag as risk
	assert.NotEmpty(t, d.RiskFlags)
	joined := strings.Join(d.RiskFlags, "\n")
	assert.Contains(t, joined, "bounces")
	assert.Contains(t, joined, "overdue")

	assert.Contains(t, strings.Join(d.Strengths, "\n"), "762")

	require.NotEmpty(t, d.Strategy)
	assert.Contains(t, d.Strategy[0], "Axis Finance")

	assert.Contains(t, d.MissingData, "Improvement area: banking")

	require.NotNil(t, d.LoanRangeMin)
	assert.Equal(t, 2000000.0, *d.LoanRangeMin)
	require.NotNil(t, d.LoanRangeMax)
	assert.Equal(t, 5000000.0, *d.LoanRangeMax)
}

func TestBuildReportNoMatches(t *testing.T) {
	g := NewGenerator()
	c, f, docs, _ := reportFixture()

	d := g.Build(c, f, docs, nil)

	assert.Empty(t, d.TopMatches)
	require.NotEmpty(t, d.Strategy)
	assert.Contains(t, d.Strategy[0], "No lender")
	assert.Nil(t, d.LoanRangeMin)
}

func TestRenderPDF(t *testing.T) {
	g := NewGenerator()
	c, f, docs, results := reportFixture()
	d := g.Build(c, f, docs, results)

	pdf, err := RenderPDF(d)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf[:5]), "%PDF-"))
	assert.Greater(t, len(pdf), 1000)
}

func TestWhatsAppSummary(t *testing.T) {
	g := NewGenerator()
	c, f, docs, results := reportFixture()
	d := g.Build(c, f, docs, results)

	msg := WhatsAppSummary(d)
	assert.Contains(t, msg, "CASE-20260815-0007")
	assert.Contains(t, msg, "Axis Finance")
	assert.Contains(t, msg, "proprietorship")
	assert.Contains(t, msg, "6.0 yrs vintage")
	assert.Contains(t, msg, "CIBIL 762")
	assert.Contains(t, msg, "Turnover Rs 2.40 Cr")
	assert.Contains(t, msg, "ABB Rs 3.5 L")
	assert.Contains(t, msg, "Matched 2 of 3 lenders")
	// FAIL row's lender never surfaces
	assert.NotContains(t, msg, "HDFC")
}

func TestWhatsAppSummarySkipsAbsentFigures(t *testing.T) {
	d := &ReportData{
		CaseID:   "CASE-20260815-0008",
		Borrower: BorrowerSnapshot{Name: "New Venture"},
	}
	msg := WhatsAppSummary(d)
	assert.Contains(t, msg, "Matched 0 of 0 lenders")
	assert.NotContains(t, msg, "CIBIL")
	assert.NotContains(t, msg, "ABB")
	assert.Contains(t, msg, "No matching lenders yet")
}

func TestToPayloadRoundTrips(t *testing.T) {
	g := NewGenerator()
	c, f, docs, results := reportFixture()
	d := g.Build(c, f, docs, results)

	payload, err := d.ToPayload()
	require.NoError(t, err)
	assert.Equal(t, "CASE-20260815-0007", payload["case_id"])
	assert.NotNil(t, payload["top_matches"])
}
