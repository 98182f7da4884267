// Package report turns a scored case into its operator-facing
// artifacts: a structured payload, a PDF, and a WhatsApp summary.
// Generation is deterministic for the same inputs.
package report

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/lendflow/backend/internal/core"
)

// expectedDocuments lists the checklist per program type.
var expectedDocuments = map[core.ProgramType][]core.DocumentType{
	core.ProgramBanking: {
		core.DocTypePAN, core.DocTypeAadhaar, core.DocTypeBankStmt,
		core.DocTypeCIBILReport, core.DocTypeITR,
	},
	core.ProgramGST: {
		core.DocTypePAN, core.DocTypeAadhaar, core.DocTypeGSTCert,
		core.DocTypeGSTReturns, core.DocTypeCIBILReport,
	},
	core.ProgramHybrid: {
		core.DocTypePAN, core.DocTypeAadhaar, core.DocTypeBankStmt,
		core.DocTypeGSTCert, core.DocTypeGSTReturns, core.DocTypeCIBILReport,
		core.DocTypeITR,
	},
}

// ExpectedDocuments returns the checklist template for a program.
func ExpectedDocuments(program core.ProgramType) []core.DocumentType {
	if docs, ok := expectedDocuments[program]; ok {
		return docs
	}
	return expectedDocuments[core.ProgramHybrid]
}

// ChecklistEntry is one row of the document checklist.
type ChecklistEntry struct {
	DocType core.DocumentType `json:"doc_type"`
	Status  string            `json:"status"` // present | missing | unreadable
}

// LenderMatch is a ranked PASS row condensed for presentation.
type LenderMatch struct {
	Rank        int                      `json:"rank"`
	LenderName  string                   `json:"lender_name"`
	ProductName string                   `json:"product_name"`
	Score       float64                  `json:"score"`
	Probability core.ApprovalProbability `json:"approval_probability"`
	TicketMin   *float64                 `json:"expected_ticket_min,omitempty"`
	TicketMax   *float64                 `json:"expected_ticket_max,omitempty"`
}

// BorrowerSnapshot is the feature vector flattened for display.
type BorrowerSnapshot struct {
	Name              string   `json:"name"`
	EntityType        string   `json:"entity_type,omitempty"`
	PAN               string   `json:"pan,omitempty"`
	GSTIN             string   `json:"gstin,omitempty"`
	Pincode           string   `json:"pincode,omitempty"`
	VintageYears      *float64 `json:"vintage_years,omitempty"`
	AnnualTurnover    *float64 `json:"annual_turnover,omitempty"`
	AvgMonthlyBalance *float64 `json:"avg_monthly_balance,omitempty"`
	CIBILScore        *int     `json:"cibil_score,omitempty"`
	Completeness      float64  `json:"feature_completeness"`
}

// ReportData is the full structured report payload.
type ReportData struct {
	CaseID           string           `json:"case_id"`
	ProgramType      core.ProgramType `json:"program_type"`
	GeneratedAt      time.Time        `json:"generated_at"`
	Borrower         BorrowerSnapshot `json:"borrower"`
	Checklist        []ChecklistEntry `json:"checklist"`
	Strengths        []string         `json:"strengths"`
	RiskFlags        []string         `json:"risk_flags"`
	TopMatches       []LenderMatch    `json:"top_matches"`
	LendersEvaluated int              `json:"lenders_evaluated"`
	LendersPassed    int              `json:"lenders_passed"`
	Strategy         []string         `json:"submission_strategy"`
	MissingData      []string         `json:"missing_data_advisory"`
	LoanRangeMin     *float64         `json:"loan_range_min,omitempty"`
	LoanRangeMax     *float64         `json:"loan_range_max,omitempty"`
}

// ToPayload converts the report into the JSONB shape stored with the
// case report row.
func (d *ReportData) ToPayload() (map[string]interface{}, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Generator assembles report data from pipeline outputs.
type Generator struct {
	logger *log.Logger
}

func NewGenerator() *Generator {
	return &Generator{logger: log.New(log.Writer(), "[REPORT] ", log.LstdFlags)}
}

const maxTopMatches = 5

// Build assembles the report payload for a scored case.
func (g *Generator) Build(c *core.Case, f *core.BorrowerFeatures,
	docs []core.Document, results []core.EligibilityResult) *ReportData {

	d := &ReportData{
		CaseID:      c.CaseID,
		ProgramType: c.ProgramType,
		GeneratedAt: time.Now().UTC(),
		Borrower: BorrowerSnapshot{
			Name:              c.BorrowerName,
			EntityType:        f.EntityType,
			PAN:               f.PAN,
			GSTIN:             f.GSTIN,
			Pincode:           f.Pincode,
			VintageYears:      f.VintageYears,
			AnnualTurnover:    f.AnnualTurnover,
			AvgMonthlyBalance: f.AvgMonthlyBalance,
			CIBILScore:        f.CIBILScore,
			Completeness:      f.Completeness,
		},
		Checklist:        buildChecklist(c.ProgramType, docs),
		Strengths:        strengths(f),
		RiskFlags:        riskFlags(f),
		TopMatches:       topMatches(results),
		LendersEvaluated: len(results),
		MissingData:      missingData(f, results),
	}
	for _, r := range results {
		if r.HardFilterStatus == core.FilterPass {
			d.LendersPassed++
		}
	}
	d.Strategy = strategy(d.TopMatches)
	d.LoanRangeMin, d.LoanRangeMax = loanRange(d.TopMatches)

	g.logger.Printf("case %s: %d matches, %d risk flags", c.CaseID, len(d.TopMatches), len(d.RiskFlags))
	return d
}

func buildChecklist(program core.ProgramType, docs []core.Document) []ChecklistEntry {
	status := map[core.DocumentType]string{}
	for _, doc := range docs {
		switch doc.Status {
		case core.DocFailed:
			if status[doc.DocType] == "" {
				status[doc.DocType] = "unreadable"
			}
		case core.DocExtracted, core.DocClassified:
			status[doc.DocType] = "present"
		}
	}

	expected := ExpectedDocuments(program)
	out := make([]ChecklistEntry, 0, len(expected))
	for _, dt := range expected {
		st := status[dt]
		if st == "" {
			st = "missing"
		}
		out = append(out, ChecklistEntry{DocType: dt, Status: st})
	}
	return out
}

func strengths(f *core.BorrowerFeatures) []string {
	var out []string
	if f.CIBILScore != nil && *f.CIBILScore >= 750 {
		out = append(out, fmt.Sprintf("Excellent credit score (%d)", *f.CIBILScore))
	} else if f.CIBILScore != nil && *f.CIBILScore >= 700 {
		out = append(out, fmt.Sprintf("Good credit score (%d)", *f.CIBILScore))
	}
	if f.VintageYears != nil && *f.VintageYears >= 5 {
		out = append(out, fmt.Sprintf("Established business (%.0f years)", *f.VintageYears))
	}
	if f.Bounces12M != nil && *f.Bounces12M == 0 {
		out = append(out, "Clean banking record, no bounces in 12 months")
	}
	if f.CashDepositRatio != nil && *f.CashDepositRatio < 0.20 {
		out = append(out, "Predominantly digital receipts")
	}
	if f.Overdues != nil && *f.Overdues == 0 {
		out = append(out, "No overdue credit accounts")
	}
	return out
}

func riskFlags(f *core.BorrowerFeatures) []string {
	var out []string
	if f.Bounces12M != nil && *f.Bounces12M >= 3 {
		out = append(out, fmt.Sprintf("%d cheque/ECS bounces in the last 12 months", *f.Bounces12M))
	}
	if f.CashDepositRatio != nil && *f.CashDepositRatio > 0.40 {
		out = append(out, fmt.Sprintf("High cash deposit ratio (%.0f%%)", *f.CashDepositRatio*100))
	}
	if f.Overdues != nil && *f.Overdues > 0 {
		out = append(out, fmt.Sprintf("%d overdue credit accounts", *f.Overdues))
	}
	if f.CIBILScore != nil && *f.CIBILScore < 650 {
		out = append(out, fmt.Sprintf("Weak credit score (%d)", *f.CIBILScore))
	}
	if f.Enquiries12M != nil && *f.Enquiries12M >= 6 {
		out = append(out, fmt.Sprintf("High enquiry count (%d in 12 months)", *f.Enquiries12M))
	}
	return out
}

func topMatches(results []core.EligibilityResult) []LenderMatch {
	ranked := make([]core.EligibilityResult, 0, len(results))
	for _, r := range results {
		if r.HardFilterStatus == core.FilterPass && r.Rank != nil {
			ranked = append(ranked, r)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return *ranked[i].Rank < *ranked[j].Rank })
	if len(ranked) > maxTopMatches {
		ranked = ranked[:maxTopMatches]
	}

	out := make([]LenderMatch, 0, len(ranked))
	for _, r := range ranked {
		m := LenderMatch{
			Rank:        *r.Rank,
			LenderName:  r.LenderName,
			ProductName: r.ProductName,
			Probability: r.Probability,
			TicketMin:   r.ExpectedTicketMin,
			TicketMax:   r.ExpectedTicketMax,
		}
		if r.EligibilityScore != nil {
			m.Score = *r.EligibilityScore
		}
		out = append(out, m)
	}
	return out
}

func strategy(matches []LenderMatch) []string {
	if len(matches) == 0 {
		return []string{"No lender currently matches this profile. Address the missing data advisory and re-run eligibility."}
	}
	var out []string
	first := matches[0]
	out = append(out, fmt.Sprintf("File with %s (%s) first: rank 1, %s approval probability.",
		first.LenderName, first.ProductName, first.Probability))
	for _, m := range matches[1:] {
		out = append(out, fmt.Sprintf("Keep %s (%s) as a parallel option (rank %d, %s).",
			m.LenderName, m.ProductName, m.Rank, m.Probability))
	}
	return out
}

// missingData merges the weak-component advisories across the passed
// lenders into one deduplicated, stably ordered list.
func missingData(f *core.BorrowerFeatures, results []core.EligibilityResult) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	if f.CIBILScore == nil {
		add("No credit bureau report on file")
	}
	if f.AnnualTurnover == nil {
		add("No turnover figure established")
	}
	if f.AvgMonthlyBalance == nil {
		add("No bank statement analysis available")
	}

	var keys []string
	collected := map[string]bool{}
	for _, r := range results {
		for _, m := range r.MissingImprovement {
			if !collected[m] {
				collected[m] = true
				keys = append(keys, m)
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add("Improvement area: " + k)
	}
	return out
}

func loanRange(matches []LenderMatch) (*float64, *float64) {
	var lo, hi *float64
	for _, m := range matches {
		if m.TicketMin != nil && (lo == nil || *m.TicketMin < *lo) {
			v := *m.TicketMin
			lo = &v
		}
		if m.TicketMax != nil && (hi == nil || *m.TicketMax > *hi) {
			v := *m.TicketMax
			hi = &v
		}
	}
	return lo, hi
}
