package report

import (
	"fmt"
	"strings"
)

// WhatsAppSummary renders the report as a short plain-text message for
// the intermediary's WhatsApp channel: borrower profile line, match
// counts, top matches, expected range.
func WhatsAppSummary(d *ReportData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Case %s* (%s)\n", d.CaseID, d.Borrower.Name)

	var profile []string
	if d.Borrower.EntityType != "" {
		profile = append(profile, d.Borrower.EntityType)
	}
	if d.Borrower.VintageYears != nil {
		profile = append(profile, fmt.Sprintf("%.1f yrs vintage", *d.Borrower.VintageYears))
	}
	if len(profile) > 0 {
		b.WriteString(strings.Join(profile, ", ") + "\n")
	}

	var figures []string
	if d.Borrower.CIBILScore != nil {
		figures = append(figures, fmt.Sprintf("CIBIL %d", *d.Borrower.CIBILScore))
	}
	if d.Borrower.AnnualTurnover != nil {
		figures = append(figures, "Turnover "+amount(*d.Borrower.AnnualTurnover))
	}
	if d.Borrower.AvgMonthlyBalance != nil {
		figures = append(figures, "ABB "+amount(*d.Borrower.AvgMonthlyBalance))
	}
	if len(figures) > 0 {
		b.WriteString(strings.Join(figures, " | ") + "\n")
	}

	fmt.Fprintf(&b, "Matched %d of %d lenders\n", d.LendersPassed, d.LendersEvaluated)

	if len(d.TopMatches) == 0 {
		b.WriteString("\nNo matching lenders yet. ")
		if len(d.MissingData) > 0 {
			fmt.Fprintf(&b, "Next: %s", d.MissingData[0])
		}
		return b.String()
	}

	b.WriteString("\nTop lenders:\n")
	limit := len(d.TopMatches)
	if limit > 3 {
		limit = 3
	}
	for _, m := range d.TopMatches[:limit] {
		fmt.Fprintf(&b, "%d. %s - %s (%s)\n", m.Rank, m.LenderName, m.ProductName, m.Probability)
	}

	if d.LoanRangeMin != nil && d.LoanRangeMax != nil {
		fmt.Fprintf(&b, "\nExpected range: %s - %s", amount(*d.LoanRangeMin), amount(*d.LoanRangeMax))
	}
	return b.String()
}
