package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RenderPDF lays the report out as an A4 document. Section order is
// fixed: header, borrower snapshot, checklist, strengths, risk flags,
// lender matches, strategy, advisory.
func RenderPDF(d *ReportData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Case Report "+d.CaseID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Loan Case Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s  |  program: %s  |  generated %s",
		d.CaseID, d.ProgramType, d.GeneratedAt.Format("02 Jan 2006 15:04 MST")),
		"", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Borrower")
	row(pdf, "Name", d.Borrower.Name)
	row(pdf, "Entity type", orDash(d.Borrower.EntityType))
	row(pdf, "PAN", orDash(d.Borrower.PAN))
	row(pdf, "GSTIN", orDash(d.Borrower.GSTIN))
	row(pdf, "Pincode", orDash(d.Borrower.Pincode))
	if d.Borrower.VintageYears != nil {
		row(pdf, "Business vintage", fmt.Sprintf("%.1f years", *d.Borrower.VintageYears))
	}
	if d.Borrower.AnnualTurnover != nil {
		row(pdf, "Annual turnover", amount(*d.Borrower.AnnualTurnover))
	}
	if d.Borrower.AvgMonthlyBalance != nil {
		row(pdf, "Avg monthly balance", amount(*d.Borrower.AvgMonthlyBalance))
	}
	if d.Borrower.CIBILScore != nil {
		row(pdf, "CIBIL score", fmt.Sprintf("%d", *d.Borrower.CIBILScore))
	}
	row(pdf, "Data completeness", fmt.Sprintf("%.0f%%", d.Borrower.Completeness))
	pdf.Ln(3)

	section(pdf, "Document Checklist")
	for _, e := range d.Checklist {
		row(pdf, string(e.DocType), e.Status)
	}
	pdf.Ln(3)

	section(pdf, "Strengths")
	bullets(pdf, d.Strengths, "None identified.")
	section(pdf, "Risk Flags")
	bullets(pdf, d.RiskFlags, "None identified.")

	section(pdf, "Lender Matches")
	row(pdf, "Evaluated / passed", fmt.Sprintf("%d / %d", d.LendersEvaluated, d.LendersPassed))
	if len(d.TopMatches) == 0 {
		bullets(pdf, nil, "No lender passed the hard filters.")
	} else {
		for _, m := range d.TopMatches {
			line := fmt.Sprintf("#%d  %s - %s   score %.0f   %s",
				m.Rank, m.LenderName, m.ProductName, m.Score, m.Probability)
			if m.TicketMin != nil && m.TicketMax != nil {
				line += fmt.Sprintf("   ticket %s-%s", amount(*m.TicketMin), amount(*m.TicketMax))
			}
			pdf.SetFont("Helvetica", "", 10)
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
		pdf.Ln(3)
	}

	section(pdf, "Submission Strategy")
	bullets(pdf, d.Strategy, "")
	section(pdf, "Missing Data Advisory")
	bullets(pdf, d.MissingData, "Nothing outstanding.")

	if d.LoanRangeMin != nil && d.LoanRangeMax != nil {
		section(pdf, "Expected Loan Range")
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s - %s", amount(*d.LoanRangeMin), amount(*d.LoanRangeMax)),
			"", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func row(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(55, 6, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func bullets(pdf *gofpdf.Fpdf, items []string, empty string) {
	pdf.SetFont("Helvetica", "", 10)
	if len(items) == 0 {
		if empty != "" {
			pdf.CellFormat(0, 6, empty, "", 1, "L", false, 0, "")
		}
		pdf.Ln(2)
		return
	}
	for _, it := range items {
		pdf.MultiCell(0, 6, "- "+it, "", "L", false)
	}
	pdf.Ln(2)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// amount renders rupee amounts compactly in lakh/crore units.
func amount(v float64) string {
	switch {
	case v >= 1e7:
		return fmt.Sprintf("Rs %.2f Cr", v/1e7)
	case v >= 1e5:
		return fmt.Sprintf("Rs %.1f L", v/1e5)
	default:
		return fmt.Sprintf("Rs %.0f", v)
	}
}
