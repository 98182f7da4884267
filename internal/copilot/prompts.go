package copilot

import (
	"fmt"
	"strings"

	"github.com/lendflow/backend/internal/core"
)

const systemPrompt = `You are a lending operations assistant for credit intermediaries in India.
You answer questions about lender selection, product policies and borrower eligibility.
Ground every claim in the lender data provided in the conversation; when the data does not
cover the question, say so plainly. Amounts are in INR. Keep answers under 150 words,
practical and direct. Never invent lender names, thresholds or approval promises.`

// buildMessages assembles the completion conversation: system prompt,
// retrieved context, prior turns oldest first, then the new question.
func buildMessages(r *retrieval, history []core.CopilotQuery, query string) []Message {
	msgs := []Message{{Role: "system", Content: systemPrompt}}

	if ctx := contextBlock(r); ctx != "" {
		msgs = append(msgs, Message{Role: "system", Content: ctx})
	}

	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		msgs = append(msgs,
			Message{Role: "user", Content: h.QueryText},
			Message{Role: "assistant", Content: h.ResponseText})
	}

	msgs = append(msgs, Message{Role: "user", Content: query})
	return msgs
}

// contextBlock renders retrieved lender rows and case features as a
// compact data block for the model.
func contextBlock(r *retrieval) string {
	if r == nil {
		return ""
	}
	var b strings.Builder

	if r.features != nil {
		b.WriteString("Borrower profile:\n")
		f := r.features
		if f.CIBILScore != nil {
			fmt.Fprintf(&b, "- CIBIL: %d\n", *f.CIBILScore)
		}
		if f.EntityType != "" {
			fmt.Fprintf(&b, "- entity: %s\n", f.EntityType)
		}
		if f.VintageYears != nil {
			fmt.Fprintf(&b, "- vintage: %.1f years\n", *f.VintageYears)
		}
		if f.AnnualTurnover != nil {
			fmt.Fprintf(&b, "- annual turnover: %.0f\n", *f.AnnualTurnover)
		}
		if f.Pincode != "" {
			fmt.Fprintf(&b, "- pincode: %s\n", f.Pincode)
		}
		b.WriteString("\n")
	}

	if len(r.products) > 0 {
		b.WriteString("Matching lender products:\n")
		for _, p := range r.products {
			fmt.Fprintf(&b, "- %s / %s (%s)", p.LenderName, p.ProductName, p.ProgramType)
			var parts []string
			if p.MinCIBILScore != nil {
				parts = append(parts, fmt.Sprintf("min CIBIL %d", *p.MinCIBILScore))
			}
			if p.MinVintageYears != nil {
				parts = append(parts, fmt.Sprintf("min vintage %.1fy", *p.MinVintageYears))
			}
			if p.MinTurnoverAnnual != nil {
				parts = append(parts, fmt.Sprintf("min turnover %.0f", *p.MinTurnoverAnnual))
			}
			if p.MaxTicketSize != nil {
				parts = append(parts, fmt.Sprintf("max ticket %.0f", *p.MaxTicketSize))
			}
			if len(p.EligibleEntityTypes) > 0 {
				parts = append(parts, "entities: "+strings.Join(p.EligibleEntityTypes, "/"))
			}
			if len(parts) > 0 {
				b.WriteString(": " + strings.Join(parts, ", "))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
