package copilot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lendflow/backend/internal/core"
)

// fallbackAnswer renders a template answer straight from the retrieved
// rows when no completion endpoint is configured or it is unreachable.
func fallbackAnswer(qtype core.CopilotQueryType, query string, r *retrieval) string {
	if qtype == core.QueryKnowledge {
		if _, def, ok := lookupGlossary(normalizeQuery(query)); ok {
			return def
		}
		return "That term is not in the policy glossary and no language model is available to explain it. " +
			"Try rephrasing as a policy question, for example: " +
			"\"which lenders accept CIBIL 700\", " +
			"\"minimum turnover for a business loan\", or " +
			"\"documents required for the GST program\"."
	}

	if r == nil || len(r.products) == 0 {
		return "No lender products match that query in the current policy data."
	}

	products := append([]*core.LenderProduct(nil), r.products...)
	sort.Slice(products, func(i, j int) bool {
		return products[i].LenderName < products[j].LenderName
	})
	if len(products) > 8 {
		products = products[:8]
	}

	var b strings.Builder
	switch qtype {
	case core.QueryCIBIL:
		b.WriteString("Lenders whose CIBIL cutoff the profile clears:\n")
	case core.QueryPincode:
		b.WriteString("Lenders serving that pincode:\n")
	case core.QueryLender:
		b.WriteString("Matching products:\n")
	case core.QueryEntity:
		b.WriteString("Lenders accepting that entity type:\n")
	default:
		b.WriteString("Relevant lender products:\n")
	}

	for _, p := range products {
		fmt.Fprintf(&b, "- %s / %s", p.LenderName, p.ProductName)
		var parts []string
		if p.MinCIBILScore != nil {
			parts = append(parts, fmt.Sprintf("min CIBIL %d", *p.MinCIBILScore))
		}
		if p.MinTurnoverAnnual != nil {
			parts = append(parts, fmt.Sprintf("min turnover %.0f", *p.MinTurnoverAnnual))
		}
		if p.MaxTicketSize != nil {
			parts = append(parts, fmt.Sprintf("ticket up to %.0f", *p.MaxTicketSize))
		}
		if len(parts) > 0 {
			b.WriteString(" (" + strings.Join(parts, ", ") + ")")
		}
		b.WriteString("\n")
	}
	if len(r.products) > len(products) {
		fmt.Fprintf(&b, "...and %d more.", len(r.products)-len(products))
	}
	return strings.TrimSpace(b.String())
}
