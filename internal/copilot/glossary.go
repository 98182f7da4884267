package copilot

// glossary holds the domain definitions the copilot can answer without
// touching the database. Keys are lowercase lookup terms.
var glossary = map[string]string{
	"foir": "FOIR (Fixed Obligation to Income Ratio) is the share of monthly income already " +
		"committed to EMIs and other fixed obligations. Lenders generally want FOIR below " +
		"45-55%; above that, new loan servicing capacity is doubtful.",
	"abb": "ABB (Average Bank Balance) is the mean closing balance across a statement period. " +
		"Lenders read it as a liquidity signal and many publish a minimum ABB threshold.",
	"cibil": "A CIBIL score is a 300-900 credit bureau score from TransUnion CIBIL. Most " +
		"business lenders want 650-750 minimum depending on the product.",
	"cibil score": "A CIBIL score is a 300-900 credit bureau score from TransUnion CIBIL. Most " +
		"business lenders want 650-750 minimum depending on the product.",
	"dpd": "DPD (Days Past Due) counts how late a repayment is. 30+ DPD entries on the bureau " +
		"report are a strong negative; many lenders cap the allowed number of 30+ DPD instances.",
	"vintage": "Business vintage is how long the borrower's business has operated, usually " +
		"measured from GST or Udyam registration. Most lenders want 2-3 years minimum.",
	"gstin": "A GSTIN is the 15-character Goods and Services Tax Identification Number. It " +
		"embeds the business PAN and the state code, and anchors GST-program underwriting.",
	"ticket size": "Ticket size is the sanctioned loan amount. Expected ticket is typically " +
		"10-25% of annual turnover, capped by the lender's product maximum.",
	"bounce": "A bounce is a cheque or ECS/NACH debit returned unpaid. Three or more bounces " +
		"in 12 months is a common disqualifier.",
	"bounces": "A bounce is a cheque or ECS/NACH debit returned unpaid. Three or more bounces " +
		"in 12 months is a common disqualifier.",
	"hard filter": "A hard filter is a binary eligibility rule (minimum CIBIL, vintage, " +
		"turnover, serviceable pincode). Failing any one disqualifies the product outright.",
	"cash deposit ratio": "The cash deposit ratio is the share of bank credits arriving as " +
		"cash. Above 40% lenders discount the banking data and may decline.",
	"overdue": "An overdue account has missed its scheduled repayment and remains unpaid. " +
		"Any overdue on the bureau report weakens approval odds sharply.",
	"enquiry": "A credit enquiry is logged each time a lender pulls the bureau report. Many " +
		"enquiries in a short window signals credit hunger.",
}

// lookupGlossary finds a definition whose term appears in the
// normalized query, preferring longer terms.
func lookupGlossary(normalized string) (string, string, bool) {
	bestTerm := ""
	for term := range glossary {
		if containsTerm(normalized, term) && len(term) > len(bestTerm) {
			bestTerm = term
		}
	}
	if bestTerm == "" {
		return "", "", false
	}
	return bestTerm, glossary[bestTerm], true
}
