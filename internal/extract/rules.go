package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Canonical field names shared with the feature assembler.
const (
	FieldPAN              = "pan"
	FieldAadhaar          = "aadhaar"
	FieldGSTIN            = "gstin"
	FieldFullName         = "full_name"
	FieldDOB              = "dob"
	FieldEntityType       = "entity_type"
	FieldPincode          = "pincode"
	FieldRegistrationDate = "registration_date"
	FieldAnnualTurnover   = "annual_turnover"
	FieldCIBILScore       = "cibil_score"
	FieldActiveLoans      = "active_loans"
	FieldOverdues         = "overdues"
	FieldEnquiries12M     = "enquiries_12m"
)

var (
	rePAN     = regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`)
	reAadhaar = regexp.MustCompile(`\b([2-9]\d{3})\s?(\d{4})\s?(\d{4})\b`)
	reGSTIN   = regexp.MustCompile(`\b[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][0-9][A-Z][0-9A-Z]\b`)
	reDate    = regexp.MustCompile(`\b(\d{2})[/-](\d{2})[/-](\d{4})\b`)
	rePincode = regexp.MustCompile(`\b[1-9]\d{5}\b`)
)

// panEntityLetters are the valid 4th-position entity-class letters of a
// PAN. A format match failing this check keeps only half its confidence.
const panEntityLetters = "ABCFGHLJPT"

// ParseDate accepts dd/mm/yyyy and dd-mm-yyyy.
func ParseDate(s string) (time.Time, bool) {
	m := reDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject those
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// ParseAmount tolerates Indian digit grouping (1,25,00,000 → 12500000).
func ParseAmount(s string) (float64, bool) {
	cleaned := strings.NewReplacer(",", "", "₹", "", " ", "").Replace(s)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(cleaned), "rs."), "rs")
	cleaned = strings.TrimPrefix(cleaned, "inr")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// firstAndRest records the first match at full confidence and later
// matches as extra rows at reduced confidence, per the reading-order
// multiple-match policy.
func firstAndRest(name string, matches []string, conf float64) []Field {
	var out []Field
	seen := map[string]bool{}
	for i, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		c := conf
		if i > 0 {
			c = conf * 0.6
		}
		out = append(out, Field{Name: name, Value: m, Confidence: c})
	}
	return out
}

// ============================================================================
// PER-TYPE RULES
// ============================================================================

func panFields(text string) []Field {
	var out []Field
	for i, m := range rePAN.FindAllString(text, -1) {
		conf := 0.95
		if !strings.ContainsRune(panEntityLetters, rune(m[3])) {
			conf *= 0.5
		}
		if i > 0 {
			conf *= 0.6
		}
		out = append(out, Field{Name: FieldPAN, Value: m, Confidence: conf})
		if i == 0 && conf >= 0.9 {
			// Only the first clean PAN seeds downstream matching
			break
		}
	}
	return out
}

func extractPANCard(text string) []Field {
	out := panFields(text)
	if t, ok := ParseDate(text); ok {
		out = append(out, Field{Name: FieldDOB, Value: t.Format("2006-01-02"), Confidence: 0.80})
	}
	return out
}

func extractAadhaarCard(text string) []Field {
	var out []Field
	matches := reAadhaar.FindAllStringSubmatch(text, -1)
	for i, m := range matches {
		value := m[1] + m[2] + m[3]
		conf := 0.90
		if i > 0 {
			conf *= 0.6
		}
		out = append(out, Field{Name: FieldAadhaar, Value: value, Confidence: conf})
	}
	if t, ok := ParseDate(text); ok {
		out = append(out, Field{Name: FieldDOB, Value: t.Format("2006-01-02"), Confidence: 0.75})
	}
	return out
}

// entityConstitutions maps GST certificate constitution wording to the
// canonical entity types used by lender policies.
var entityConstitutions = []struct {
	pattern *regexp.Regexp
	entity  string
}{
	{regexp.MustCompile(`(?i)private\s+limited`), "private_limited"},
	{regexp.MustCompile(`(?i)public\s+limited`), "public_limited"},
	{regexp.MustCompile(`(?i)limited\s+liability\s+partnership|llp`), "llp"},
	{regexp.MustCompile(`(?i)partnership`), "partnership"},
	{regexp.MustCompile(`(?i)proprietor`), "proprietorship"},
	{regexp.MustCompile(`(?i)hindu\s+undivided|huf`), "huf"},
}

func extractGSTCertificate(text string) []Field {
	var out []Field

	gstins := reGSTIN.FindAllString(text, -1)
	pans := rePAN.FindAllString(text, -1)
	for i, g := range gstins {
		// A GSTIN embeds a PAN at positions 3-12; agreement with an
		// independently seen PAN is the strong-confidence path.
		conf := 0.70
		embedded := g[2:12]
		for _, p := range pans {
			if p == embedded {
				conf = 0.95
				break
			}
		}
		if i > 0 {
			conf *= 0.6
		}
		out = append(out, Field{Name: FieldGSTIN, Value: g, Confidence: conf})
	}

	for _, ec := range entityConstitutions {
		if ec.pattern.MatchString(text) {
			out = append(out, Field{Name: FieldEntityType, Value: ec.entity, Confidence: 0.85})
			break
		}
	}

	if m := rePincode.FindString(text); m != "" {
		out = append(out, Field{Name: FieldPincode, Value: m, Confidence: 0.70})
	}
	if t, ok := ParseDate(text); ok {
		out = append(out, Field{Name: FieldRegistrationDate, Value: t.Format("2006-01-02"), Confidence: 0.75})
	}
	return out
}

var reTaxableValue = regexp.MustCompile(`(?i)(?:total\s+)?taxable\s+(?:value|turnover)\D{0,20}([\d,]+(?:\.\d+)?)`)

func extractGSTReturns(text string) []Field {
	var out []Field
	out = append(out, firstAndRest(FieldGSTIN, reGSTIN.FindAllString(text, -1), 0.85)...)
	if m := reTaxableValue.FindStringSubmatch(text); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			out = append(out, Field{Name: FieldAnnualTurnover,
				Value: fmt.Sprintf("%.0f", v), Confidence: 0.65})
		}
	}
	return out
}

var (
	reCIBILScore  = regexp.MustCompile(`(?i)(?:cibil|credit)\s*score\D{0,15}(\d{3})`)
	reActiveLoans = regexp.MustCompile(`(?i)active\s+(?:loans?|accounts?)\D{0,15}(\d{1,2})`)
	reOverdue     = regexp.MustCompile(`(?i)overdue\s*(?:accounts?|amount)?\D{0,15}(\d{1,2})\b`)
	reEnquiries   = regexp.MustCompile(`(?i)enquir(?:y|ies)(?:\s+in\s+last\s+12\s+months)?\s*:?\s*(\d{1,2})\b`)
)

func extractCIBILReport(text string) []Field {
	var out []Field
	if m := reCIBILScore.FindStringSubmatch(text); m != nil {
		score, _ := strconv.Atoi(m[1])
		conf := 0.90
		if score < 300 || score > 900 {
			conf *= 0.5
		}
		out = append(out, Field{Name: FieldCIBILScore, Value: m[1], Confidence: conf})
	}
	if m := reActiveLoans.FindStringSubmatch(text); m != nil {
		out = append(out, Field{Name: FieldActiveLoans, Value: m[1], Confidence: 0.75})
	}
	if m := reOverdue.FindStringSubmatch(text); m != nil {
		out = append(out, Field{Name: FieldOverdues, Value: m[1], Confidence: 0.70})
	}
	if m := reEnquiries.FindStringSubmatch(text); m != nil {
		out = append(out, Field{Name: FieldEnquiries12M, Value: m[1], Confidence: 0.70})
	}
	return out
}

// Bank statements contribute little via regex; the bank-statement
// analyzer collaborator owns the financial aggregates. Only identity
// hints are pulled here.
func extractBankStatement(text string) []Field {
	var out []Field
	out = append(out, firstAndRest(FieldPAN, rePAN.FindAllString(text, -1), 0.60)...)
	return out
}

var reGrossIncome = regexp.MustCompile(`(?i)gross\s+total\s+income\D{0,20}([\d,]+(?:\.\d+)?)`)

func extractITR(text string) []Field {
	var out []Field
	out = append(out, panFields(text)...)
	if m := reGrossIncome.FindStringSubmatch(text); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			out = append(out, Field{Name: FieldAnnualTurnover,
				Value: fmt.Sprintf("%.0f", v), Confidence: 0.70})
		}
	}
	return out
}

func extractUdyam(text string) []Field {
	var out []Field
	for _, ec := range entityConstitutions {
		if ec.pattern.MatchString(text) {
			out = append(out, Field{Name: FieldEntityType, Value: ec.entity, Confidence: 0.80})
			break
		}
	}
	if t, ok := ParseDate(text); ok {
		out = append(out, Field{Name: FieldRegistrationDate, Value: t.Format("2006-01-02"), Confidence: 0.70})
	}
	if m := rePincode.FindString(text); m != "" {
		out = append(out, Field{Name: FieldPincode, Value: m, Confidence: 0.65})
	}
	return out
}

var reTurnoverAnchor = regexp.MustCompile(`(?i)(?:revenue|turnover|sales)\D{0,25}([\d,]+(?:\.\d+)?)`)

func extractFinancials(text string) []Field {
	var out []Field
	if m := reTurnoverAnchor.FindStringSubmatch(text); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			out = append(out, Field{Name: FieldAnnualTurnover,
				Value: fmt.Sprintf("%.0f", v), Confidence: 0.70})
		}
	}
	return out
}
