package classify

import (
	"regexp"

	"github.com/lendflow/backend/internal/core"
)

// filenamePattern maps a filename regex to a document type. First hit
// wins, so more specific patterns sit above generic ones.
type filenamePattern struct {
	re      *regexp.Regexp
	docType core.DocumentType
}

var filenamePatterns = []filenamePattern{
	{regexp.MustCompile(`(?i)gstr[-_ ]?[139]b?`), core.DocTypeGSTReturns},
	{regexp.MustCompile(`(?i)gst[-_ ]?return`), core.DocTypeGSTReturns},
	{regexp.MustCompile(`(?i)gst[-_ ]?(cert|reg)`), core.DocTypeGSTCert},
	{regexp.MustCompile(`(?i)\bgst\b`), core.DocTypeGSTCert},
	{regexp.MustCompile(`(?i)udyam|shop[-_ ]?lic`), core.DocTypeUdyam},
	{regexp.MustCompile(`(?i)\bpan\b|pan[-_ ]?card`), core.DocTypePAN},
	{regexp.MustCompile(`(?i)aadhaa?r`), core.DocTypeAadhaar},
	{regexp.MustCompile(`(?i)cibil|bureau|credit[-_ ]?report`), core.DocTypeCIBILReport},
	{regexp.MustCompile(`(?i)bank|statement|stmt`), core.DocTypeBankStmt},
	{regexp.MustCompile(`(?i)(^|[^a-z])itr([^a-z]|$)|income[-_ ]?tax[-_ ]?return|saral|sahaj`), core.DocTypeITR},
	{regexp.MustCompile(`(?i)balance[-_ ]?sheet|p&l|profit|financial`), core.DocTypeFinancials},
}

// keywordRule scores OCR text against a document type: score is the
// fraction of patterns matched, accepted above the rule's threshold.
type keywordRule struct {
	docType   core.DocumentType
	threshold float64
	patterns  []*regexp.Regexp
}

func kw(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var keywordRules = []keywordRule{
	{core.DocTypePAN, 0.40, kw(
		`permanent account number`,
		`income tax department`,
		`\b[A-Z]{5}[0-9]{4}[A-Z]\b`,
		`govt\.? of india`,
		`date of birth`,
	)},
	{core.DocTypeAadhaar, 0.40, kw(
		`unique identification authority`,
		`aadhaa?r`,
		`\b\d{4}\s?\d{4}\s?\d{4}\b`,
		`uidai`,
		`government of india`,
	)},
	{core.DocTypeGSTCert, 0.40, kw(
		`certificate of registration`,
		`goods and services tax`,
		`gstin`,
		`legal name`,
		`constitution of business`,
		`principal place of business`,
	)},
	{core.DocTypeGSTReturns, 0.40, kw(
		`gstr[- ]?[13]b?`,
		`outward supplies`,
		`taxable value`,
		`integrated tax`,
		`return period`,
	)},
	{core.DocTypeCIBILReport, 0.35, kw(
		`cibil`,
		`credit score`,
		`transunion`,
		`enquiry`,
		`account status`,
		`days past due`,
	)},
	{core.DocTypeBankStmt, 0.35, kw(
		`statement of account`,
		`opening balance`,
		`closing balance`,
		`withdrawal`,
		`deposit`,
		`ifsc`,
		`neft|rtgs|imps|upi`,
	)},
	{core.DocTypeITR, 0.40, kw(
		`income tax return`,
		`assessment year`,
		`acknowledgement`,
		`gross total income`,
		`itr[- ]?[1-7]`,
	)},
	{core.DocTypeUdyam, 0.40, kw(
		`udyam registration`,
		`ministry of micro`,
		`enterprise`,
		`msme`,
		`shop.{0,20}establishment`,
	)},
	{core.DocTypeFinancials, 0.40, kw(
		`balance sheet`,
		`profit and loss`,
		`liabilities`,
		`current assets`,
		`depreciation`,
	)},
}
