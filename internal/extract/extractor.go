// Package extract pulls typed fields out of OCR text. Extraction rules
// are data: each DocumentType maps to a rule function in a dispatch
// table, so adding a type never touches the driver.
package extract

import (
	"log"

	"github.com/lendflow/backend/internal/core"
)

// Field is one extracted (name, value, confidence) tuple. Values stay
// in string form; the feature assembler owns type conversion.
type Field struct {
	Name       string
	Value      string
	Confidence float64
}

// ruleFunc extracts fields for one document type.
type ruleFunc func(text string) []Field

// rules is the DocumentType dispatch table. Types absent here simply
// yield no fields, which is not an error.
var rules = map[core.DocumentType]ruleFunc{
	core.DocTypePAN:         extractPANCard,
	core.DocTypeAadhaar:     extractAadhaarCard,
	core.DocTypeGSTCert:     extractGSTCertificate,
	core.DocTypeGSTReturns:  extractGSTReturns,
	core.DocTypeCIBILReport: extractCIBILReport,
	core.DocTypeBankStmt:    extractBankStatement,
	core.DocTypeITR:         extractITR,
	core.DocTypeUdyam:       extractUdyam,
	core.DocTypeFinancials:  extractFinancials,
}

// Extractor applies the rule table to classified documents.
type Extractor struct {
	logger *log.Logger
}

// New builds an Extractor.
func New() *Extractor {
	return &Extractor{logger: log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)}
}

// Extract runs the rules for the document's type over its OCR text.
// Unknown or unsupported types return no fields.
func (e *Extractor) Extract(docType core.DocumentType, text string) []Field {
	rule, ok := rules[docType]
	if !ok || text == "" {
		return nil
	}
	fields := rule(text)
	e.logger.Printf("%s: %d fields", docType, len(fields))
	return fields
}

// Supported reports whether extraction rules exist for the type.
func Supported(docType core.DocumentType) bool {
	_, ok := rules[docType]
	return ok
}
