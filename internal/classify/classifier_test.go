package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lendflow/backend/internal/core"
)

func TestClassifyByFilename(t *testing.T) {
	c := New(nil)

	cases := []struct {
		filename string
		want     core.DocumentType
	}{
		{"GSTR-3B_march.pdf", core.DocTypeGSTReturns},
		{"gstr1_q4.pdf", core.DocTypeGSTReturns},
		{"gst_certificate.pdf", core.DocTypeGSTCert},
		{"udyam_registration.pdf", core.DocTypeUdyam},
		{"pan_card.jpg", core.DocTypePAN},
		{"aadhaar_front.jpg", core.DocTypeAadhaar},
		{"aadhar.png", core.DocTypeAadhaar},
		{"cibil_report.pdf", core.DocTypeCIBILReport},
		{"bank_statement_hdfc.pdf", core.DocTypeBankStmt},
		{"ITR_ack_2024.pdf", core.DocTypeITR},
		{"balance_sheet_fy24.pdf", core.DocTypeFinancials},
	}
	for _, tc := range cases {
		v := c.Classify(tc.filename, "")
		assert.Equal(t, tc.want, v.DocType, tc.filename)
		assert.GreaterOrEqual(t, v.Confidence, 0.90, tc.filename)
		assert.Equal(t, MethodFilename, v.Method, tc.filename)
	}
}

func TestClassifyUnknownWhenNoSignal(t *testing.T) {
	c := New(nil)
	v := c.Classify("scan0001.jpg", "short")
	assert.Equal(t, core.DocTypeUnknown, v.DocType)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestClassifyByKeywords(t *testing.T) {
	c := New(nil)
	text := "Statement of Account. Opening Balance 1,20,000.00 Closing Balance 95,000.00 " +
		"NEFT transfer received. Withdrawal by cheque. IFSC HDFC0001234."

	v := c.Classify("scan0001.pdf", text)
	assert.Equal(t, core.DocTypeBankStmt, v.DocType)
	assert.Equal(t, MethodKeyword, v.Method)
	assert.Greater(t, v.Confidence, 0.35)
}

func TestClassifyHybridBoost(t *testing.T) {
	c := New(nil)
	text := "Income Tax Department Govt. of India. Permanent Account Number ABCPE1234F. " +
		"Date of Birth 01/01/1990."

	v := c.Classify("pan_card.jpg", text)
	assert.Equal(t, core.DocTypePAN, v.DocType)
	assert.Equal(t, MethodHybrid, v.Method)
	assert.Equal(t, 0.95, v.Confidence)
}

func TestClassifyFilenameWinsOnEmptyText(t *testing.T) {
	c := New(nil)
	v := c.Classify("aadhaar.jpg", "")
	assert.Equal(t, core.DocTypeAadhaar, v.DocType)
	assert.Equal(t, MethodFilename, v.Method)
}

type stubModel struct {
	docType core.DocumentType
	conf    float64
}

func (m stubModel) Predict(string) (core.DocumentType, float64) { return m.docType, m.conf }

func TestClassifyModelAcceptedAboveThreshold(t *testing.T) {
	c := New(stubModel{core.DocTypeCIBILReport, 0.82})
	v := c.Classify("scan.pdf", "some long enough ocr text for classification to proceed")
	assert.Equal(t, core.DocTypeCIBILReport, v.DocType)
	assert.Equal(t, MethodModel, v.Method)
	assert.Equal(t, 0.82, v.Confidence)
}

func TestClassifyContentOverridesMisleadingFilename(t *testing.T) {
	// A misnamed file classifies by what the pages actually say: a
	// confident content signal of a different type beats the filename.
	c := New(nil)
	text := "Statement of Account. Opening Balance 1,20,000.00 Closing Balance 95,000.00 " +
		"NEFT transfer received. Withdrawal by cheque. IFSC HDFC0001234."

	v := c.Classify("pan_card.pdf", text)
	assert.Equal(t, core.DocTypeBankStmt, v.DocType)
	assert.Equal(t, MethodKeyword, v.Method)
}

func TestClassifyModelOverridesMisleadingFilename(t *testing.T) {
	c := New(stubModel{core.DocTypeCIBILReport, 0.82})
	v := c.Classify("pan_card.pdf", "some long enough ocr text for classification to proceed")
	assert.Equal(t, core.DocTypeCIBILReport, v.DocType)
	assert.Equal(t, MethodModel, v.Method)
}

func TestClassifyModelRejectedBelowThreshold(t *testing.T) {
	// Low-confidence model predictions fall through to keyword scoring.
	c := New(stubModel{core.DocTypeCIBILReport, 0.50})
	text := "Statement of Account. Opening Balance. Closing Balance. Deposit. Withdrawal. IFSC."
	v := c.Classify("scan.pdf", text)
	assert.Equal(t, core.DocTypeBankStmt, v.DocType)
	assert.Equal(t, MethodKeyword, v.Method)
}
