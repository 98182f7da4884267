package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lendflow/backend/internal/core"
)

func doc(dt core.DocumentType, status core.DocumentStatus) *core.Document {
	return &core.Document{DocType: dt, Status: status}
}

func TestChecklistSplitsAvailableAndMissing(t *testing.T) {
	docs := []*core.Document{
		doc(core.DocTypePAN, core.DocExtracted),
		doc(core.DocTypeAadhaar, core.DocClassified),
		doc(core.DocTypeBankStmt, core.DocFailed),
	}
	sum := buildChecklistSummary(core.ProgramBanking, docs)

	assert.Equal(t, core.ProgramBanking, sum.ProgramType)
	assert.ElementsMatch(t, []core.DocumentType{core.DocTypePAN, core.DocTypeAadhaar}, sum.Available)
	assert.Contains(t, sum.Unreadable, core.DocTypeBankStmt)
	// An unreadable document still needs a fresh upload.
	assert.Contains(t, sum.Missing, core.DocTypeBankStmt)
	assert.Contains(t, sum.Missing, core.DocTypeCIBILReport)
	assert.Contains(t, sum.Missing, core.DocTypeITR)

	// Banking expects 5 documents, 2 are readable.
	assert.InDelta(t, 40.0, sum.CompletenessScore, 0.001)
}

func TestChecklistReadableCopyWinsOverFailed(t *testing.T) {
	docs := []*core.Document{
		doc(core.DocTypePAN, core.DocFailed),
		doc(core.DocTypePAN, core.DocExtracted),
	}
	sum := buildChecklistSummary(core.ProgramBanking, docs)
	assert.Contains(t, sum.Available, core.DocTypePAN)
	assert.NotContains(t, sum.Unreadable, core.DocTypePAN)
}

func TestChecklistEmptyCase(t *testing.T) {
	sum := buildChecklistSummary(core.ProgramGST, nil)
	assert.Empty(t, sum.Available)
	assert.Len(t, sum.Missing, 5)
	assert.Zero(t, sum.CompletenessScore)
}

func TestProcessedDocumentsCountsTerminalOnly(t *testing.T) {
	docs := []*core.Document{
		doc(core.DocTypePAN, core.DocExtracted),
		doc(core.DocTypeBankStmt, core.DocFailed),
		doc(core.DocTypeAadhaar, core.DocClassified),
		doc(core.DocTypeITR, core.DocUploaded),
	}
	assert.Equal(t, 2, processedDocuments(docs))
}
