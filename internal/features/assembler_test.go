package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/core"
)

func row(name, value string, conf float64, source core.FieldSource) core.ExtractedField {
	return core.ExtractedField{
		CaseUUID: "case-1", FieldName: name, FieldValue: value,
		Confidence: conf, Source: source,
	}
}

func TestAssembleManualBeatsExtraction(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("cibil_score", "710", 0.95, core.SourceExtraction),
		row("cibil_score", "742", 1.0, core.SourceManual),
	})
	require.NotNil(t, f.CIBILScore)
	assert.Equal(t, 742, *f.CIBILScore)
}

func TestAssembleExternalBeatsExtraction(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("annual_turnover", "1500000", 0.9, core.SourceExtraction),
		row("annual_turnover", "1820000", 1.0, core.SourceExternal),
	})
	require.NotNil(t, f.AnnualTurnover)
	assert.Equal(t, 1820000.0, *f.AnnualTurnover)
}

func TestAssembleHighConfidenceExtractionBeatsLow(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("pan", "ABCXE1234F", 0.45, core.SourceExtraction),
		row("pan", "ABCPE1234F", 0.95, core.SourceExtraction),
	})
	assert.Equal(t, "ABCPE1234F", f.PAN)
}

func TestAssembleLowConfidenceStillFills(t *testing.T) {
	// A 0.4-confidence value is better than no value.
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("pincode", "411001", 0.4, core.SourceExtraction),
	})
	assert.Equal(t, "411001", f.Pincode)
}

func TestAssembleTypesAndCompleteness(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("pan", "ABCPE1234F", 0.95, core.SourceExtraction),
		row("cibil_score", "742", 0.9, core.SourceExtraction),
		row("annual_turnover", "12500000", 0.7, core.SourceExtraction),
		row("dob", "1985-06-15", 0.8, core.SourceExtraction),
	})

	require.NotNil(t, f.CIBILScore)
	assert.Equal(t, 742, *f.CIBILScore)
	require.NotNil(t, f.DOB)
	assert.Equal(t, "1985-06-15", f.DOB.Format("2006-01-02"))

	// 4 of 18 tracked fields set
	assert.InDelta(t, 100.0*4/18, f.Completeness, 0.01)
}

func TestAssembleUnparseableValueLeavesFieldAbsent(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("cibil_score", "seven forty", 0.9, core.SourceExtraction),
	})
	assert.Nil(t, f.CIBILScore)
	assert.Equal(t, 0.0, f.Completeness)
}

func TestAssembleRegistrationDateYieldsVintage(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("registration_date", "2019-04-01", 0.75, core.SourceExtraction),
	})
	require.NotNil(t, f.VintageYears)
	assert.Greater(t, *f.VintageYears, 5.0)
}

func TestAssembleExplicitVintageBeatsRegistrationDate(t *testing.T) {
	a := New()
	f := a.Assemble("case-1", []core.ExtractedField{
		row("registration_date", "2019-04-01", 0.75, core.SourceExtraction),
		row("vintage_years", "3.5", 1.0, core.SourceManual),
	})
	require.NotNil(t, f.VintageYears)
	assert.Equal(t, 3.5, *f.VintageYears)
}

func TestDeriveMonthlyFromAnnual(t *testing.T) {
	a := New()
	annual := 2400000.0
	f := &core.BorrowerFeatures{AnnualTurnover: &annual}

	a.Derive(f)

	require.NotNil(t, f.MonthlyTurnover)
	assert.Equal(t, 200000.0, *f.MonthlyTurnover)
}

func TestDeriveAnnualFromBankCredits(t *testing.T) {
	a := New()
	credits := 180000.0
	f := &core.BorrowerFeatures{MonthlyCreditAvg: &credits}

	a.Derive(f)

	require.NotNil(t, f.MonthlyTurnover)
	assert.Equal(t, 180000.0, *f.MonthlyTurnover)
	require.NotNil(t, f.AnnualTurnover)
	assert.Equal(t, 2160000.0, *f.AnnualTurnover)
}
