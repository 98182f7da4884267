// Package features folds extracted field rows into one borrower
// feature vector per case.
package features

import (
	"log"
	"strconv"
	"time"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/extract"
)

// sourcePriority orders competing values for the same field name.
// Higher wins. Low-confidence extraction sits below everything else
// but still beats having no value at all.
func sourcePriority(f core.ExtractedField) int {
	switch f.Source {
	case core.SourceManual:
		return 4
	case core.SourceExternal:
		return 3
	case core.SourceComputed:
		return 2
	case core.SourceExtraction:
		if f.Confidence >= 0.5 {
			return 2
		}
		return 1
	}
	return 0
}

// trackedFields is the denominator of the completeness percentage.
var trackedFields = []string{
	extract.FieldPAN,
	extract.FieldAadhaar,
	extract.FieldGSTIN,
	extract.FieldDOB,
	extract.FieldEntityType,
	extract.FieldPincode,
	extract.FieldAnnualTurnover,
	extract.FieldCIBILScore,
	extract.FieldActiveLoans,
	extract.FieldOverdues,
	extract.FieldEnquiries12M,
	"monthly_turnover",
	"avg_monthly_balance",
	"monthly_credit_avg",
	"bounces_12m",
	"cash_deposit_ratio",
	"existing_emis",
	"vintage_years",
}

// Assembler resolves field conflicts and types the winning values.
type Assembler struct {
	logger *log.Logger
}

func New() *Assembler {
	return &Assembler{logger: log.New(log.Writer(), "[FEATURES] ", log.LstdFlags)}
}

// Assemble builds the feature vector for a case from its field rows.
// For each field name the highest-priority row wins; within a priority
// tier the higher confidence wins, then the later row.
func (a *Assembler) Assemble(caseUUID string, fields []core.ExtractedField) *core.BorrowerFeatures {
	winners := map[string]core.ExtractedField{}
	for _, f := range fields {
		cur, ok := winners[f.FieldName]
		if !ok {
			winners[f.FieldName] = f
			continue
		}
		if sourcePriority(f) > sourcePriority(cur) ||
			(sourcePriority(f) == sourcePriority(cur) && f.Confidence >= cur.Confidence) {
			winners[f.FieldName] = f
		}
	}

	out := &core.BorrowerFeatures{CaseUUID: caseUUID}
	for name, f := range winners {
		a.apply(out, name, f.FieldValue)
	}
	filled := countFilled(out)
	out.Completeness = completeness(filled)

	a.logger.Printf("case %s: %d/%d tracked fields, completeness %.1f%%",
		caseUUID, filled, len(trackedFields), out.Completeness)
	return out
}

func completeness(filled int) float64 {
	return 100 * float64(filled) / float64(len(trackedFields))
}

// apply sets one typed feature from its string value. Unparseable
// values leave the feature unset.
func (a *Assembler) apply(out *core.BorrowerFeatures, name, value string) {
	if value == "" {
		return
	}
	switch name {
	case extract.FieldFullName:
		out.FullName = value
	case extract.FieldPAN:
		out.PAN = value
	case extract.FieldAadhaar:
		out.Aadhaar = value
	case extract.FieldGSTIN:
		out.GSTIN = value
	case extract.FieldDOB:
		if t, err := time.Parse("2006-01-02", value); err == nil {
			out.DOB = &t
		}
	case extract.FieldEntityType:
		out.EntityType = value
	case extract.FieldPincode:
		out.Pincode = value
	case extract.FieldRegistrationDate:
		// Converts into vintage unless an explicit vintage_years row
		// already won the slot.
		if t, err := time.Parse("2006-01-02", value); err == nil && out.VintageYears == nil {
			v := time.Since(t).Hours() / 24 / 365.25
			out.VintageYears = &v
		}
	case "vintage_years":
		setFloat(&out.VintageYears, value)
	case extract.FieldAnnualTurnover:
		setFloat(&out.AnnualTurnover, value)
	case "monthly_turnover":
		setFloat(&out.MonthlyTurnover, value)
	case "avg_monthly_balance":
		setFloat(&out.AvgMonthlyBalance, value)
	case "monthly_credit_avg":
		setFloat(&out.MonthlyCreditAvg, value)
	case "bounces_12m":
		setInt(&out.Bounces12M, value)
	case "cash_deposit_ratio":
		setFloat(&out.CashDepositRatio, value)
	case "existing_emis":
		setFloat(&out.ExistingEMIs, value)
	case extract.FieldCIBILScore:
		setInt(&out.CIBILScore, value)
	case extract.FieldActiveLoans:
		setInt(&out.ActiveLoans, value)
	case extract.FieldOverdues:
		setInt(&out.Overdues, value)
	case extract.FieldEnquiries12M:
		setInt(&out.Enquiries12M, value)
	}
}

// Derive fills computable gaps after direct assembly: annual turnover
// from the bank analyzer's monthly mean, and the monthly view from a
// declared annual figure when that is all we have.
func (a *Assembler) Derive(f *core.BorrowerFeatures) {
	before := countFilled(f)
	if f.MonthlyTurnover == nil && f.MonthlyCreditAvg != nil {
		f.MonthlyTurnover = f.MonthlyCreditAvg
	}
	if f.AnnualTurnover == nil && f.MonthlyTurnover != nil {
		v := *f.MonthlyTurnover * 12
		f.AnnualTurnover = &v
	}
	if f.MonthlyTurnover == nil && f.AnnualTurnover != nil {
		v := *f.AnnualTurnover / 12
		f.MonthlyTurnover = &v
	}
	if after := countFilled(f); after != before {
		f.Completeness = completeness(after)
	}
}

func countFilled(f *core.BorrowerFeatures) int {
	n := 0
	for _, set := range []bool{
		f.PAN != "", f.Aadhaar != "", f.GSTIN != "", f.DOB != nil,
		f.EntityType != "", f.Pincode != "", f.VintageYears != nil,
		f.AnnualTurnover != nil, f.MonthlyTurnover != nil,
		f.AvgMonthlyBalance != nil, f.MonthlyCreditAvg != nil,
		f.Bounces12M != nil, f.CashDepositRatio != nil, f.ExistingEMIs != nil,
		f.CIBILScore != nil, f.ActiveLoans != nil, f.Overdues != nil,
		f.Enquiries12M != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func setFloat(dst **float64, s string) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*dst = &v
	}
}

func setInt(dst **int, s string) {
	if v, err := strconv.Atoi(s); err == nil {
		*dst = &v
	}
}
