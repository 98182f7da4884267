package eligibility

import (
	"github.com/lendflow/backend/internal/core"
)

// Component names as surfaced in missing_for_improvement.
const (
	compCIBIL    = "cibil"
	compTurnover = "turnover"
	compVintage  = "vintage"
	compBanking  = "banking"
	compFOIR     = "foir"
	compDocs     = "documentation"
)

// component is one scored dimension of layer 2.
type component struct {
	name   string
	weight float64
	score  float64
}

// scoreComponents computes the available components for a product.
// A component whose inputs are absent is simply not returned.
func (e *Engine) scoreComponents(f *core.BorrowerFeatures, p *core.LenderProduct,
	docTypes map[core.DocumentType]bool) []component {

	var out []component
	add := func(name string, weight, score float64) {
		out = append(out, component{name: name, weight: weight, score: score})
	}

	if f.CIBILScore != nil {
		add(compCIBIL, e.cfg.WeightCIBIL, cibilBand(*f.CIBILScore))
	}
	if f.AnnualTurnover != nil && p.MinTurnoverAnnual != nil && *p.MinTurnoverAnnual > 0 {
		add(compTurnover, e.cfg.WeightTurnover, turnoverBand(*f.AnnualTurnover / *p.MinTurnoverAnnual))
	}
	if f.VintageYears != nil {
		add(compVintage, e.cfg.WeightVintage, vintageBand(*f.VintageYears))
	}
	if s, ok := bankingScore(f, p); ok {
		add(compBanking, e.cfg.WeightBanking, s)
	}
	if s, ok := foirScore(f); ok {
		add(compFOIR, e.cfg.WeightFOIR, s)
	}
	if len(p.RequiredDocuments) > 0 {
		add(compDocs, e.cfg.WeightDocs, documentationScore(p.RequiredDocuments, docTypes))
	}
	return out
}

// weightedScore renormalizes over the available component weights.
func weightedScore(components []component) float64 {
	var sum, total float64
	for _, c := range components {
		sum += c.weight * c.score
		total += c.weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func cibilBand(score int) float64 {
	switch {
	case score >= 750:
		return 100
	case score >= 725:
		return 90
	case score >= 700:
		return 75
	case score >= 675:
		return 60
	case score >= 650:
		return 40
	default:
		return 20
	}
}

func turnoverBand(ratio float64) float64 {
	switch {
	case ratio > 3:
		return 100
	case ratio >= 2:
		return 80
	case ratio >= 1.5:
		return 60
	case ratio >= 1:
		return 40
	default:
		return 20
	}
}

func vintageBand(years float64) float64 {
	switch {
	case years >= 5:
		return 100
	case years >= 3:
		return 80
	case years >= 2:
		return 60
	case years >= 1:
		return 40
	default:
		return 20
	}
}

// bankingScore averages the available banking sub-signals with equal
// weight: balance adequacy, bounce history, cash intensity.
func bankingScore(f *core.BorrowerFeatures, p *core.LenderProduct) (float64, bool) {
	var sum float64
	var n int

	if f.AvgMonthlyBalance != nil && p.MinABB != nil && *p.MinABB > 0 {
		sum += abbBand(*f.AvgMonthlyBalance / *p.MinABB)
		n++
	}
	if f.Bounces12M != nil {
		sum += bounceBand(*f.Bounces12M)
		n++
	}
	if f.CashDepositRatio != nil {
		sum += cashRatioBand(*f.CashDepositRatio)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func abbBand(ratio float64) float64 {
	switch {
	case ratio >= 2:
		return 100
	case ratio >= 1.5:
		return 80
	case ratio >= 1:
		return 60
	case ratio >= 0.5:
		return 40
	default:
		return 20
	}
}

func bounceBand(bounces int) float64 {
	switch {
	case bounces == 0:
		return 100
	case bounces <= 2:
		return 70
	default:
		return 30
	}
}

func cashRatioBand(ratio float64) float64 {
	switch {
	case ratio < 0.20:
		return 100
	case ratio <= 0.40:
		return 60
	default:
		return 30
	}
}

// foirScore computes existing obligations against monthly income. The
// monthly figure is preferred; a declared annual figure divides by 12.
func foirScore(f *core.BorrowerFeatures) (float64, bool) {
	if f.ExistingEMIs == nil {
		return 0, false
	}
	var income float64
	switch {
	case f.MonthlyTurnover != nil && *f.MonthlyTurnover > 0:
		income = *f.MonthlyTurnover
	case f.AnnualTurnover != nil && *f.AnnualTurnover > 0:
		income = *f.AnnualTurnover / 12
	default:
		return 0, false
	}

	foir := *f.ExistingEMIs / income
	switch {
	case foir < 0.30:
		return 100, true
	case foir < 0.45:
		return 75, true
	case foir < 0.55:
		return 50, true
	case foir < 0.65:
		return 30, true
	default:
		return 0, true
	}
}

func documentationScore(required []core.DocumentType, present map[core.DocumentType]bool) float64 {
	have := 0
	for _, d := range required {
		if present[d] {
			have++
		}
	}
	return 100 * float64(have) / float64(len(required))
}
