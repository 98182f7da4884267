package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/lendflow/backend/internal/core"
)

// Filter detail keys, stable across runs so the UI can key on them.
const (
	filterPincode  = "pincode"
	filterCIBIL    = "cibil_score"
	filterEntity   = "entity_type"
	filterVintage  = "vintage"
	filterTurnover = "turnover"
	filterAge      = "age"
	filterABB      = "abb"
)

const skippedReason = "skipped: data missing"

// PincodeChecker answers whether a lender product serves a pincode.
type PincodeChecker interface {
	LenderServesPincode(ctx context.Context, lenderProductID, pincode string) (bool, error)
}

// filterOutcome is the layer-1 result for one product.
type filterOutcome struct {
	details map[string]string
	failed  int
	skipped int
}

func (o *filterOutcome) fail(name, reason string) {
	o.details[name] = reason
	o.failed++
}

func (o *filterOutcome) skip(name string) {
	o.details[name] = skippedReason
	o.skipped++
}

// runHardFilters evaluates published thresholds against the feature
// vector. A threshold the product does not publish is not a filter; a
// published threshold with the feature absent is a skip.
func (e *Engine) runHardFilters(ctx context.Context, f *core.BorrowerFeatures,
	p *core.LenderProduct) (*filterOutcome, error) {

	o := &filterOutcome{details: map[string]string{}}

	if p.EnforcesGeo {
		if f.Pincode == "" {
			o.skip(filterPincode)
		} else {
			serves, err := e.pincodes.LenderServesPincode(ctx, p.ID, f.Pincode)
			if err != nil {
				return nil, fmt.Errorf("pincode lookup for %s: %w", p.ID, err)
			}
			if !serves {
				o.fail(filterPincode, fmt.Sprintf("pincode %s not serviced", f.Pincode))
			}
		}
	}

	if p.MinCIBILScore != nil {
		if f.CIBILScore == nil {
			o.skip(filterCIBIL)
		} else if *f.CIBILScore < *p.MinCIBILScore {
			o.fail(filterCIBIL, fmt.Sprintf("CIBIL %d < required %d", *f.CIBILScore, *p.MinCIBILScore))
		}
	}

	if len(p.EligibleEntityTypes) > 0 {
		if f.EntityType == "" {
			o.skip(filterEntity)
		} else if !contains(p.EligibleEntityTypes, f.EntityType) {
			o.fail(filterEntity, fmt.Sprintf("entity type %q not eligible", f.EntityType))
		}
	}

	if p.MinVintageYears != nil {
		if f.VintageYears == nil {
			o.skip(filterVintage)
		} else if *f.VintageYears < *p.MinVintageYears {
			o.fail(filterVintage, fmt.Sprintf("vintage %.1fy < required %.1fy",
				*f.VintageYears, *p.MinVintageYears))
		}
	}

	if p.MinTurnoverAnnual != nil {
		if f.AnnualTurnover == nil {
			o.skip(filterTurnover)
		} else if *f.AnnualTurnover < *p.MinTurnoverAnnual {
			o.fail(filterTurnover, fmt.Sprintf("annual turnover %.0f < required %.0f",
				*f.AnnualTurnover, *p.MinTurnoverAnnual))
		}
	}

	if p.AgeMin != nil || p.AgeMax != nil {
		if f.DOB == nil {
			o.skip(filterAge)
		} else {
			age := ageYears(*f.DOB, time.Now())
			if p.AgeMin != nil && age < *p.AgeMin {
				o.fail(filterAge, fmt.Sprintf("age %d < minimum %d", age, *p.AgeMin))
			} else if p.AgeMax != nil && age > *p.AgeMax {
				o.fail(filterAge, fmt.Sprintf("age %d > maximum %d", age, *p.AgeMax))
			}
		}
	}

	if p.MinABB != nil {
		if f.AvgMonthlyBalance == nil {
			o.skip(filterABB)
		} else if *f.AvgMonthlyBalance < *p.MinABB {
			o.fail(filterABB, fmt.Sprintf("average balance %.0f < required %.0f",
				*f.AvgMonthlyBalance, *p.MinABB))
		}
	}

	return o, nil
}

func ageYears(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
