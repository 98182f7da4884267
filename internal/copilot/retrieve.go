package copilot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lendflow/backend/internal/core"
)

// LenderStore is the slice of the data layer the copilot retrieves
// against. KNOWLEDGE queries never touch it.
type LenderStore interface {
	ListActiveLenderProducts(ctx context.Context, program core.ProgramType) ([]*core.LenderProduct, error)
	LendersByMinCIBIL(ctx context.Context, score int) ([]*core.LenderProduct, error)
	LendersByPincode(ctx context.Context, pincode string) ([]*core.LenderProduct, error)
	LendersByName(ctx context.Context, name string) ([]*core.LenderProduct, error)
	LendersByEntityType(ctx context.Context, entityType string) ([]*core.LenderProduct, error)
	GetBorrowerFeatures(ctx context.Context, caseUUID string) (*core.BorrowerFeatures, error)
}

// retrieval is what the retriever hands to the answer layer.
type retrieval struct {
	products []*core.LenderProduct
	features *core.BorrowerFeatures // case context, may be nil
	sources  []string
}

// retrieve runs the type-appropriate query. Parameters come from the
// query text first, then from the case's feature vector.
func (cp *Copilot) retrieve(ctx context.Context, qtype core.CopilotQueryType,
	query, caseUUID string) (*retrieval, error) {

	r := &retrieval{}

	if caseUUID != "" {
		f, err := cp.store.GetBorrowerFeatures(ctx, caseUUID)
		if err != nil {
			return nil, err
		}
		r.features = f
		if f != nil {
			r.sources = append(r.sources, "case:"+caseUUID)
		}
	}

	var err error
	switch qtype {
	case core.QueryCIBIL:
		score, ok := scoreFromQuery(query)
		if !ok && r.features != nil && r.features.CIBILScore != nil {
			score, ok = *r.features.CIBILScore, true
		}
		if !ok {
			r.products, err = cp.store.ListActiveLenderProducts(ctx, "")
			r.sources = append(r.sources, "lender_products:all")
			break
		}
		r.products, err = cp.store.LendersByMinCIBIL(ctx, score)
		r.sources = append(r.sources, fmt.Sprintf("lender_products:min_cibil<=%d", score))

	case core.QueryPincode:
		pin, ok := pincodeFromQuery(query)
		if !ok && r.features != nil {
			pin, ok = r.features.Pincode, r.features.Pincode != ""
		}
		if !ok {
			return r, nil
		}
		r.products, err = cp.store.LendersByPincode(ctx, pin)
		r.sources = append(r.sources, "lender_pincodes:"+pin)

	case core.QueryLender:
		name := lenderNameIn(query, cp.lenderNames)
		if name == "" {
			return r, nil
		}
		r.products, err = cp.store.LendersByName(ctx, name)
		r.sources = append(r.sources, "lender_products:name~"+name)

	case core.QueryEntity:
		entity := entityFromQuery(query)
		if entity == "" && r.features != nil {
			entity = r.features.EntityType
		}
		if entity == "" {
			return r, nil
		}
		r.products, err = cp.store.LendersByEntityType(ctx, entity)
		r.sources = append(r.sources, "lender_products:entity="+entity)

	case core.QueryComparison, core.QueryVintage, core.QueryTurnover,
		core.QueryTicket, core.QueryRequired, core.QueryGeneral:
		r.products, err = cp.store.ListActiveLenderProducts(ctx, "")
		r.sources = append(r.sources, "lender_products:all")
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// lenderNameIn returns the first configured lender name mentioned in
// the query.
func lenderNameIn(query string, names []string) string {
	n := normalizeQuery(query)
	for _, name := range names {
		for _, w := range strings.Fields(strings.ToLower(name)) {
			if len(w) >= 4 && containsTerm(n, w) {
				return name
			}
		}
	}
	return ""
}

func entityFromQuery(query string) string {
	n := normalizeQuery(query)
	switch {
	case anyTerm(n, "private limited", "pvt ltd"):
		return "private_limited"
	case anyTerm(n, "llp", "limited liability"):
		return "llp"
	case anyTerm(n, "partnership"):
		return "partnership"
	case anyTerm(n, "proprietorship", "proprietor"):
		return "proprietorship"
	case anyTerm(n, "huf"):
		return "huf"
	}
	return ""
}
