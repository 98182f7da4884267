package handlers

import (
	"net/http"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
)

// LenderHandlers serves the active lender catalogue.
type LenderHandlers struct {
	store *database.Store
}

func NewLenderHandlers(store *database.Store) *LenderHandlers {
	return &LenderHandlers{store: store}
}

// List handles GET /lenders with an optional ?program= filter.
func (h *LenderHandlers) List(w http.ResponseWriter, r *http.Request) {
	program := core.ProgramType(r.URL.Query().Get("program"))
	switch program {
	case "", core.ProgramBanking, core.ProgramGST, core.ProgramHybrid:
	default:
		WriteError(w, core.NewError(core.CodeValidation,
			"program must be banking, gst or hybrid"))
		return
	}

	products, err := h.store.ListActiveLenderProducts(r.Context(), program)
	if err != nil {
		WriteError(w, err)
		return
	}
	if products == nil {
		products = []*core.LenderProduct{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"lender_products": products})
}
