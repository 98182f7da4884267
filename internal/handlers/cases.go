// Package handlers implements the HTTP endpoints behind the mux router.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/jobs"
	"github.com/lendflow/backend/internal/middleware"
)

// CaseHandlers covers case lifecycle endpoints.
type CaseHandlers struct {
	store  *database.Store
	logger *log.Logger
}

func NewCaseHandlers(store *database.Store) *CaseHandlers {
	return &CaseHandlers{
		store:  store,
		logger: log.New(log.Writer(), "[CASES] ", log.LstdFlags),
	}
}

// loadCase resolves the {case_id} path variable, which accepts either
// the public CASE-... id or the internal UUID.
func loadCase(ctx context.Context, store *database.Store, r *http.Request) (*core.Case, error) {
	id := mux.Vars(r)["case_id"]
	c, err := store.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, core.NewError(core.CodeCaseNotFound, "case %s not found", id)
	}
	return c, nil
}

type createCaseRequest struct {
	BorrowerName string `json:"borrower_name"`
	ProgramType  string `json:"program_type"`
	GSTIN        string `json:"gstin,omitempty"`
}

// Create handles POST /cases.
func (h *CaseHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewError(core.CodeValidation, "invalid JSON body"))
		return
	}

	req.BorrowerName = strings.TrimSpace(req.BorrowerName)
	if req.BorrowerName == "" {
		WriteError(w, core.NewError(core.CodeValidation, "borrower_name is required"))
		return
	}

	program := core.ProgramType(req.ProgramType)
	switch program {
	case core.ProgramBanking, core.ProgramGST, core.ProgramHybrid:
	case "":
		program = core.ProgramHybrid
	default:
		WriteError(w, core.NewError(core.CodeValidation,
			"program_type must be banking, gst or hybrid"))
		return
	}

	c := &core.Case{
		OperatorID:   middleware.OperatorID(r.Context()),
		BorrowerName: req.BorrowerName,
		ProgramType:  program,
		GSTIN:        strings.TrimSpace(req.GSTIN),
	}
	if err := h.store.CreateCase(r.Context(), c); err != nil {
		WriteError(w, err)
		return
	}

	h.logger.Printf("created %s for operator %s", c.CaseID, c.OperatorID)
	WriteJSON(w, http.StatusCreated, c)
}

// List handles GET /cases.
func (h *CaseHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cases, err := h.store.ListCases(r.Context(), middleware.OperatorID(r.Context()), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	if cases == nil {
		cases = []*core.Case{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"cases": cases})
}

// Get handles GET /cases/{case_id} with documents and job progress inlined.
func (h *CaseHandlers) Get(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), c.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}
	progress, err := h.store.JobProgress(r.Context(), c.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"case":      c,
		"documents": docs,
		"jobs":      progress,
	})
}

// SetOverrides handles PATCH /cases/{case_id}/overrides. Overrides are
// merged into the existing map; a null value removes the key. Changed
// overrides re-run feature assembly so downstream stages see them.
func (h *CaseHandlers) SetOverrides(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteError(w, core.NewError(core.CodeValidation, "invalid JSON body"))
		return
	}
	if len(patch) == 0 {
		WriteError(w, core.NewError(core.CodeValidation, "empty override patch"))
		return
	}

	merged := c.Overrides
	if merged == nil {
		merged = make(map[string]interface{})
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}

	if err := h.store.SetCaseOverrides(r.Context(), c.UUID, merged); err != nil {
		WriteError(w, err)
		return
	}

	// Rebuild features only once the case has reached assembly before;
	// earlier cases pick the overrides up when the cascade gets there.
	reassembled := false
	if !c.Status.Advances(core.CaseFeaturesBuilt) {
		if _, created, err := h.store.EnqueueJobUnlessPending(r.Context(), jobs.KindAssemble, c.UUID, nil); err == nil {
			reassembled = created
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"overrides":   merged,
		"reassembled": reassembled,
	})
}

// Delete handles DELETE /cases/{case_id}: soft delete plus cancellation
// of outstanding jobs.
func (h *CaseHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.store.SoftDeleteCase(r.Context(), c.UUID); err != nil {
		WriteError(w, err)
		return
	}
	h.logger.Printf("soft-deleted %s", c.CaseID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "case_id": c.CaseID})
}
