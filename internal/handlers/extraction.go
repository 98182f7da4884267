package handlers

import (
	"net/http"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/jobs"
)

// ExtractionHandlers exposes raw extracted fields and the assembled
// borrower feature vector.
type ExtractionHandlers struct {
	store *database.Store
}

func NewExtractionHandlers(store *database.Store) *ExtractionHandlers {
	return &ExtractionHandlers{store: store}
}

// processedDocuments counts documents whose per-document pipeline has
// finished, either way.
func processedDocuments(docs []*core.Document) int {
	n := 0
	for _, d := range docs {
		if d.Status.Terminal() {
			n++
		}
	}
	return n
}

// Run handles POST /cases/{case_id}/extract: re-runs extraction and
// feature assembly on demand, after new uploads or corrected inputs.
// The work is queued (coalescing onto a pending assemble job if one
// exists) and the current counts are reported immediately.
func (h *ExtractionHandlers) Run(w http.ResponseWriter, r *http.Request) {
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
	fieldCount, err := h.store.CountExtractedFields(r.Context(), c.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}
	completeness := 0.0
	if f, err := h.store.GetBorrowerFeatures(r.Context(), c.UUID); err != nil {
		WriteError(w, err)
		return
	} else if f != nil {
		completeness = f.Completeness
	}

	jobID, created, err := h.store.EnqueueJobUnlessPending(r.Context(), jobs.KindAssemble, c.UUID, nil)
	if err != nil {
		WriteError(w, err)
		return
	}
	status := "queued"
	if !created {
		status = "already_queued"
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":                 status,
		"job_id":                 jobID,
		"total_fields_extracted": fieldCount,
		"feature_completeness":   completeness,
		"documents_processed":    processedDocuments(docs),
	})
}

// Fields handles GET /cases/{case_id}/fields: every extracted field row
// with its source and confidence, before assembly resolves conflicts.
func (h *ExtractionHandlers) Fields(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	fields, err := h.store.ListExtractedFields(r.Context(), c.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if fields == nil {
		fields = []core.ExtractedField{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

// Features handles GET /cases/{case_id}/features.
func (h *ExtractionHandlers) Features(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}
	f, err := h.store.GetBorrowerFeatures(r.Context(), c.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if f == nil {
		WriteError(w, core.NewError(core.CodeFeaturesNotBuilt,
			"features not built yet for %s", c.CaseID))
		return
	}
	WriteJSON(w, http.StatusOK, f)
}
