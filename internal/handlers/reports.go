package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/jobs"
	"github.com/lendflow/backend/internal/storage"
)

// ReportHandlers triggers report generation and serves the artifacts.
type ReportHandlers struct {
	store  *database.Store
	blobs  storage.BlobStore
	logger *log.Logger
}

func NewReportHandlers(store *database.Store, blobs storage.BlobStore) *ReportHandlers {
	return &ReportHandlers{
		store:  store,
		blobs:  blobs,
		logger: log.New(log.Writer(), "[REPORTS-API] ", log.LstdFlags),
	}
}

// Generate handles POST /cases/{case_id}/report. Generation runs async;
// a pending report job absorbs repeat requests.
func (h *ReportHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	results, err := h.store.LatestEligibilityRun(r.Context(), c.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if len(results) == 0 {
		WriteError(w, core.NewError(core.CodePreconditionFailed,
			"report for %s needs an eligibility run first", c.CaseID))
		return
	}

	jobID, created, err := h.store.EnqueueJobUnlessPending(r.Context(), jobs.KindReport, c.UUID, nil)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  jobID,
		"created": created,
	})
}

// Get handles GET /cases/{case_id}/report: the latest structured payload.
func (h *ReportHandlers) Get(w http.ResponseWriter, r *http.Request) {
	rep, err := h.latest(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

// PDF handles GET /cases/{case_id}/report/pdf, streaming the stored
// artifact.
func (h *ReportHandlers) PDF(w http.ResponseWriter, r *http.Request) {
	rep, err := h.latest(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	rc, err := h.blobs.Read(r.Context(), rep.PDFKey)
	if err != nil {
		WriteError(w, core.WrapError(core.CodeReportNotFound, err,
			"report PDF missing from storage"))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="report-%s.pdf"`, rep.ID))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Printf("streaming report %s aborted: %v", rep.ID, err)
	}
}

// WhatsApp handles GET /cases/{case_id}/report/whatsapp: the short-form
// text summary.
func (h *ReportHandlers) WhatsApp(w http.ResponseWriter, r *http.Request) {
	rep, err := h.latest(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"report_id": rep.ID,
		"summary":   rep.WhatsAppSummary,
	})
}

func (h *ReportHandlers) latest(r *http.Request) (*core.CaseReport, error) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		return nil, err
	}
	rep, err := h.store.LatestCaseReport(r.Context(), c.UUID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, core.NewError(core.CodeReportNotFound, "no report generated for %s", c.CaseID)
	}
	return rep, nil
}
