package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
)

// JobHandlers exposes pipeline progress and cancellation.
type JobHandlers struct {
	store *database.Store
}

func NewJobHandlers(store *database.Store) *JobHandlers {
	return &JobHandlers{store: store}
}

// Progress handles GET /cases/{case_id}/progress: per-kind job counts
// by state.
func (h *JobHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
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
		"case_id": c.CaseID,
		"status":  c.Status,
		"jobs":    progress,
	})
}

// Cancel handles POST /jobs/{job_id}/cancel. Finished jobs are not
// cancellable; a running job keeps executing but its side effects will
// not commit.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	cancelled, err := h.store.CancelJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !cancelled {
		WriteError(w, core.NewError(core.CodePreconditionFailed,
			"job %s already finished", jobID))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "job_id": jobID})
}
