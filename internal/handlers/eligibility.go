package handlers

import (
	"log"
	"net/http"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/jobs"
)

// EligibilityHandlers triggers scoring runs and serves their results.
type EligibilityHandlers struct {
	store  *database.Store
	logger *log.Logger
}

func NewEligibilityHandlers(store *database.Store) *EligibilityHandlers {
	return &EligibilityHandlers{
		store:  store,
		logger: log.New(log.Writer(), "[ELIGIBILITY-API] ", log.LstdFlags),
	}
}

// Score handles POST /cases/{case_id}/score. Scoring runs async on the
// queue; concurrent triggers coalesce onto the pending job.
func (h *EligibilityHandlers) Score(w http.ResponseWriter, r *http.Request) {
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
			"cannot score %s before feature assembly", c.CaseID))
		return
	}

	jobID, created, err := h.store.EnqueueJobUnlessPending(r.Context(), jobs.KindEligibility, c.UUID, nil)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusAccepted
	if !created {
		h.logger.Printf("score request for %s coalesced onto job %s", c.CaseID, jobID)
	}
	WriteJSON(w, status, map[string]interface{}{
		"job_id":  jobID,
		"created": created,
	})
}

// Results handles GET /cases/{case_id}/eligibility: the latest run with
// evaluated/passed counts, ranked results first.
func (h *EligibilityHandlers) Results(w http.ResponseWriter, r *http.Request) {
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
			"no eligibility run for %s yet", c.CaseID))
		return
	}

	passed := 0
	for i := range results {
		if results[i].HardFilterStatus == core.FilterPass {
			passed++
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":                  results[0].RunID,
		"total_lenders_evaluated": len(results),
		"lenders_passed":          passed,
		"results":                 results,
	})
}
