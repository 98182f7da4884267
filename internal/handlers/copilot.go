package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/lendflow/backend/internal/copilot"
	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/middleware"
	"github.com/lendflow/backend/internal/monitoring"
)

// CopilotHandlers fronts the Q&A assistant.
type CopilotHandlers struct {
	store   *database.Store
	copilot *copilot.Copilot
	metrics *monitoring.Metrics
}

func NewCopilotHandlers(store *database.Store, cp *copilot.Copilot, metrics *monitoring.Metrics) *CopilotHandlers {
	return &CopilotHandlers{store: store, copilot: cp, metrics: metrics}
}

type askRequest struct {
	CaseID string `json:"case_id,omitempty"`
	Query  string `json:"query"`
}

// Ask handles POST /copilot/ask. When case_id is set, the case's
// features ground the answer.
func (h *CopilotHandlers) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewError(core.CodeValidation, "invalid JSON body"))
		return
	}

	caseUUID := ""
	if id := strings.TrimSpace(req.CaseID); id != "" {
		c, err := h.store.GetCase(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		if c == nil {
			WriteError(w, core.NewError(core.CodeCaseNotFound, "case %s not found", id))
			return
		}
		caseUUID = c.UUID
	}

	rec, err := h.copilot.Answer(r.Context(), middleware.OperatorID(r.Context()), caseUUID, req.Query)
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordCopilotQuery(string(rec.DetectedType), rec.AnswerMode)
	}

	WriteJSON(w, http.StatusOK, rec)
}

// History handles GET /copilot/history for the calling operator.
func (h *CopilotHandlers) History(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	turns, err := h.copilot.History(r.Context(), middleware.OperatorID(r.Context()), n)
	if err != nil {
		WriteError(w, err)
		return
	}
	if turns == nil {
		turns = []core.CopilotQuery{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"history": turns})
}
