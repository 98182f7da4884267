package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lendflow/backend/internal/core"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error struct {
		Code    core.ErrorCode         `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// statusFor maps taxonomy codes onto HTTP statuses.
func statusFor(code core.ErrorCode) int {
	switch code {
	case core.CodeValidation:
		return http.StatusBadRequest
	case core.CodeCaseNotFound, core.CodeDocumentNotFound, core.CodeReportNotFound:
		return http.StatusNotFound
	case core.CodeDuplicateDocument:
		return http.StatusConflict
	case core.CodeFeaturesNotBuilt, core.CodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case core.CodeRateLimited:
		return http.StatusTooManyRequests
	case core.CodeExternalTimeout, core.CodeExternalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON success response.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError translates err into the error envelope. Taxonomy errors
// keep their code and details; anything else is an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var body errorBody
	body.Error.Code = core.CodeOf(err)

	var ce *core.Error
	if errors.As(err, &ce) {
		body.Error.Message = ce.Message
		body.Error.Details = ce.Details
	} else {
		body.Error.Message = "internal error"
	}

	WriteJSON(w, statusFor(body.Error.Code), body)
}
