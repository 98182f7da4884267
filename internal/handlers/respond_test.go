package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/core"
)

func TestStatusForMapping(t *testing.T) {
	cases := map[core.ErrorCode]int{
		core.CodeValidation:         http.StatusBadRequest,
		core.CodeCaseNotFound:       http.StatusNotFound,
		core.CodeDocumentNotFound:   http.StatusNotFound,
		core.CodeReportNotFound:     http.StatusNotFound,
		core.CodeDuplicateDocument:  http.StatusConflict,
		core.CodeFeaturesNotBuilt:   http.StatusUnprocessableEntity,
		core.CodePreconditionFailed: http.StatusUnprocessableEntity,
		core.CodeRateLimited:        http.StatusTooManyRequests,
		core.CodeExternalTimeout:    http.StatusBadGateway,
		core.CodeExternalFailure:    http.StatusBadGateway,
		core.CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), string(code))
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, core.NewError(core.CodeCaseNotFound, "case CASE-20260824-0001 not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, core.CodeCaseNotFound, body.Error.Code)
	assert.Equal(t, "case CASE-20260824-0001 not found", body.Error.Message)
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestWriteErrorKeepsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := core.NewError(core.CodeValidation, "bad upload").
		WithDetails(map[string]interface{}{"filename": "scan.bmp"})
	WriteError(rec, err)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "scan.bmp", body.Error.Details["filename"])
}
