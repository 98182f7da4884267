package handlers

import (
	"log"
	"net/http"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/ingest"
	"github.com/lendflow/backend/internal/jobs"
	"github.com/lendflow/backend/internal/monitoring"
	"github.com/lendflow/backend/internal/report"
)

// DocumentHandlers covers upload and document inspection endpoints.
type DocumentHandlers struct {
	store    *database.Store
	ingester *ingest.Ingester
	metrics  *monitoring.Metrics
	maxForm  int64
	logger   *log.Logger
}

func NewDocumentHandlers(store *database.Store, ingester *ingest.Ingester,
	metrics *monitoring.Metrics, maxFormBytes int64) *DocumentHandlers {
	if maxFormBytes <= 0 {
		maxFormBytes = 100 << 20
	}
	return &DocumentHandlers{
		store:    store,
		ingester: ingester,
		metrics:  metrics,
		maxForm:  maxFormBytes,
		logger:   log.New(log.Writer(), "[DOCS] ", log.LstdFlags),
	}
}

// Upload handles POST /cases/{case_id}/documents as a multipart batch
// under the "files" field. The batch is partial-success: each file gets
// its own created/duplicate/rejected outcome.
func (h *DocumentHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	c, err := loadCase(r.Context(), h.store, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := r.ParseMultipartForm(h.maxForm); err != nil {
		WriteError(w, core.NewError(core.CodeValidation, "invalid multipart body: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		WriteError(w, core.NewError(core.CodeValidation, "no files in upload (use the \"files\" field)"))
		return
	}

	var files []ingest.IncomingFile
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			WriteError(w, core.WrapError(core.CodeValidation, err, "unreadable upload part %s", fh.Filename))
			return
		}
		data, err := ingest.CopyLimit(f, h.maxForm)
		f.Close()
		if err != nil {
			WriteError(w, core.WrapError(core.CodeInternal, err, "read upload part %s", fh.Filename))
			return
		}
		files = append(files, ingest.IncomingFile{Name: fh.Filename, Data: data})
	}

	result, err := h.ingester.Ingest(r.Context(), c, files, jobs.KindOCR)
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.metrics != nil {
		sizes := make(map[string]int64, len(files))
		for _, f := range files {
			sizes[f.Name] = int64(len(f.Data))
		}
		for _, d := range result.Created {
			h.metrics.RecordUpload("accepted", sizes[d.Filename])
		}
		for range result.Duplicates {
			h.metrics.RecordUpload("duplicate", 0)
		}
		for range result.Rejected {
			h.metrics.RecordUpload("rejected", 0)
		}
	}

	status := http.StatusCreated
	if len(result.Created) == 0 {
		status = http.StatusOK
	}
	WriteJSON(w, status, result)
}

// List handles GET /cases/{case_id}/documents.
func (h *DocumentHandlers) List(w http.ResponseWriter, r *http.Request) {
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
	if docs == nil {
		docs = []*core.Document{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// checklistSummary is the document-checklist response body.
type checklistSummary struct {
	ProgramType       core.ProgramType    `json:"program_type"`
	Available         []core.DocumentType `json:"available"`
	Missing           []core.DocumentType `json:"missing"`
	Unreadable        []core.DocumentType `json:"unreadable,omitempty"`
	CompletenessScore float64             `json:"completeness_score"`
}

// buildChecklistSummary splits the program's expected document set into
// available / missing / unreadable against what has been uploaded so
// far. completeness_score is the available fraction on a 0-100 scale;
// unreadable documents count as missing.
func buildChecklistSummary(program core.ProgramType, docs []*core.Document) checklistSummary {
	present := make(map[core.DocumentType]core.DocumentStatus)
	for _, d := range docs {
		if d.DocType == "" || d.DocType == core.DocTypeUnknown {
			continue
		}
		// A readable copy wins over a failed one of the same type.
		if prev, ok := present[d.DocType]; !ok || prev == core.DocFailed {
			present[d.DocType] = d.Status
		}
	}

	expected := report.ExpectedDocuments(program)
	out := checklistSummary{
		ProgramType: program,
		Available:   []core.DocumentType{},
		Missing:     []core.DocumentType{},
	}
	for _, dt := range expected {
		s, ok := present[dt]
		switch {
		case ok && s != core.DocFailed:
			out.Available = append(out.Available, dt)
		case ok:
			out.Unreadable = append(out.Unreadable, dt)
			out.Missing = append(out.Missing, dt)
		default:
			out.Missing = append(out.Missing, dt)
		}
	}
	if len(expected) > 0 {
		out.CompletenessScore = 100 * float64(len(out.Available)) / float64(len(expected))
	}
	return out
}

// Checklist handles GET /cases/{case_id}/checklist: the program's
// expected document set against what has been classified so far.
func (h *DocumentHandlers) Checklist(w http.ResponseWriter, r *http.Request) {
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

	WriteJSON(w, http.StatusOK, buildChecklistSummary(c.ProgramType, docs))
}
