// Package jobs runs the case pipeline over the durable queue: per
// document OCR -> classify -> extract, then the case-level cascade
// into feature assembly, eligibility and reporting.
package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lendflow/backend/internal/classify"
	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/eligibility"
	"github.com/lendflow/backend/internal/enrich"
	"github.com/lendflow/backend/internal/events"
	"github.com/lendflow/backend/internal/extract"
	"github.com/lendflow/backend/internal/features"
	"github.com/lendflow/backend/internal/monitoring"
	"github.com/lendflow/backend/internal/notify"
	"github.com/lendflow/backend/internal/ocr"
	"github.com/lendflow/backend/internal/report"
	"github.com/lendflow/backend/internal/storage"
)

// Job kinds. OCR, classify and extract are per document; the rest are
// per case.
const (
	KindOCR         = "ocr"
	KindClassify    = "classify"
	KindExtract     = "extract"
	KindCascade     = "cascade"
	KindAssemble    = "assemble"
	KindEligibility = "eligibility"
	KindReport      = "report"
)

// DocumentKinds lists the per-document stages.
var DocumentKinds = []string{KindOCR, KindClassify, KindExtract}

// Locker serializes per-case runs across processes. Optional; a nil
// locker relies on the queue's coalescing alone.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Runner executes one job kind at a time against the pipeline stages.
type Runner struct {
	store       *database.Store
	blobs       storage.BlobStore
	ocr         *ocr.Engine
	classifier  *classify.Classifier
	extractor   *extract.Extractor
	assembler   *features.Assembler
	gstin       *enrich.GSTINClient
	bankstats   *enrich.BankStatsClient
	eligibility *eligibility.Engine
	reports     *report.Generator
	whatsapp    *notify.WhatsApp
	bus         *events.Bus
	locker      Locker
	metrics     *monitoring.Metrics
	logger      *log.Logger
}

// RunnerDeps wires a Runner; locker, gstin, bankstats and whatsapp may
// be nil or disabled.
type RunnerDeps struct {
	Store       *database.Store
	Blobs       storage.BlobStore
	OCR         *ocr.Engine
	Classifier  *classify.Classifier
	Extractor   *extract.Extractor
	Assembler   *features.Assembler
	GSTIN       *enrich.GSTINClient
	BankStats   *enrich.BankStatsClient
	Eligibility *eligibility.Engine
	Reports     *report.Generator
	WhatsApp    *notify.WhatsApp
	Bus         *events.Bus
	Locker      Locker
	Metrics     *monitoring.Metrics
}

func NewRunner(d RunnerDeps) *Runner {
	return &Runner{
		store:       d.Store,
		blobs:       d.Blobs,
		ocr:         d.OCR,
		classifier:  d.Classifier,
		extractor:   d.Extractor,
		assembler:   d.Assembler,
		gstin:       d.GSTIN,
		bankstats:   d.BankStats,
		eligibility: d.Eligibility,
		reports:     d.Reports,
		whatsapp:    d.WhatsApp,
		bus:         d.Bus,
		locker:      d.Locker,
		metrics:     d.Metrics,
		logger:      log.New(log.Writer(), "[JOBS] ", log.LstdFlags),
	}
}

// Handle dispatches a claimed job. A returned error is judged by the
// worker via the error taxonomy: retryable errors requeue with
// backoff, permanent ones fail the job.
func (r *Runner) Handle(ctx context.Context, job *database.Job) error {
	switch job.Kind {
	case KindOCR:
		return r.handleOCR(ctx, job)
	case KindClassify:
		return r.handleClassify(ctx, job)
	case KindExtract:
		return r.handleExtract(ctx, job)
	case KindCascade:
		return r.handleCascade(ctx, job)
	case KindAssemble:
		return r.handleAssemble(ctx, job)
	case KindEligibility:
		return r.handleEligibility(ctx, job)
	case KindReport:
		return r.handleReport(ctx, job)
	default:
		return core.NewError(core.CodeValidation, "unknown job kind %q", job.Kind)
	}
}

func (r *Runner) publish(caseUUID, stage, status, documentID, message string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		CaseUUID: caseUUID, Stage: stage, Status: status,
		DocumentID: documentID, Message: message,
	})
}

// loadDocument fetches the job's document, tolerating rows that
// vanished or already finished (reruns after a crash).
func (r *Runner) loadDocument(ctx context.Context, job *database.Job) (*core.Document, error) {
	doc, err := r.store.GetDocument(ctx, job.Payload["document_id"])
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Status.Terminal() {
		return nil, nil
	}
	return doc, nil
}

// failDocument marks the document FAILED and lets the case continue
// without it: the cascade treats FAILED as terminal.
func (r *Runner) failDocument(ctx context.Context, doc *core.Document, stage string, cause error) error {
	r.logger.Printf("document %s failed at %s: %v", doc.ID, stage, cause)
	if err := r.store.FailDocument(ctx, doc.ID, cause.Error()); err != nil {
		return err
	}
	r.publish(doc.CaseUUID, stage, "failed", doc.ID, cause.Error())
	_, err := r.store.EnqueueJob(ctx, KindCascade, doc.CaseUUID, nil)
	return err
}

// ============================================================================
// PER-DOCUMENT STAGES
// ============================================================================

func (r *Runner) handleOCR(ctx context.Context, job *database.Job) error {
	doc, err := r.loadDocument(ctx, job)
	if err != nil || doc == nil {
		return err
	}

	if err := r.store.AdvanceCaseStatus(ctx, doc.CaseUUID, core.CaseProcessing); err != nil {
		return err
	}
	r.publish(doc.CaseUUID, KindOCR, "started", doc.ID, "")

	rc, err := r.blobs.Read(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", doc.StorageKey, err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read blob %s: %w", doc.StorageKey, err)
	}

	out, err := r.ocr.Extract(ctx, doc, content)
	if err != nil {
		if core.Retryable(err) {
			return err
		}
		return r.failDocument(ctx, doc, KindOCR, err)
	}

	if err := r.store.SetDocumentOCR(ctx, doc.ID, out.Text, out.PageCount); err != nil {
		return err
	}
	if err := r.store.SetDocumentStatus(ctx, doc.ID, core.DocOCRComplete); err != nil {
		return err
	}
	r.publish(doc.CaseUUID, KindOCR, "succeeded", doc.ID, "")

	_, err = r.store.EnqueueJob(ctx, KindClassify, doc.CaseUUID,
		map[string]string{"document_id": doc.ID})
	return err
}

func (r *Runner) handleClassify(ctx context.Context, job *database.Job) error {
	doc, err := r.loadDocument(ctx, job)
	if err != nil || doc == nil {
		return err
	}

	v := r.classifier.Classify(doc.OriginalFilename, doc.OCRText)
	if err := r.store.SetDocumentClassification(ctx, doc.ID, v.DocType, v.Confidence, string(v.Method)); err != nil {
		return err
	}
	if err := r.store.SetDocumentStatus(ctx, doc.ID, core.DocClassified); err != nil {
		return err
	}
	r.publish(doc.CaseUUID, KindClassify, "succeeded", doc.ID, string(v.DocType))

	_, err = r.store.EnqueueJob(ctx, KindExtract, doc.CaseUUID,
		map[string]string{"document_id": doc.ID})
	return err
}

func (r *Runner) handleExtract(ctx context.Context, job *database.Job) error {
	doc, err := r.loadDocument(ctx, job)
	if err != nil || doc == nil {
		return err
	}

	fields := r.extractor.Extract(doc.DocType, doc.OCRText)
	rows := make([]core.ExtractedField, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, core.ExtractedField{
			CaseUUID:   doc.CaseUUID,
			DocumentID: doc.ID,
			FieldName:  f.Name,
			FieldValue: f.Value,
			Confidence: f.Confidence,
			Source:     core.SourceExtraction,
		})
	}
	if err := r.store.InsertExtractedFields(ctx, rows); err != nil {
		return err
	}
	if err := r.store.SetDocumentStatus(ctx, doc.ID, core.DocExtracted); err != nil {
		return err
	}
	r.publish(doc.CaseUUID, KindExtract, "succeeded", doc.ID,
		fmt.Sprintf("%d fields", len(rows)))

	_, err = r.store.EnqueueJob(ctx, KindCascade, doc.CaseUUID, nil)
	return err
}

// ============================================================================
// CASE-LEVEL CASCADE
// ============================================================================

// handleCascade fans out feature assembly once every document for the
// case has reached a terminal state. Document statuses, not job rows,
// are the authority: they commit before the cascade is enqueued.
func (r *Runner) handleCascade(ctx context.Context, job *database.Job) error {
	done, err := r.store.AllDocumentsTerminal(ctx, job.CaseUUID)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	_, _, err = r.store.EnqueueJobUnlessPending(ctx, KindAssemble, job.CaseUUID, nil)
	return err
}

func (r *Runner) handleAssemble(ctx context.Context, job *database.Job) error {
	c, err := r.store.GetCase(ctx, job.CaseUUID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	r.publish(c.UUID, KindAssemble, "started", "", "")

	fields, err := r.store.ListExtractedFields(ctx, c.UUID)
	if err != nil {
		return err
	}

	external := r.runEnrichers(ctx, c, fields)
	if len(external) > 0 {
		if err := r.store.ReplaceExternalFields(ctx, c.UUID, external); err != nil {
			return err
		}
		fields = append(fields, external...)
	}
	fields = append(fields, overrideFields(c)...)

	f := r.assembler.Assemble(c.UUID, fields)
	r.assembler.Derive(f)
	if err := r.store.SaveBorrowerFeatures(ctx, f); err != nil {
		return err
	}

	// Mirror the headline features onto the case row for list views.
	c.GSTIN = f.GSTIN
	c.EntityType = f.EntityType
	c.Pincode = f.Pincode
	if f.VintageYears != nil {
		c.VintageYears = *f.VintageYears
	}
	if f.AnnualTurnover != nil {
		c.AnnualTurnover = *f.AnnualTurnover
	}
	if err := r.store.UpdateCaseDerived(ctx, c); err != nil {
		return err
	}

	if err := r.store.AdvanceCaseStatus(ctx, c.UUID, core.CaseFeaturesBuilt); err != nil {
		return err
	}
	r.publish(c.UUID, KindAssemble, "succeeded", "",
		fmt.Sprintf("completeness %.0f%%", f.Completeness))

	_, _, err = r.store.EnqueueJobUnlessPending(ctx, KindEligibility, c.UUID, nil)
	return err
}

// runEnrichers calls the external collaborators. Failures log and
// skip; enrichment never blocks the pipeline.
func (r *Runner) runEnrichers(ctx context.Context, c *core.Case, fields []core.ExtractedField) []core.ExtractedField {
	var external []core.ExtractedField

	gstin := c.GSTIN
	for _, f := range fields {
		if f.FieldName == extract.FieldGSTIN && f.FieldValue != "" {
			gstin = f.FieldValue
			break
		}
	}
	if gstin != "" && r.gstin != nil && r.gstin.Enabled() {
		if profile, err := r.gstin.Lookup(ctx, gstin); err != nil {
			r.logger.Printf("case %s: GSTIN enrichment skipped: %v", c.CaseID, err)
		} else {
			external = append(external, profile.Fields(c.UUID)...)
			c.GSTINProfile = profile.Raw
		}
	}

	if r.bankstats != nil && r.bankstats.Enabled() {
		if keys := r.bankStatementKeys(ctx, c.UUID); len(keys) > 0 {
			if stats, err := r.bankstats.Analyze(ctx, keys); err != nil {
				r.logger.Printf("case %s: bank analysis skipped: %v", c.CaseID, err)
			} else {
				external = append(external, stats.Fields(c.UUID)...)
			}
		}
	}
	return external
}

func (r *Runner) bankStatementKeys(ctx context.Context, caseUUID string) []string {
	docs, err := r.store.ListDocuments(ctx, caseUUID)
	if err != nil {
		r.logger.Printf("list documents for %s: %v", caseUUID, err)
		return nil
	}
	var keys []string
	for _, d := range docs {
		if d.DocType == core.DocTypeBankStmt && d.Status == core.DocExtracted {
			keys = append(keys, d.StorageKey)
		}
	}
	return keys
}

// overrideFields turns case-level manual overrides into field rows
// that outrank every automated source.
func overrideFields(c *core.Case) []core.ExtractedField {
	var out []core.ExtractedField
	for name, value := range c.Overrides {
		out = append(out, core.ExtractedField{
			CaseUUID:   c.UUID,
			FieldName:  name,
			FieldValue: fmt.Sprint(value),
			Confidence: 1.0,
			Source:     core.SourceManual,
		})
	}
	return out
}

func (r *Runner) handleEligibility(ctx context.Context, job *database.Job) error {
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, "eligibility:"+job.CaseUUID, 2*time.Minute)
		if err != nil {
			r.logger.Printf("lock service unavailable, proceeding unlocked: %v", err)
		} else if !ok {
			return fmt.Errorf("eligibility run already in flight for case %s", job.CaseUUID)
		} else {
			defer r.locker.ReleaseLock(ctx, "eligibility:"+job.CaseUUID)
		}
	}

	c, err := r.store.GetCase(ctx, job.CaseUUID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}

	f, err := r.store.GetBorrowerFeatures(ctx, c.UUID)
	if err != nil {
		return err
	}
	if f == nil {
		return core.NewError(core.CodePreconditionFailed,
			"feature vector not built for case %s", c.CaseID)
	}

	products, err := r.store.ListActiveLenderProducts(ctx, c.ProgramType)
	if err != nil {
		return err
	}
	types, err := r.store.ClassifiedDocumentTypes(ctx, c.UUID)
	if err != nil {
		return err
	}
	docTypes := make(map[core.DocumentType]bool, len(types))
	for _, t := range types {
		docTypes[t] = true
	}

	flat := make([]core.LenderProduct, len(products))
	for i, p := range products {
		flat[i] = *p
	}
	results, err := r.eligibility.Evaluate(ctx, c.UUID, f, docTypes, flat)
	if err != nil {
		return err
	}
	if err := r.store.InsertEligibilityRun(ctx, results); err != nil {
		return err
	}
	if r.metrics != nil {
		passed := 0
		for i := range results {
			if results[i].HardFilterStatus == core.FilterPass {
				passed++
			}
		}
		r.metrics.RecordEligibilityRun(len(results), passed)
	}

	if err := r.store.AdvanceCaseStatus(ctx, c.UUID, core.CaseEligibilityScored); err != nil {
		return err
	}
	r.publish(c.UUID, KindEligibility, "succeeded", "",
		fmt.Sprintf("%d products evaluated", len(results)))

	_, _, err = r.store.EnqueueJobUnlessPending(ctx, KindReport, c.UUID, nil)
	return err
}

func (r *Runner) handleReport(ctx context.Context, job *database.Job) error {
	c, err := r.store.GetCase(ctx, job.CaseUUID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}

	f, err := r.store.GetBorrowerFeatures(ctx, c.UUID)
	if err != nil {
		return err
	}
	if f == nil {
		return core.NewError(core.CodePreconditionFailed,
			"feature vector not built for case %s", c.CaseID)
	}
	docs, err := r.store.ListDocuments(ctx, c.UUID)
	if err != nil {
		return err
	}
	results, err := r.store.LatestEligibilityRun(ctx, c.UUID)
	if err != nil {
		return err
	}

	flat := make([]core.Document, len(docs))
	for i, d := range docs {
		flat[i] = *d
	}
	data := r.reports.Build(c, f, flat, results)

	pdf, err := report.RenderPDF(data)
	if err != nil {
		return err
	}
	reportID := uuid.NewString()
	key := storage.ReportKey(c.UUID, reportID)
	if _, err := r.blobs.Write(ctx, key, bytes.NewReader(pdf)); err != nil {
		return fmt.Errorf("store report PDF: %w", err)
	}

	payload, err := data.ToPayload()
	if err != nil {
		return err
	}
	summary := report.WhatsAppSummary(data)
	if err := r.store.SaveCaseReport(ctx, &core.CaseReport{
		ID:              reportID,
		CaseUUID:        c.UUID,
		Payload:         payload,
		PDFKey:          key,
		WhatsAppSummary: summary,
	}); err != nil {
		return err
	}

	if err := r.store.AdvanceCaseStatus(ctx, c.UUID, core.CaseReportGenerated); err != nil {
		return err
	}
	r.publish(c.UUID, KindReport, "succeeded", "", reportID)

	if to, ok := c.Overrides["notify_whatsapp"].(string); ok && to != "" && r.whatsapp != nil {
		if err := r.whatsapp.Send(ctx, to, summary); err != nil {
			r.logger.Printf("case %s: WhatsApp notification failed: %v", c.CaseID, err)
		}
	}
	return nil
}
