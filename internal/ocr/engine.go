// Package ocr turns stored document blobs into machine-readable text.
//
// PDFs are read through their embedded text layer. Images go through an
// optional remote OCR collaborator; without one they yield empty text,
// which downstream stages tolerate (the classifier falls back to the
// filename).
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lendflow/backend/internal/core"
)

// Output is the OCR result for one document.
type Output struct {
	Text      string
	PageCount int
	Pages     []string // optional per-page breakdown (PDF only)
}

// Engine extracts text from PDF and image blobs. Extraction is
// deterministic given the same input bytes.
type Engine struct {
	remoteURL string // optional image-OCR collaborator, empty disables
	client    *http.Client
	logger    *log.Logger
}

// New builds an Engine. remoteURL may be empty.
func New(remoteURL string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Engine{
		remoteURL: remoteURL,
		client:    &http.Client{Timeout: timeout},
		logger:    log.New(log.Writer(), "[OCR] ", log.LstdFlags),
	}
}

// Extract produces text and a page count for the document content.
// A corrupt or password-protected file returns an EXTERNAL_FAILURE
// taxonomy error; the caller marks the document FAILED with the reason.
func (e *Engine) Extract(ctx context.Context, doc *core.Document, content []byte) (*Output, error) {
	switch doc.Extension {
	case ".pdf":
		return e.extractPDF(doc, content)
	case ".jpg", ".jpeg", ".png", ".tif", ".tiff":
		return e.extractImage(ctx, doc, content)
	default:
		return nil, core.NewError(core.CodeValidation, "unsupported extension %q", doc.Extension)
	}
}

// extractImage sends the image to the remote OCR collaborator when one
// is configured. Without one the document is treated as textless rather
// than failed, so filename-based classification still runs.
func (e *Engine) extractImage(ctx context.Context, doc *core.Document, content []byte) (*Output, error) {
	if e.remoteURL == "" {
		e.logger.Printf("no image OCR backend configured, %s treated as textless", doc.ID)
		return &Output{Text: "", PageCount: 1}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.remoteURL, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", doc.OriginalFilename)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.WrapError(core.CodeExternalTimeout, err, "image OCR timed out")
		}
		return nil, core.WrapError(core.CodeExternalTimeout, err, "image OCR unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, core.NewError(core.CodeExternalTimeout, "image OCR returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, core.NewError(core.CodeExternalFailure, "image OCR rejected document: %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read OCR response: %w", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, core.WrapError(core.CodeExternalFailure, err, "malformed OCR response")
	}
	return &Output{Text: normalize(out.Text), PageCount: 1}, nil
}

// normalize collapses whitespace runs so extraction regexes behave the
// same regardless of the OCR backend's spacing.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
