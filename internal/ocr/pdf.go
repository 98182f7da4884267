package ocr

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/lendflow/backend/internal/core"
)

// extractPDF reads the text layer of a PDF. Scanned PDFs without a text
// layer come back with empty text and a correct page count, which the
// classifier handles via filename matching.
func (e *Engine) extractPDF(doc *core.Document, content []byte) (out *Output, err error) {
	// The pdf package panics on some malformed inputs; convert those
	// into the corrupt-file failure path.
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = core.NewError(core.CodeExternalFailure, "corrupt PDF: %v", p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return nil, core.WrapError(core.CodeExternalFailure, err, "password-protected PDF")
		}
		return nil, core.WrapError(core.CodeExternalFailure, err, "corrupt PDF")
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	var all strings.Builder

	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			e.logger.Printf("document %s page %d unreadable: %v", doc.ID, i, err)
			pages = append(pages, "")
			continue
		}
		text = normalize(text)
		pages = append(pages, text)
		if text != "" {
			if all.Len() > 0 {
				all.WriteString("\n")
			}
			all.WriteString(text)
		}
	}

	if total == 0 {
		return nil, core.NewError(core.CodeExternalFailure, "PDF has no pages")
	}

	out = &Output{Text: all.String(), PageCount: total, Pages: pages}
	e.logger.Printf("document %s: %d pages, %d chars", doc.ID, out.PageCount, len(out.Text))
	return out, nil
}
