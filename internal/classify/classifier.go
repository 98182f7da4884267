// Package classify assigns a DocumentType to uploaded documents from
// filename heuristics, keyword scoring, and an optional pre-built model.
package classify

import (
	"log"

	"github.com/lendflow/backend/internal/core"
)

const (
	filenameConfidence = 0.90
	hybridConfidence   = 0.95
	modelAcceptMin     = 0.75
	minTextLength      = 30
)

// Method names which signal produced the verdict.
type Method string

const (
	MethodFilename Method = "filename"
	MethodKeyword  Method = "keyword"
	MethodModel    Method = "model"
	MethodHybrid   Method = "hybrid"
	MethodNone     Method = "none"
)

// Verdict is the classifier output for one document.
type Verdict struct {
	DocType    core.DocumentType
	Confidence float64
	Method     Method
}

// Model is an optional pre-built classifier. Implementations predict
// from OCR text only; models are loaded, never trained, here.
type Model interface {
	Predict(text string) (core.DocumentType, float64)
}

// Classifier runs the layered classification algorithm.
type Classifier struct {
	model  Model // nil when no model is loaded
	logger *log.Logger
}

// New builds a Classifier. model may be nil.
func New(model Model) *Classifier {
	return &Classifier{
		model:  model,
		logger: log.New(log.Writer(), "[CLASSIFY] ", log.LstdFlags),
	}
}

// Classify runs, in order: filename match, model prediction, keyword
// scoring. A filename hit agreeing with the keyword winner is boosted
// to the hybrid confidence. Empty or near-empty text falls back to the
// filename result, or UNKNOWN.
func (c *Classifier) Classify(filename, ocrText string) Verdict {
	fromName, nameHit := matchFilename(filename)

	if len(ocrText) < minTextLength {
		if nameHit {
			return Verdict{DocType: fromName, Confidence: filenameConfidence, Method: MethodFilename}
		}
		return Verdict{DocType: core.DocTypeUnknown, Confidence: 0, Method: MethodNone}
	}

	if c.model != nil {
		if docType, conf := c.model.Predict(ocrText); conf >= modelAcceptMin {
			if nameHit && docType == fromName {
				return Verdict{DocType: docType, Confidence: hybridConfidence, Method: MethodHybrid}
			}
			return Verdict{DocType: docType, Confidence: conf, Method: MethodModel}
		}
	}

	kwType, kwScore, kwHit := scoreKeywords(ocrText)

	switch {
	case nameHit && kwHit && fromName == kwType:
		return Verdict{DocType: fromName, Confidence: hybridConfidence, Method: MethodHybrid}
	case kwHit:
		return Verdict{DocType: kwType, Confidence: kwScore, Method: MethodKeyword}
	case nameHit:
		return Verdict{DocType: fromName, Confidence: filenameConfidence, Method: MethodFilename}
	default:
		return Verdict{DocType: core.DocTypeUnknown, Confidence: 0, Method: MethodNone}
	}
}

// matchFilename checks the filename pattern table, first hit wins.
func matchFilename(filename string) (core.DocumentType, bool) {
	for _, p := range filenamePatterns {
		if p.re.MatchString(filename) {
			return p.docType, true
		}
	}
	return core.DocTypeUnknown, false
}

// scoreKeywords returns the best-scoring document type whose score
// clears its threshold. Score is the fraction of patterns matched.
func scoreKeywords(text string) (core.DocumentType, float64, bool) {
	best := core.DocTypeUnknown
	bestScore := 0.0
	found := false

	for _, rule := range keywordRules {
		matched := 0
		for _, re := range rule.patterns {
			if re.MatchString(text) {
				matched++
			}
		}
		score := float64(matched) / float64(len(rule.patterns))
		if score >= rule.threshold && score > bestScore {
			best = rule.docType
			bestScore = score
			found = true
		}
	}
	return best, bestScore, found
}
