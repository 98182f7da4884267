package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lendflow/backend/internal/core"
)

// termModel is a pre-built bag-of-terms classifier loaded from disk.
// The model file carries per-type term weights produced offline; this
// process only evaluates it.
type termModel struct {
	Types map[string]termClass `json:"types"`
}

type termClass struct {
	Terms map[string]float64 `json:"terms"` // lowercase term -> weight
	Bias  float64            `json:"bias"`
}

// LoadModel reads a term-weight model file. Returns (nil, nil) when
// path is empty so callers can pass config straight through.
func LoadModel(path string) (Model, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier model %s: %w", path, err)
	}
	var m termModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse classifier model: %w", err)
	}
	if len(m.Types) == 0 {
		return nil, fmt.Errorf("classifier model %s has no classes", path)
	}
	return &m, nil
}

// Predict sums matched term weights per class and softmax-normalizes
// the winner against the runner-up into a confidence.
func (m *termModel) Predict(text string) (core.DocumentType, float64) {
	lower := strings.ToLower(text)

	best, second := 0.0, 0.0
	winner := core.DocTypeUnknown
	for name, class := range m.Types {
		score := class.Bias
		for term, weight := range class.Terms {
			if strings.Contains(lower, term) {
				score += weight
			}
		}
		if score > best {
			second = best
			best = score
			winner = core.DocumentType(name)
		} else if score > second {
			second = score
		}
	}

	if best <= 0 {
		return core.DocTypeUnknown, 0
	}
	// Margin-based confidence: a clear winner approaches 1.0, a near
	// tie approaches 0.5.
	conf := best / (best + second)
	return winner, conf
}
