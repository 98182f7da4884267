package copilot

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lendflow/backend/internal/core"
)

var (
	reQueryPincode = regexp.MustCompile(`\b[1-9]\d{5}\b`)
	reQueryScore   = regexp.MustCompile(`\b([3-8]\d{2}|900)\b`)
	reNonWord      = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// knownLenderWords are lender-name fragments that mark a query as
// lender specific. The loader keeps this current with the product
// table at startup.
type queryClassifier struct {
	lenderWords []string
}

func newQueryClassifier(lenderNames []string) *queryClassifier {
	seen := map[string]bool{}
	var words []string
	for _, name := range lenderNames {
		for _, w := range strings.Fields(strings.ToLower(name)) {
			// Generic words appear in too many lender names to signal one.
			if len(w) < 4 || w == "bank" || w == "finance" || w == "capital" || w == "loan" {
				continue
			}
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	return &queryClassifier{lenderWords: words}
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(reNonWord.ReplaceAllString(strings.ToLower(q), " "))
}

func containsTerm(normalized, term string) bool {
	return strings.Contains(" "+normalized+" ", " "+term+" ")
}

func anyTerm(normalized string, terms ...string) bool {
	for _, t := range terms {
		if containsTerm(normalized, t) {
			return true
		}
	}
	return false
}

// classify assigns a query type from keyword presence and shape.
// Short glossary lookups resolve to KNOWLEDGE before anything else.
func (c *queryClassifier) classify(query string) core.CopilotQueryType {
	n := normalizeQuery(query)
	words := strings.Fields(n)

	// A bare term or two is a definition lookup, not a data question.
	if len(words) <= 2 {
		if _, _, ok := lookupGlossary(n); ok {
			return core.QueryKnowledge
		}
	}
	definitional := anyTerm(n, "what is", "what does", "define", "meaning of", "explain")
	if definitional {
		if _, _, ok := lookupGlossary(n); ok {
			return core.QueryKnowledge
		}
	}

	if anyTerm(n, "compare", "versus", "vs", "difference between", "better option", "which is better") {
		return core.QueryComparison
	}
	if reQueryPincode.MatchString(n) || anyTerm(n, "pincode", "pin code", "serviceable", "service area", "location") {
		return core.QueryPincode
	}
	if anyTerm(n, "cibil", "credit score", "bureau score") {
		return core.QueryCIBIL
	}
	if anyTerm(n, "vintage", "years in business", "how old", "business age") {
		return core.QueryVintage
	}
	if anyTerm(n, "turnover", "revenue", "sales") {
		return core.QueryTurnover
	}
	if anyTerm(n, "proprietorship", "proprietor", "partnership", "llp", "private limited", "entity type", "entity") {
		return core.QueryEntity
	}
	if anyTerm(n, "ticket", "loan amount", "how much loan", "maximum loan", "max loan") {
		return core.QueryTicket
	}
	if anyTerm(n, "document", "documents", "required", "requirement", "checklist", "criteria", "need to submit") {
		return core.QueryRequired
	}
	for _, w := range c.lenderWords {
		if containsTerm(n, w) {
			return core.QueryLender
		}
	}
	// A definitional question about a term no data query matched is
	// still a knowledge lookup, glossary hit or not.
	if definitional {
		return core.QueryKnowledge
	}
	return core.QueryGeneral
}

// scoreFromQuery pulls an explicit CIBIL figure out of the query text.
func scoreFromQuery(query string) (int, bool) {
	m := reQueryScore.FindString(normalizeQuery(query))
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil || v < 300 || v > 900 {
		return 0, false
	}
	return v, true
}

func pincodeFromQuery(query string) (string, bool) {
	m := reQueryPincode.FindString(query)
	return m, m != ""
}
