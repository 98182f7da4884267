// Package copilot answers operator questions about lenders and policy
// over the same store the pipeline writes to, with per-operator
// conversation memory.
package copilot

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lendflow/backend/internal/core"
)

// QueryLog persists and recalls conversation turns.
type QueryLog interface {
	InsertCopilotQuery(ctx context.Context, q *core.CopilotQuery) error
	RecentCopilotQueries(ctx context.Context, operatorID string, n int) ([]core.CopilotQuery, error)
}

// Limiter gates queries per operator.
type Limiter interface {
	Allow(key string) bool
}

// Cache shares prompt memory across processes so a conversation keeps
// its context whichever instance answers next. Optional.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Answer modes recorded on each turn.
const (
	modeLLM      = "llm"
	modeTemplate = "template"
	modeGlossary = "glossary"
)

// Copilot orchestrates classify, retrieve, answer, persist.
type Copilot struct {
	store        LenderStore
	queries      QueryLog
	llm          *LLMClient
	limiter      Limiter
	cache        Cache
	classifier   *queryClassifier
	lenderNames  []string
	memoryWindow int
	logger       *log.Logger
}

// New builds a Copilot. lenderNames seeds lender-specific query
// detection; llm may be nil, which switches every answer to templates.
func New(store LenderStore, queries QueryLog, llm *LLMClient, limiter Limiter,
	lenderNames []string, memoryWindow int) *Copilot {

	if memoryWindow <= 0 {
		memoryWindow = 5
	}
	return &Copilot{
		store:        store,
		queries:      queries,
		llm:          llm,
		limiter:      limiter,
		classifier:   newQueryClassifier(lenderNames),
		lenderNames:  lenderNames,
		memoryWindow: memoryWindow,
		logger:       log.New(log.Writer(), "[COPILOT] ", log.LstdFlags),
	}
}

// WithCache shares conversation memory through an external cache
// (Redis in production).
func (cp *Copilot) WithCache(cache Cache) *Copilot {
	cp.cache = cache
	return cp
}

// Answer handles one operator question end to end. caseUUID is
// optional case context.
func (cp *Copilot) Answer(ctx context.Context, operatorID, caseUUID, query string) (*core.CopilotQuery, error) {
	if query == "" {
		return nil, core.NewError(core.CodeValidation, "query text is required")
	}
	if cp.limiter != nil && !cp.limiter.Allow("copilot:"+operatorID) {
		return nil, core.NewError(core.CodeRateLimited, "copilot query rate exceeded")
	}

	qtype := cp.classifier.classify(query)

	var (
		r   *retrieval
		err error
	)
	if qtype != core.QueryKnowledge {
		r, err = cp.retrieve(ctx, qtype, query, caseUUID)
		if err != nil {
			return nil, err
		}
	}

	answer, mode := cp.answer(ctx, operatorID, qtype, query, r)

	rec := &core.CopilotQuery{
		ID:           uuid.NewString(),
		OperatorID:   operatorID,
		CaseUUID:     caseUUID,
		QueryText:    query,
		DetectedType: qtype,
		ResponseText: answer,
		AnswerMode:   mode,
		CreatedAt:    time.Now().UTC(),
	}
	if r != nil {
		rec.Sources = r.sources
	}
	if err := cp.queries.InsertCopilotQuery(ctx, rec); err != nil {
		return nil, err
	}
	if cp.cache != nil {
		if err := cp.cache.Del(ctx, turnCacheKey(operatorID)); err != nil {
			cp.logger.Printf("turn cache invalidate failed for %s: %v", operatorID, err)
		}
	}

	cp.logger.Printf("%s: %s query answered via %s (%d sources)", operatorID, qtype, mode, len(rec.Sources))
	return rec, nil
}

// History returns the operator's recent turns, newest first.
func (cp *Copilot) History(ctx context.Context, operatorID string, n int) ([]core.CopilotQuery, error) {
	if n <= 0 {
		n = cp.memoryWindow
	}
	return cp.queries.RecentCopilotQueries(ctx, operatorID, n)
}

// answer prefers the completion endpoint and degrades to templates on
// any LLM failure. KNOWLEDGE answers come from the glossary directly.
// The second return is the mode that produced the text.
func (cp *Copilot) answer(ctx context.Context, operatorID string,
	qtype core.CopilotQueryType, query string, r *retrieval) (string, string) {

	if qtype == core.QueryKnowledge {
		return fallbackAnswer(qtype, query, r), modeGlossary
	}
	if !cp.llm.Enabled() {
		return fallbackAnswer(qtype, query, r), modeTemplate
	}

	history, err := cp.recentTurns(ctx, operatorID)
	if err != nil {
		cp.logger.Printf("history load failed for %s: %v", operatorID, err)
		history = nil
	}

	reply, err := cp.llm.Chat(ctx, buildMessages(r, history, query))
	if err != nil {
		cp.logger.Printf("completion failed, using template answer: %v", err)
		return fallbackAnswer(qtype, query, r), modeTemplate
	}
	return reply, modeLLM
}

const turnCacheTTL = 15 * time.Minute

func turnCacheKey(operatorID string) string { return "copilot:turns:" + operatorID }

// recentTurns serves prompt memory from the shared cache when one is
// wired, repopulating it from the query log on a miss.
func (cp *Copilot) recentTurns(ctx context.Context, operatorID string) ([]core.CopilotQuery, error) {
	if cp.cache == nil {
		return cp.queries.RecentCopilotQueries(ctx, operatorID, cp.memoryWindow)
	}

	key := turnCacheKey(operatorID)
	if raw, err := cp.cache.Get(ctx, key); err == nil && len(raw) > 0 {
		var turns []core.CopilotQuery
		if json.Unmarshal(raw, &turns) == nil {
			return turns, nil
		}
	}

	turns, err := cp.queries.RecentCopilotQueries(ctx, operatorID, cp.memoryWindow)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(turns); err == nil {
		if err := cp.cache.Set(ctx, key, raw, turnCacheTTL); err != nil {
			cp.logger.Printf("turn cache store failed for %s: %v", operatorID, err)
		}
	}
	return turns, nil
}
