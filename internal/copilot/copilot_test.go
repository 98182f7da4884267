package copilot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/core"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

type stubStore struct {
	products  []*core.LenderProduct
	features  *core.BorrowerFeatures
	lastQuery string
}

func (s *stubStore) ListActiveLenderProducts(context.Context, core.ProgramType) ([]*core.LenderProduct, error) {
	s.lastQuery = "all"
	return s.products, nil
}

func (s *stubStore) LendersByMinCIBIL(_ context.Context, score int) ([]*core.LenderProduct, error) {
	s.lastQuery = "cibil"
	var out []*core.LenderProduct
	for _, p := range s.products {
		if p.MinCIBILScore == nil || *p.MinCIBILScore <= score {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) LendersByPincode(context.Context, string) ([]*core.LenderProduct, error) {
	s.lastQuery = "pincode"
	return s.products, nil
}

func (s *stubStore) LendersByName(_ context.Context, name string) ([]*core.LenderProduct, error) {
	s.lastQuery = "name:" + name
	return s.products, nil
}

func (s *stubStore) LendersByEntityType(context.Context, string) ([]*core.LenderProduct, error) {
	s.lastQuery = "entity"
	return s.products, nil
}

func (s *stubStore) GetBorrowerFeatures(context.Context, string) (*core.BorrowerFeatures, error) {
	return s.features, nil
}

type stubLog struct {
	inserted []*core.CopilotQuery
	history  []core.CopilotQuery
}

func (l *stubLog) InsertCopilotQuery(_ context.Context, q *core.CopilotQuery) error {
	l.inserted = append(l.inserted, q)
	return nil
}

func (l *stubLog) RecentCopilotQueries(context.Context, string, int) ([]core.CopilotQuery, error) {
	return l.history, nil
}

func testProducts() []*core.LenderProduct {
	return []*core.LenderProduct{
		{ID: "p1", LenderName: "Axis Finance", ProductName: "Business Loan",
			MinCIBILScore: intp(700), MaxTicketSize: floatp(5000000)},
		{ID: "p2", LenderName: "Bajaj Capital", ProductName: "Flexi Loan",
			MinCIBILScore: intp(680)},
	}
}

func newTestCopilot(store *stubStore, log *stubLog) *Copilot {
	return New(store, log, nil, nil, []string{"Axis Finance", "Bajaj Capital"}, 5)
}

func TestClassifyQueryTypes(t *testing.T) {
	c := newQueryClassifier([]string{"Axis Finance", "Bajaj Capital"})

	cases := []struct {
		query string
		want  core.CopilotQueryType
	}{
		{"Which lenders accept CIBIL 680?", core.QueryCIBIL},
		{"lenders in 411001", core.QueryPincode},
		{"is pincode 560076 serviceable", core.QueryPincode},
		{"compare axis and bajaj for this case", core.QueryComparison},
		{"minimum vintage for most lenders", core.QueryVintage},
		{"what turnover do I need", core.QueryTurnover},
		{"do lenders accept LLP", core.QueryEntity},
		{"maximum loan amount possible", core.QueryTicket},
		{"documents required for GST program", core.QueryRequired},
		{"does axis fund traders", core.QueryLender},
		{"FOIR", core.QueryKnowledge},
		{"what is ABB", core.QueryKnowledge},
		{"hello there, how are you", core.QueryGeneral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.classify(tc.query), tc.query)
	}
}

func TestAnswerKnowledgeSkipsRetrieval(t *testing.T) {
	store := &stubStore{products: testProducts()}
	log := &stubLog{}
	cp := newTestCopilot(store, log)

	rec, err := cp.Answer(context.Background(), "op-1", "", "what is FOIR")
	require.NoError(t, err)

	assert.Equal(t, core.QueryKnowledge, rec.DetectedType)
	assert.Contains(t, rec.ResponseText, "Fixed Obligation to Income Ratio")
	assert.Equal(t, "glossary", rec.AnswerMode)
	assert.Empty(t, rec.Sources)
	assert.Empty(t, store.lastQuery, "knowledge queries must not hit the store")
}

func TestAnswerUnknownTermSuggestsRephrasings(t *testing.T) {
	cp := newTestCopilot(&stubStore{}, &stubLog{})

	rec, err := cp.Answer(context.Background(), "op-1", "", "what is a moratorium")
	require.NoError(t, err)

	assert.Equal(t, core.QueryKnowledge, rec.DetectedType)
	assert.Contains(t, rec.ResponseText, "Try rephrasing")
	assert.Contains(t, rec.ResponseText, "which lenders accept CIBIL 700")
}

func TestAnswerCIBILUsesScoreFromQuery(t *testing.T) {
	store := &stubStore{products: testProducts()}
	log := &stubLog{}
	cp := newTestCopilot(store, log)

	rec, err := cp.Answer(context.Background(), "op-1", "", "which lenders take cibil 690")
	require.NoError(t, err)

	assert.Equal(t, core.QueryCIBIL, rec.DetectedType)
	assert.Equal(t, "template", rec.AnswerMode)
	assert.Equal(t, "cibil", store.lastQuery)
	// Only Bajaj's 680 cutoff clears a 690 score.
	assert.Contains(t, rec.ResponseText, "Bajaj Capital")
	assert.NotContains(t, rec.ResponseText, "Axis Finance")
	assert.Contains(t, rec.Sources, "lender_products:min_cibil<=690")
}

func TestAnswerCIBILFallsBackToCaseFeatures(t *testing.T) {
	store := &stubStore{
		products: testProducts(),
		features: &core.BorrowerFeatures{CIBILScore: intp(710), Completeness: 60},
	}
	log := &stubLog{}
	cp := newTestCopilot(store, log)

	rec, err := cp.Answer(context.Background(), "op-1", "case-1", "which lenders fit this cibil profile")
	require.NoError(t, err)

	assert.Contains(t, rec.Sources, "case:case-1")
	assert.Contains(t, rec.Sources, "lender_products:min_cibil<=710")
	assert.Contains(t, rec.ResponseText, "Axis Finance")
}

func TestAnswerPersistsTurn(t *testing.T) {
	store := &stubStore{products: testProducts()}
	log := &stubLog{}
	cp := newTestCopilot(store, log)

	_, err := cp.Answer(context.Background(), "op-1", "", "lenders in 411001")
	require.NoError(t, err)

	require.Len(t, log.inserted, 1)
	assert.Equal(t, "op-1", log.inserted[0].OperatorID)
	assert.Equal(t, core.QueryPincode, log.inserted[0].DetectedType)
	assert.NotEmpty(t, log.inserted[0].ResponseText)
}

func TestAnswerRejectsEmptyQuery(t *testing.T) {
	cp := newTestCopilot(&stubStore{}, &stubLog{})
	_, err := cp.Answer(context.Background(), "op-1", "", "")
	require.Error(t, err)
	assert.Equal(t, core.CodeValidation, core.CodeOf(err))
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func TestAnswerRateLimited(t *testing.T) {
	cp := New(&stubStore{}, &stubLog{}, nil, denyLimiter{}, nil, 5)
	_, err := cp.Answer(context.Background(), "op-1", "", "what is FOIR")
	require.Error(t, err)
	assert.Equal(t, core.CodeRateLimited, core.CodeOf(err))
}

func TestAnswerUsesLLMWhenConfigured(t *testing.T) {
	var gotMessages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMessages = len(req.Messages)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Bajaj Capital fits best."}}]}`))
	}))
	defer srv.Close()

	store := &stubStore{products: testProducts()}
	log := &stubLog{history: []core.CopilotQuery{
		{QueryText: "earlier question", ResponseText: "earlier answer"},
	}}
	llm := NewLLMClient(srv.URL, "key", "test-model", 5*time.Second)
	cp := New(store, log, llm, nil, []string{"Axis Finance"}, 5)

	rec, err := cp.Answer(context.Background(), "op-1", "", "which lenders take cibil 690")
	require.NoError(t, err)

	assert.Equal(t, "Bajaj Capital fits best.", rec.ResponseText)
	assert.Equal(t, "llm", rec.AnswerMode)
	// system + context + one remembered turn (user+assistant) + new question
	assert.Equal(t, 5, gotMessages)
}

func TestAnswerFallsBackWhenLLMFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &stubStore{products: testProducts()}
	llm := NewLLMClient(srv.URL, "key", "test-model", 5*time.Second)
	cp := New(store, &stubLog{}, llm, nil, nil, 5)

	rec, err := cp.Answer(context.Background(), "op-1", "", "which lenders take cibil 690")
	require.NoError(t, err)
	assert.Contains(t, rec.ResponseText, "Bajaj Capital")
	assert.Equal(t, "template", rec.AnswerMode)
}

type stubCache struct {
	data map[string][]byte
	sets int
	dels int
}

func newStubCache() *stubCache { return &stubCache{data: map[string][]byte{}} }

func (c *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	return c.data[key], nil
}

func (c *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.sets++
	c.data[key] = value
	return nil
}

func (c *stubCache) Del(_ context.Context, keys ...string) error {
	c.dels++
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func llmTestServer(t *testing.T, gotMessages *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*gotMessages = len(req.Messages)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
}

func TestConversationCacheServesPromptMemory(t *testing.T) {
	var gotMessages int
	srv := llmTestServer(t, &gotMessages)
	defer srv.Close()

	cache := newStubCache()
	cached, _ := json.Marshal([]core.CopilotQuery{
		{QueryText: "cached question", ResponseText: "cached answer"},
	})
	cache.data["copilot:turns:op-1"] = cached

	// The log holds nothing; the remembered turn can only come from
	// the cache.
	store := &stubStore{products: testProducts()}
	llm := NewLLMClient(srv.URL, "key", "test-model", 5*time.Second)
	cp := New(store, &stubLog{}, llm, nil, nil, 5).WithCache(cache)

	_, err := cp.Answer(context.Background(), "op-1", "", "which lenders take cibil 690")
	require.NoError(t, err)

	// system + context + cached turn (user+assistant) + new question
	assert.Equal(t, 5, gotMessages)
	// The new turn invalidates the cached window.
	assert.Equal(t, 1, cache.dels)
	assert.NotContains(t, cache.data, "copilot:turns:op-1")
}

func TestConversationCachePopulatedOnMiss(t *testing.T) {
	var gotMessages int
	srv := llmTestServer(t, &gotMessages)
	defer srv.Close()

	cache := newStubCache()
	store := &stubStore{products: testProducts()}
	log := &stubLog{history: []core.CopilotQuery{
		{QueryText: "earlier question", ResponseText: "earlier answer"},
	}}
	llm := NewLLMClient(srv.URL, "key", "test-model", 5*time.Second)
	cp := New(store, log, llm, nil, nil, 5).WithCache(cache)

	_, err := cp.Answer(context.Background(), "op-1", "", "which lenders take cibil 690")
	require.NoError(t, err)

	assert.Equal(t, 5, gotMessages)
	assert.Equal(t, 1, cache.sets, "miss repopulates the cache from the log")
	assert.Equal(t, 1, cache.dels, "the new turn then invalidates it")
}

func TestBuildMessagesOrdersHistoryOldestFirst(t *testing.T) {
	history := []core.CopilotQuery{
		{QueryText: "newest", ResponseText: "a2"},
		{QueryText: "oldest", ResponseText: "a1"},
	}
	msgs := buildMessages(nil, history, "current")

	require.Len(t, msgs, 6)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "oldest", msgs[1].Content)
	assert.Equal(t, "a1", msgs[2].Content)
	assert.Equal(t, "newest", msgs[3].Content)
	assert.Equal(t, "current", msgs[5].Content)
}
