package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/core"
)

func TestGSTINLookupAndFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taxpayer/27ABCPE1234F1Z5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"legal_name": "SHREE TRADERS",
			"constitution": "Proprietorship",
			"registration_date": "01/04/2019",
			"status": "Active",
			"address": {"pincode": "411001"}
		}`))
	}))
	defer srv.Close()

	c := NewGSTINClient(srv.URL, 5*time.Second, nil)
	p, err := c.Lookup(context.Background(), "27ABCPE1234F1Z5")
	require.NoError(t, err)
	assert.Equal(t, "SHREE TRADERS", p.LegalName)
	assert.Equal(t, "411001", p.Pincode)
	assert.Equal(t, "2019-04-01", p.RegistrationDate.Format("2006-01-02"))

	fields := p.Fields("case-1")
	byName := map[string]core.ExtractedField{}
	for _, f := range fields {
		byName[f.FieldName] = f
		assert.Equal(t, core.SourceExternal, f.Source)
	}
	assert.Equal(t, "proprietorship", byName["entity_type"].FieldValue)
	assert.Equal(t, "411001", byName["pincode"].FieldValue)
	assert.NotEmpty(t, byName["vintage_years"].FieldValue)
}

func TestGSTINLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewGSTINClient(srv.URL, 5*time.Second, nil)
	_, err := c.Lookup(context.Background(), "27ABCPE1234F1Z5")
	require.Error(t, err)
	assert.Equal(t, core.CodeExternalFailure, core.CodeOf(err))
}

func TestGSTINLookupServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGSTINClient(srv.URL, 5*time.Second, nil)
	_, err := c.Lookup(context.Background(), "27ABCPE1234F1Z5")
	require.Error(t, err)
	assert.Equal(t, core.CodeExternalTimeout, core.CodeOf(err))
	assert.True(t, core.Retryable(err))
}

func TestBankStatsAnalyzeAndFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"monthly_credits_avg": 185000.50,
			"monthly_debits_avg": 160000,
			"avg_monthly_balance": 92000,
			"bounces_12m": 2,
			"cash_deposit_ratio": 0.31,
			"months_covered": 6
		}`))
	}))
	defer srv.Close()

	c := NewBankStatsClient(srv.URL, 5*time.Second, nil)
	stats, err := c.Analyze(context.Background(), []string{"cases/c1/docs/d1.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Bounces12M)

	byName := map[string]string{}
	for _, f := range stats.Fields("case-1") {
		byName[f.FieldName] = f.FieldValue
	}
	assert.Equal(t, "185000.50", byName["monthly_credit_avg"])
	assert.Equal(t, "185000.50", byName["monthly_turnover"])
	assert.Equal(t, "2", byName["bounces_12m"])
	assert.Equal(t, "0.3100", byName["cash_deposit_ratio"])
}

func TestBankStatsRequiresDocuments(t *testing.T) {
	c := NewBankStatsClient("http://localhost:9", time.Second, nil)
	_, err := c.Analyze(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeValidation, core.CodeOf(err))
}

func TestLocalLimiterWindow(t *testing.T) {
	l := NewLocalLimiter(2)
	assert.True(t, l.Allow("gstin"))
	assert.True(t, l.Allow("gstin"))
	assert.False(t, l.Allow("gstin"))
	// Separate keys have separate windows.
	assert.True(t, l.Allow("bankstats"))
}
