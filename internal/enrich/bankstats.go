package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lendflow/backend/internal/core"
)

// BankStats is the analyzer's aggregate view over a case's bank
// statements.
type BankStats struct {
	MonthlyCreditsAvg float64 `json:"monthly_credits_avg"`
	MonthlyDebitsAvg  float64 `json:"monthly_debits_avg"`
	AvgMonthlyBalance float64 `json:"avg_monthly_balance"`
	Bounces12M        int     `json:"bounces_12m"`
	CashDepositRatio  float64 `json:"cash_deposit_ratio"`
	MonthsCovered     int     `json:"months_covered"`
}

// BankStatsClient talks to the bank statement analyzer service.
type BankStatsClient struct {
	url     string
	client  *http.Client
	limiter Limiter
	logger  *log.Logger
}

func NewBankStatsClient(url string, timeout time.Duration, limiter Limiter) *BankStatsClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BankStatsClient{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  log.New(log.Writer(), "[BANKSTATS] ", log.LstdFlags),
	}
}

// Enabled reports whether an analyzer endpoint is configured.
func (c *BankStatsClient) Enabled() bool { return c.url != "" }

// Analyze submits the stored statement blobs for aggregate analysis.
func (c *BankStatsClient) Analyze(ctx context.Context, documentKeys []string) (*BankStats, error) {
	if !c.Enabled() {
		return nil, core.NewError(core.CodeExternalFailure, "bank statement analyzer not configured")
	}
	if len(documentKeys) == 0 {
		return nil, core.NewError(core.CodeValidation, "no bank statements to analyze")
	}
	if c.limiter != nil && !c.limiter.Allow("bankstats") {
		return nil, core.NewError(core.CodeRateLimited, "bank analyzer rate exceeded")
	}

	payload, err := json.Marshal(map[string]interface{}{"document_keys": documentKeys})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.CodeExternalTimeout, err, "bank analyzer unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, core.NewError(core.CodeExternalTimeout, "bank analyzer returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, core.NewError(core.CodeExternalFailure, "bank analyzer rejected request: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read analyzer response: %w", err)
	}
	var stats BankStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, core.WrapError(core.CodeExternalFailure, err, "malformed analyzer response")
	}

	c.logger.Printf("analyzed %d statements over %d months", len(documentKeys), stats.MonthsCovered)
	return &stats, nil
}

// Fields converts analyzer output into external field rows.
func (s *BankStats) Fields(caseUUID string) []core.ExtractedField {
	add := func(name, value string) core.ExtractedField {
		return core.ExtractedField{
			CaseUUID: caseUUID, FieldName: name, FieldValue: value,
			Confidence: 1.0, Source: core.SourceExternal,
		}
	}

	out := []core.ExtractedField{
		add("monthly_credit_avg", formatAmount(s.MonthlyCreditsAvg)),
		add("avg_monthly_balance", formatAmount(s.AvgMonthlyBalance)),
		add("bounces_12m", strconv.Itoa(s.Bounces12M)),
		add("cash_deposit_ratio", strconv.FormatFloat(s.CashDepositRatio, 'f', 4, 64)),
	}
	if s.MonthlyCreditsAvg > 0 {
		out = append(out, add("monthly_turnover", formatAmount(s.MonthlyCreditsAvg)))
	}
	return out
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
