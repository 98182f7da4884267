package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/extract"
)

// GSTINProfile is the registry's view of a taxpayer, plus the raw
// response for caching on the case.
type GSTINProfile struct {
	LegalName        string
	TradeName        string
	Constitution     string
	RegistrationDate time.Time
	Pincode          string
	Status           string
	Raw              map[string]interface{}
}

// GSTINClient talks to the GSTIN registry lookup service.
type GSTINClient struct {
	baseURL string
	client  *http.Client
	limiter Limiter
	logger  *log.Logger
}

func NewGSTINClient(baseURL string, timeout time.Duration, limiter Limiter) *GSTINClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GSTINClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  log.New(log.Writer(), "[GSTIN] ", log.LstdFlags),
	}
}

// Enabled reports whether a registry endpoint is configured.
func (c *GSTINClient) Enabled() bool { return c.baseURL != "" }

// Lookup fetches the taxpayer record for a GSTIN.
func (c *GSTINClient) Lookup(ctx context.Context, gstin string) (*GSTINProfile, error) {
	if !c.Enabled() {
		return nil, core.NewError(core.CodeExternalFailure, "GSTIN registry not configured")
	}
	if c.limiter != nil && !c.limiter.Allow("gstin") {
		return nil, core.NewError(core.CodeRateLimited, "GSTIN lookup rate exceeded")
	}

	url := fmt.Sprintf("%s/taxpayer/%s", c.baseURL, gstin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build GSTIN request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.CodeExternalTimeout, err, "GSTIN registry unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.NewError(core.CodeExternalFailure, "GSTIN %s not found in registry", gstin)
	}
	if resp.StatusCode >= 500 {
		return nil, core.NewError(core.CodeExternalTimeout, "GSTIN registry returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, core.NewError(core.CodeExternalFailure, "GSTIN registry rejected request: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read GSTIN response: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.WrapError(core.CodeExternalFailure, err, "malformed GSTIN response")
	}

	p := &GSTINProfile{Raw: raw}
	p.LegalName, _ = raw["legal_name"].(string)
	p.TradeName, _ = raw["trade_name"].(string)
	p.Constitution, _ = raw["constitution"].(string)
	p.Status, _ = raw["status"].(string)
	if addr, ok := raw["address"].(map[string]interface{}); ok {
		p.Pincode, _ = addr["pincode"].(string)
	}
	if reg, ok := raw["registration_date"].(string); ok {
		if t, ok := extract.ParseDate(reg); ok {
			p.RegistrationDate = t
		}
	}

	c.logger.Printf("looked up %s: %s (%s)", gstin, p.LegalName, p.Status)
	return p, nil
}

// constitutionEntity maps registry constitution wording to canonical
// entity types; unknown wording passes through lowercased.
func constitutionEntity(constitution string) string {
	switch c := strings.ToLower(strings.TrimSpace(constitution)); {
	case strings.Contains(c, "private limited"):
		return "private_limited"
	case strings.Contains(c, "public limited"):
		return "public_limited"
	case strings.Contains(c, "llp") || strings.Contains(c, "limited liability"):
		return "llp"
	case strings.Contains(c, "partnership"):
		return "partnership"
	case strings.Contains(c, "proprietor"):
		return "proprietorship"
	case strings.Contains(c, "hindu undivided") || c == "huf":
		return "huf"
	default:
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(constitution)), " ", "_")
	}
}

// Fields converts a profile into external field rows for the assembler.
func (p *GSTINProfile) Fields(caseUUID string) []core.ExtractedField {
	var out []core.ExtractedField
	add := func(name, value string) {
		if value == "" {
			return
		}
		out = append(out, core.ExtractedField{
			CaseUUID: caseUUID, FieldName: name, FieldValue: value,
			Confidence: 1.0, Source: core.SourceExternal,
		})
	}

	add(extract.FieldFullName, p.LegalName)
	if p.Constitution != "" {
		add(extract.FieldEntityType, constitutionEntity(p.Constitution))
	}
	add(extract.FieldPincode, p.Pincode)
	if !p.RegistrationDate.IsZero() {
		add(extract.FieldRegistrationDate, p.RegistrationDate.Format("2006-01-02"))
		vintage := time.Since(p.RegistrationDate).Hours() / 24 / 365.25
		add("vintage_years", fmt.Sprintf("%.2f", vintage))
	}
	return out
}
