package copilot

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

// Message is one chat turn in the completion request.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// LLMClient calls an OpenAI-compatible chat completion endpoint.
type LLMClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *log.Logger
}

func NewLLMClient(baseURL, apiKey, model string, timeout time.Duration) *LLMClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
}

// Enabled reports whether a completion endpoint is configured.
func (c *LLMClient) Enabled() bool { return c != nil && c.baseURL != "" }

// Chat sends the conversation and returns the assistant's reply.
func (c *LLMClient) Chat(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.2,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", core.WrapError(core.CodeExternalTimeout, err, "completion endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", core.NewError(core.CodeRateLimited, "completion endpoint rate limited")
	}
	if resp.StatusCode >= 500 {
		return "", core.NewError(core.CodeExternalTimeout, "completion endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", core.NewError(core.CodeExternalFailure, "completion endpoint rejected request: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	var out struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", core.WrapError(core.CodeExternalFailure, err, "malformed completion response")
	}
	if len(out.Choices) == 0 {
		return "", core.NewError(core.CodeExternalFailure, "completion response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
