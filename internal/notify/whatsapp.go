// Package notify delivers outbound operator notifications through the
// WhatsApp gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
)

// WhatsApp sends plain-text messages through the configured gateway.
// Disabled or unconfigured, Send is a logged no-op so callers never
// branch on notification availability.
type WhatsApp struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	logger *log.Logger
}

func NewWhatsApp(cfg config.WhatsAppConfig) *WhatsApp {
	return &WhatsApp{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: log.New(log.Writer(), "[WHATSAPP] ", log.LstdFlags),
	}
}

func (w *WhatsApp) Enabled() bool {
	return w.cfg.Enabled && w.cfg.GatewayURL != ""
}

// Send posts one message to a recipient.
func (w *WhatsApp) Send(ctx context.Context, to, message string) error {
	if !w.Enabled() {
		w.logger.Printf("disabled, dropping message to %s", to)
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"session_key": w.cfg.SessionKey,
		"to":          to,
		"message":     message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.cfg.GatewayURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return core.WrapError(core.CodeExternalTimeout, err, "WhatsApp gateway unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return core.NewError(core.CodeExternalFailure, "WhatsApp gateway returned %d", resp.StatusCode)
	}
	w.logger.Printf("message delivered to %s", to)
	return nil
}
