package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
)

// Webhook posts alert messages to chat or generic HTTP endpoints.
type Webhook struct {
	targets []config.WebhookConfig
	client  *http.Client
}

// NewWebhook returns a Webhook notifier for targets. Target URLs are resolved
// from the environment on every Send so rotated URLs take effect.
func NewWebhook(targets []config.WebhookConfig, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &Webhook{targets: targets, client: client}
}

// Send delivers message to every target with a resolvable URL.
func (w *Webhook) Send(ctx context.Context, phone, message string) error {
	var errs []error
	for _, wh := range w.targets {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body, _ = json.Marshal(map[string]string{"text": message})
		case "teams":
			body, _ = json.Marshal(map[string]interface{}{
				"@type":      "MessageCard",
				"@context":   "http://schema.org/extensions",
				"themeColor": "FF4F6A",
				"summary":    "pulsewatch alert",
				"title":      "pulsewatch alert",
				"text":       message,
			})
		case "http":
			body, _ = json.Marshal(map[string]string{"phone": phone, "message": message})
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := w.post(ctx, url, body); err != nil {
			errs = append(errs, fmt.Errorf("notify: %s webhook: %w", wh.Type, err))
			continue
		}
		slog.Debug("notify: webhook delivered", "type", wh.Type)
	}
	return errors.Join(errs...)
}

func (w *Webhook) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
