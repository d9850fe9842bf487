package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
)

const defaultSendTimeout = 10 * time.Second

// Notifier delivers one alert message to one phone number.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// Multi sends to every notifier in order and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, phone, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, phone, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log is the notifier used when no delivery channel is configured.
type Log struct{}

func (Log) Send(_ context.Context, phone, message string) error {
	slog.Warn("notify: alert (no delivery channel configured)",
		"phone", maskPhone(phone), "message", message)
	return nil
}

// FromConfig builds the notifier for cfg. Without any enabled channel it
// returns Log.
func FromConfig(cfg config.NotifierConfig) Notifier {
	client := &http.Client{Timeout: defaultSendTimeout}

	var out Multi
	if cfg.SMS.Enabled {
		out = append(out, NewSMS(cfg.SMS, client))
	}
	if len(cfg.Webhooks) > 0 {
		out = append(out, NewWebhook(cfg.Webhooks, client))
	}

	switch len(out) {
	case 0:
		return Log{}
	case 1:
		return out[0]
	default:
		return out
	}
}

// maskPhone keeps the last four digits for log lines.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(phone)-4:], phone[len(phone)-4:])
	return string(masked)
}
