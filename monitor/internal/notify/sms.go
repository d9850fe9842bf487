package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
)

const (
	phoneLength   = 10
	maxMessageLen = 1600
)

// ErrInvalidRecipient is returned for phone numbers the gateway cannot take.
var ErrInvalidRecipient = errors.New("notify: invalid phone number")

// ErrInvalidMessage is returned for empty or oversized messages.
var ErrInvalidMessage = errors.New("notify: invalid message")

// SMS sends messages through a Twilio-compatible Messages endpoint.
type SMS struct {
	cfg     config.SMSConfig
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSMS returns an SMS notifier. The auth token is resolved from the
// environment once, at construction.
func NewSMS(cfg config.SMSConfig, client *http.Client) *SMS {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	limit, burst := rate.Limit(cfg.RatePerSecond), cfg.Burst
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &SMS{
		cfg:     cfg,
		token:   cfg.AuthToken(),
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Send posts message to countryPrefix+phone. It waits for the rate limiter
// and fails if ctx ends first.
func (s *SMS) Send(ctx context.Context, phone, message string) error {
	phone = strings.TrimSpace(phone)
	if len(phone) != phoneLength {
		return fmt.Errorf("%w: want %d characters, got %d", ErrInvalidRecipient, phoneLength, len(phone))
	}
	message = strings.TrimSpace(message)
	if n := utf8.RuneCountInString(message); n == 0 || n > maxMessageLen {
		return fmt.Errorf("%w: length %d", ErrInvalidMessage, n)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: sms rate limit: %w", err)
	}

	form := url.Values{}
	form.Set("From", s.cfg.FromPhone)
	form.Set("To", s.cfg.CountryPrefix+phone)
	form.Set("Body", message)

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") +
		"/2010-04-01/Accounts/" + url.PathEscape(s.cfg.AccountSID) + "/Messages.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: sms build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("notify: sms gateway returned HTTP %d: %s", resp.StatusCode, gatewayMessage(resp.Body))
	}
	return nil
}

// gatewayMessage extracts the "message" field of an error body, if any.
func gatewayMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return "no detail"
	}
	return body.Message
}
