package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/pulsewatch/monitor/internal/config"
)

type gatewayCall struct {
	path string
	user string
	pass string
	form url.Values
}

func newGateway(t *testing.T, status int) (*httptest.Server, <-chan gatewayCall) {
	t.Helper()
	calls := make(chan gatewayCall, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		calls <- gatewayCall{path: r.URL.Path, user: user, pass: pass, form: r.PostForm}
		w.WriteHeader(status)
		if status >= 400 {
			w.Write([]byte(`{"code":21211,"message":"The 'To' number is not valid."}`)) //nolint:errcheck
		}
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func smsConfig(baseURL string) config.SMSConfig {
	return config.SMSConfig{
		Enabled:       true,
		BaseURL:       baseURL,
		AccountSID:    "AC0001",
		AuthTokenEnv:  "TEST_SMS_TOKEN",
		FromPhone:     "+15550000000",
		CountryPrefix: "+1",
		RatePerSecond: 100,
		Burst:         10,
	}
}

func TestSMS_Send(t *testing.T) {
	t.Setenv("TEST_SMS_TOKEN", "secret-token")
	srv, calls := newGateway(t, http.StatusCreated)

	s := NewSMS(smsConfig(srv.URL), srv.Client())
	if err := s.Send(context.Background(), "5551234567", "Alert: site is down"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	c := <-calls
	if c.path != "/2010-04-01/Accounts/AC0001/Messages.json" {
		t.Errorf("path: got %q", c.path)
	}
	if c.user != "AC0001" || c.pass != "secret-token" {
		t.Errorf("basic auth: got %q/%q", c.user, c.pass)
	}
	if got := c.form.Get("To"); got != "+15551234567" {
		t.Errorf("To: got %q, want %q", got, "+15551234567")
	}
	if got := c.form.Get("From"); got != "+15550000000" {
		t.Errorf("From: got %q", got)
	}
	if got := c.form.Get("Body"); got != "Alert: site is down" {
		t.Errorf("Body: got %q", got)
	}
}

func TestSMS_GatewayError(t *testing.T) {
	srv, _ := newGateway(t, http.StatusBadRequest)

	err := NewSMS(smsConfig(srv.URL), srv.Client()).Send(context.Background(), "5551234567", "hello")
	if err == nil {
		t.Fatal("expected error for HTTP 400, got nil")
	}
	if !strings.Contains(err.Error(), "not valid") {
		t.Errorf("error should carry gateway detail: %v", err)
	}
}

func TestSMS_RejectsBadInput(t *testing.T) {
	srv, calls := newGateway(t, http.StatusCreated)
	s := NewSMS(smsConfig(srv.URL), srv.Client())

	tests := []struct {
		name    string
		phone   string
		message string
		want    error
	}{
		{"short phone", "12345", "hello", ErrInvalidRecipient},
		{"long phone", "555123456789", "hello", ErrInvalidRecipient},
		{"empty message", "5551234567", "   ", ErrInvalidMessage},
		{"huge message", "5551234567", strings.Repeat("x", 1601), ErrInvalidMessage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := s.Send(context.Background(), tc.phone, tc.message); !errors.Is(err, tc.want) {
				t.Errorf("Send: got %v, want %v", err, tc.want)
			}
		})
	}
	if len(calls) != 0 {
		t.Errorf("gateway calls: got %d, want 0", len(calls))
	}
}

func TestSMS_RateLimitHonoursContext(t *testing.T) {
	srv, _ := newGateway(t, http.StatusCreated)
	cfg := smsConfig(srv.URL)
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	s := NewSMS(cfg, srv.Client())

	if err := s.Send(context.Background(), "5551234567", "first"); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Send(ctx, "5551234567", "second"); err == nil {
		t.Fatal("second Send: expected rate limit error, got nil")
	}
}

func TestWebhook_Payloads(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies = map[string]map[string]any{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Errorf("body not JSON: %v", err)
		}
		mu.Lock()
		bodies[r.URL.Path] = m
		mu.Unlock()
	}))
	defer srv.Close()

	t.Setenv("HOOK_SLACK", srv.URL+"/slack")
	t.Setenv("HOOK_TEAMS", srv.URL+"/teams")
	t.Setenv("HOOK_HTTP", srv.URL+"/http")

	w := NewWebhook([]config.WebhookConfig{
		{Type: "slack", URLEnv: "HOOK_SLACK"},
		{Type: "teams", URLEnv: "HOOK_TEAMS"},
		{Type: "http", URLEnv: "HOOK_HTTP"},
		{Type: "http", URLEnv: "HOOK_UNSET"},
	}, srv.Client())

	if err := w.Send(context.Background(), "5551234567", "check down"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := bodies["/slack"]["text"]; got != "check down" {
		t.Errorf("slack text: got %v", got)
	}
	if got := bodies["/teams"]["text"]; got != "check down" {
		t.Errorf("teams text: got %v", got)
	}
	if got := bodies["/teams"]["@type"]; got != "MessageCard" {
		t.Errorf("teams @type: got %v", got)
	}
	if got := bodies["/http"]["phone"]; got != "5551234567" {
		t.Errorf("http phone: got %v", got)
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	t.Setenv("HOOK_BAD", srv.URL)

	w := NewWebhook([]config.WebhookConfig{{Type: "slack", URLEnv: "HOOK_BAD"}}, srv.Client())
	if err := w.Send(context.Background(), "5551234567", "x"); err == nil {
		t.Fatal("expected error for HTTP 502, got nil")
	}
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Send(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestMulti_JoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	a := &stubNotifier{err: errA}
	b := &stubNotifier{}
	m := Multi{a, b}

	err := m.Send(context.Background(), "5551234567", "msg")
	if !errors.Is(err, errA) {
		t.Errorf("Send: got %v, want wrapped errA", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls: got a=%d b=%d, want 1 each", a.calls, b.calls)
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.NotifierConfig{}).(Log); !ok {
		t.Error("empty config: want Log notifier")
	}
	if _, ok := FromConfig(config.NotifierConfig{SMS: config.SMSConfig{Enabled: true}}).(*SMS); !ok {
		t.Error("sms only: want *SMS")
	}
	both := config.NotifierConfig{
		SMS:      config.SMSConfig{Enabled: true},
		Webhooks: []config.WebhookConfig{{Type: "slack", URLEnv: "X"}},
	}
	if m, ok := FromConfig(both).(Multi); !ok || len(m) != 2 {
		t.Errorf("sms + webhook: got %T, want Multi of 2", FromConfig(both))
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("5551234567"); got != "******4567" {
		t.Errorf("maskPhone: got %q, want %q", got, "******4567")
	}
	if got := maskPhone("123"); got != "123" {
		t.Errorf("maskPhone short: got %q", got)
	}
}
