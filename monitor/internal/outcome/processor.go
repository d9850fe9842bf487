package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// uptimeWindow is the number of recent outcomes used for UptimePct.
const uptimeWindow = 20

// Journal is the log sink for processed probes.
type Journal interface {
	Append(ctx context.Context, id, line string) error
}

// Store persists updated check documents.
type Store interface {
	Update(ctx context.Context, ns, id string, doc any) error
}

// Notifier delivers alert messages.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// Observer receives every successfully persisted Result. Observers must not
// block for long; they run on the check's task goroutine.
type Observer interface {
	Observe(ctx context.Context, r Result)
}

// Result describes one processed probe.
type Result struct {
	// Check is the check as persisted, with the new State and LastChecked.
	Check    types.Check
	Previous types.State
	Outcome  types.Outcome
	Alert    bool
	AlertID  string

	// Notified is true when an alert was delivered without error.
	Notified bool

	// UptimePct is the share of up results over the last uptimeWindow probes.
	UptimePct float64
	Time      time.Time
}

// Processor applies outcomes to checks. It is safe for concurrent use, but
// callers must not process the same check id concurrently.
type Processor struct {
	journal   Journal
	store     Store
	notifier  Notifier
	observers []Observer

	now   func() time.Time // injectable for deterministic tests
	newID func() string

	mu     sync.Mutex
	uptime map[string][]bool
}

// New returns a Processor. notifier may be nil, in which case alerts are
// only logged.
func New(j Journal, s Store, n Notifier, observers ...Observer) *Processor {
	return &Processor{
		journal:   j,
		store:     s,
		notifier:  n,
		observers: observers,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		uptime:    make(map[string][]bool),
	}
}

// NextState returns the state implied by out for c.
func NextState(c types.Check, out types.Outcome) types.State {
	if !out.Errored && c.Accepts(out.ResponseCode) {
		return types.StateUp
	}
	return types.StateDown
}

// ShouldAlert reports whether moving c to next is an alertable transition.
func ShouldAlert(c types.Check, next types.State) bool {
	return c.Checked() && c.State != next
}

// AlertMessage is the text sent to the check owner on a transition.
func AlertMessage(c types.Check, next types.State) string {
	return fmt.Sprintf("Alert: Your check for %s method at %s://%s is currently %q",
		strings.ToUpper(c.Method), c.Protocol, c.URL, string(next))
}

// Process logs, persists and, on a transition, notifies for one outcome. An
// error means the log append or the persist failed; the check is left as it
// was (apart from a possibly written log line) and will be retried on the
// next cycle.
func (p *Processor) Process(ctx context.Context, c types.Check, out types.Outcome) (*Result, error) {
	now := p.now()
	next := NextState(c, out)
	alert := ShouldAlert(c, next)

	var alertID string
	if alert {
		alertID = p.newID()
	}

	// lastChecked never moves backwards, even if the wall clock does.
	checkedAt := now.UnixMilli()
	if checkedAt < c.LastChecked {
		checkedAt = c.LastChecked
	}

	line, err := json.Marshal(types.LogEntry{
		Check:   c,
		Outcome: out,
		State:   next,
		Alert:   alert,
		AlertID: alertID,
		Time:    checkedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("outcome: encode log entry %s: %w", c.ID, err)
	}
	if err := p.journal.Append(ctx, c.ID, string(line)); err != nil {
		return nil, fmt.Errorf("outcome: append log %s: %w", c.ID, err)
	}

	updated := c
	updated.State = next
	updated.LastChecked = checkedAt
	if err := p.store.Update(ctx, types.NamespaceChecks, c.ID, updated); err != nil {
		return nil, fmt.Errorf("outcome: persist %s: %w", c.ID, err)
	}

	res := Result{
		Check:    updated,
		Previous: c.State,
		Outcome:  out,
		Alert:    alert,
		AlertID:  alertID,
		Time:     time.UnixMilli(checkedAt).UTC(),
	}

	if alert {
		res.Notified = p.notify(ctx, updated, alertID)
	}

	res.UptimePct = p.recordUptime(c.ID, next == types.StateUp)

	slog.Debug("outcome: processed",
		"check", c.ID,
		"state", next,
		"previous", c.State,
		"alert", alert,
		"errored", out.Errored,
		"code", out.ResponseCode,
	)

	for _, o := range p.observers {
		o.Observe(ctx, res)
	}
	return &res, nil
}

func (p *Processor) notify(ctx context.Context, c types.Check, alertID string) bool {
	msg := AlertMessage(c, c.State)
	if p.notifier == nil {
		slog.Warn("outcome: alert without notifier", "check", c.ID, "alert_id", alertID, "message", msg)
		return false
	}
	if err := p.notifier.Send(ctx, c.UserPhone, msg); err != nil {
		slog.Error("outcome: notification failed",
			"check", c.ID, "alert_id", alertID, "err", err)
		return false
	}
	slog.Info("outcome: alert sent", "check", c.ID, "alert_id", alertID, "state", c.State)
	return true
}

func (p *Processor) recordUptime(id string, up bool) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.uptime[id]
	if len(h) >= uptimeWindow {
		h = h[1:]
	}
	h = append(h, up)
	p.uptime[id] = h

	var ok int
	for _, s := range h {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(h)) * 100
}
