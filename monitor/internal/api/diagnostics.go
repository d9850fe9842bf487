package api

import (
	"fmt"
	"sort"

	"github.com/obsidianstack/pulsewatch/monitor/internal/status"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// DiagnosticHint is one human-readable note about a check's latest result.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical".
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

// Certificate expiry thresholds in days.
const (
	certCriticalDays = 7
	certWarningDays  = 30
)

// slowShare is the fraction of the timeout budget above which a successful
// probe is reported as slow.
const slowShare = 0.8

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2}

// computeDiagnostics derives hints from an entry, critical first.
func computeDiagnostics(e status.Entry) []DiagnosticHint {
	r := e.Result
	c := r.Check
	out := r.Outcome
	hints := []DiagnosticHint{}

	switch {
	case out.Errored && out.ErrorKind == types.ErrorTimeout:
		hints = append(hints, DiagnosticHint{
			Key:   "timeout",
			Level: "critical",
			Title: "Request timed out",
			Detail: fmt.Sprintf(
				"%s %s did not answer within %ds. The host may be overloaded or "+
					"dropping traffic.",
				c.Method, c.Target(), c.TimeoutSeconds),
		})
	case out.Errored:
		hints = append(hints, DiagnosticHint{
			Key:   "unreachable",
			Level: "critical",
			Title: "Can't reach target",
			Detail: fmt.Sprintf(
				"The request to %s failed before a response arrived: %q. "+
					"Check DNS, the port and any firewall in between.",
				c.Target(), out.ErrorMessage),
		})
	case !c.Accepts(out.ResponseCode):
		hints = append(hints, DiagnosticHint{
			Key:   "unexpected_status",
			Level: "critical",
			Title: fmt.Sprintf("HTTP %d", out.ResponseCode),
			Detail: fmt.Sprintf(
				"%s answered with %d, which is not one of the accepted codes %v.",
				c.Target(), out.ResponseCode, c.SuccessCodes),
		})
	default:
		budget := float64(c.TimeoutSeconds * 1000)
		if budget > 0 && float64(out.DurationMS) >= budget*slowShare {
			v := float64(out.DurationMS)
			hints = append(hints, DiagnosticHint{
				Key:   "slow_response",
				Level: "warning",
				Title: fmt.Sprintf("Slow: %dms", out.DurationMS),
				Detail: fmt.Sprintf(
					"The last response took %dms, close to the %ds timeout. "+
						"A little more latency and this check goes down.",
					out.DurationMS, c.TimeoutSeconds),
				Value: &v,
			})
		}
	}

	if days := out.CertDaysLeft; days != nil {
		v := float64(*days)
		switch {
		case *days < 0:
			hints = append(hints, DiagnosticHint{
				Key:    "cert_expired",
				Level:  "critical",
				Title:  "Certificate expired",
				Detail: fmt.Sprintf("The TLS certificate served by %s expired %d days ago.", c.Target(), -*days),
				Value:  &v,
			})
		case *days <= certCriticalDays:
			hints = append(hints, DiagnosticHint{
				Key:    "cert_expiring",
				Level:  "critical",
				Title:  fmt.Sprintf("Cert expires in %dd", *days),
				Detail: fmt.Sprintf("The TLS certificate served by %s expires in %d days. Renew it now.", c.Target(), *days),
				Value:  &v,
			})
		case *days <= certWarningDays:
			hints = append(hints, DiagnosticHint{
				Key:    "cert_expiring",
				Level:  "warning",
				Title:  fmt.Sprintf("Cert expires in %dd", *days),
				Detail: fmt.Sprintf("The TLS certificate served by %s expires in %d days.", c.Target(), *days),
				Value:  &v,
			})
		}
	}

	if r.UptimePct < 100 && r.Check.State == types.StateUp {
		v := r.UptimePct
		hints = append(hints, DiagnosticHint{
			Key:    "flapping",
			Level:  "info",
			Title:  fmt.Sprintf("%.0f%% recent uptime", r.UptimePct),
			Detail: "The check is up now but failed at least once in its recent window.",
			Value:  &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
