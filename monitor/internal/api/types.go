package api

import "github.com/obsidianstack/pulsewatch/monitor/internal/history"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State        string  `json:"state"`
	CheckCount   int     `json:"check_count"`
	UpCount      int     `json:"up_count"`
	DownCount    int     `json:"down_count"`
	UnknownCount int     `json:"unknown_count"`
	AlertCount   int     `json:"alert_count"`
	UptimePct    float64 `json:"uptime_pct"`
}

// CheckResponse is one check in GET /api/v1/checks or
// GET /api/v1/checks/{id}.
type CheckResponse struct {
	ID           string           `json:"id"`
	Method       string           `json:"method"`
	Target       string           `json:"target"`
	State        string           `json:"state"`
	Previous     string           `json:"previous_state"`
	LastChecked  string           `json:"last_checked"` // RFC3339
	Errored      bool             `json:"errored"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	ResponseCode int              `json:"response_code,omitempty"`
	DurationMS   int64            `json:"duration_ms"`
	CertDaysLeft *int             `json:"cert_days_left,omitempty"`
	UptimePct    float64          `json:"uptime_pct"`
	AlertCount   int              `json:"alert_count"`
	LastAlertID  string           `json:"last_alert_id,omitempty"`
	Diagnostics  []DiagnosticHint `json:"diagnostics"`
	UpdatedAt    string           `json:"updated_at"` // RFC3339
}

// HistoryResponse is the payload for GET /api/v1/checks/{id}/history.
type HistoryResponse struct {
	CheckID string           `json:"check_id"`
	Results []history.Record `json:"results"`

	// Uptime24hPct is the share of up results over the last day, absent
	// when nothing was recorded in that window.
	Uptime24hPct *float64 `json:"uptime_24h_pct,omitempty"`
	Samples24h   int      `json:"samples_24h"`
}

// LogsResponse is the payload for GET /api/v1/logs.
type LogsResponse struct {
	Logs []string `json:"logs"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the stream.
type SnapshotResponse struct {
	Checks      []CheckResponse `json:"checks"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
