package types

// ErrorKind classifies a failed probe.
type ErrorKind string

const (
	ErrorNetwork ErrorKind = "network"
	ErrorTimeout ErrorKind = "timeout"
)

// Outcome is the result of exactly one probe. Either ResponseCode is set, or
// Errored is true and ErrorKind says why.
type Outcome struct {
	Errored      bool      `json:"errored"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ResponseCode int       `json:"responseCode,omitempty"`
	DurationMS   int64     `json:"durationMs"`

	// CertDaysLeft is set for HTTPS responses: whole days until the peer's
	// leaf certificate expires. Negative once expired.
	CertDaysLeft *int `json:"certDaysLeft,omitempty"`
}

// LogEntry is one line of a check's journal. Entries are written once per
// processed probe and never modified.
type LogEntry struct {
	Check   Check   `json:"check"`
	Outcome Outcome `json:"outcome"`
	State   State   `json:"state"`
	Alert   bool    `json:"alert"`
	AlertID string  `json:"alertId,omitempty"`
	Time    int64   `json:"time"`
}
