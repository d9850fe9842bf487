package types

import "time"

// State is the last known health of a check.
type State string

// Check states. A check that has never been processed is StateUnknown.
const (
	StateUnknown State = "unknown"
	StateUp      State = "up"
	StateDown    State = "down"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateUp, StateDown:
		return true
	}
	return false
}

// NamespaceChecks is the record store namespace holding check documents.
const NamespaceChecks = "checks"

// Check is one monitored endpoint plus its last known state.
//
// State and LastChecked are written only by the outcome processor; every
// other field belongs to the API layer that creates the record.
type Check struct {
	ID             string `json:"id"`
	UserPhone      string `json:"userPhone"`
	Protocol       string `json:"protocol"`
	URL            string `json:"url"`
	Method         string `json:"method"`
	SuccessCodes   []int  `json:"successCodes"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	State          State  `json:"state"`

	// LastChecked is unix milliseconds of the last processed probe.
	// Zero means the check has never been processed.
	LastChecked int64 `json:"lastChecked,omitempty"`
}

// Checked reports whether the check has been processed at least once.
func (c Check) Checked() bool { return c.LastChecked > 0 }

// LastCheckedTime returns LastChecked as a time.Time, or the zero time.
func (c Check) LastCheckedTime() time.Time {
	if !c.Checked() {
		return time.Time{}
	}
	return time.UnixMilli(c.LastChecked).UTC()
}

// Target returns the probe URL, e.g. "https://example.com/health?full=1".
func (c Check) Target() string {
	return c.Protocol + "://" + c.URL
}

// Accepts reports whether code is one of the check's success codes.
func (c Check) Accepts(code int) bool {
	for _, sc := range c.SuccessCodes {
		if sc == code {
			return true
		}
	}
	return false
}
