package checks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/obsidianstack/pulsewatch/pkg/types"
)

// Limits enforced on check documents.
const (
	PhoneLength       = 10
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 5
	minStatusCode     = 100
	maxStatusCode     = 599
)

var (
	protocols = []string{"http", "https"}
	methods   = []string{"GET", "POST", "PUT", "DELETE"}
)

// ValidationError reports the first invalid field of a check document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checks: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate decodes a JSON check document and returns the normalized check.
func Validate(doc []byte) (types.Check, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return types.Check{}, invalid("document", "not a JSON object: %v", err)
	}
	if raw == nil {
		return types.Check{}, invalid("document", "null document")
	}
	return ValidateMap(raw)
}

// ValidateMap validates an already decoded document. Numbers may be
// json.Number or float64.
func ValidateMap(raw map[string]any) (types.Check, error) {
	var (
		c   types.Check
		err error
	)

	if c.ID, err = requireString(raw, "id"); err != nil {
		return types.Check{}, err
	}
	if c.UserPhone, err = requireString(raw, "userPhone"); err != nil {
		return types.Check{}, err
	}
	if len(c.UserPhone) != PhoneLength {
		return types.Check{}, invalid("userPhone", "must be %d characters, got %d", PhoneLength, len(c.UserPhone))
	}
	if c.Protocol, err = requireOneOf(raw, "protocol", protocols); err != nil {
		return types.Check{}, err
	}
	if c.URL, err = requireString(raw, "url"); err != nil {
		return types.Check{}, err
	}
	if c.Method, err = requireOneOf(raw, "method", methods); err != nil {
		return types.Check{}, err
	}
	if c.SuccessCodes, err = requireCodes(raw, "successCodes"); err != nil {
		return types.Check{}, err
	}
	timeout, err := requireInt(raw, "timeoutSeconds")
	if err != nil {
		return types.Check{}, err
	}
	if timeout < MinTimeoutSeconds || timeout > MaxTimeoutSeconds {
		return types.Check{}, invalid("timeoutSeconds", "must be between %d and %d, got %d",
			MinTimeoutSeconds, MaxTimeoutSeconds, timeout)
	}
	c.TimeoutSeconds = int(timeout)

	c.State = types.StateUnknown
	if s, ok := raw["state"].(string); ok && types.State(s).Valid() {
		c.State = types.State(s)
	}
	if ms, ok := number(raw["lastChecked"]); ok && ms > 0 {
		c.LastChecked = int64(ms)
	}
	return c, nil
}

func requireString(raw map[string]any, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", invalid(field, "required")
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, "must not be empty")
	}
	return s, nil
}

func requireOneOf(raw map[string]any, field string, allowed []string) (string, error) {
	s, err := requireString(raw, field)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", invalid(field, "must be one of %s, got %q", strings.Join(allowed, "|"), s)
}

func requireInt(raw map[string]any, field string) (int64, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, invalid(field, "required")
	}
	f, ok := number(v)
	if !ok {
		return 0, invalid(field, "must be a number")
	}
	if f != float64(int64(f)) {
		return 0, invalid(field, "must be a whole number, got %v", f)
	}
	return int64(f), nil
}

func requireCodes(raw map[string]any, field string) ([]int, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return nil, invalid(field, "required")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, invalid(field, "must be an array")
	}
	if len(list) == 0 {
		return nil, invalid(field, "must not be empty")
	}
	codes := make([]int, 0, len(list))
	for i, item := range list {
		f, ok := number(item)
		if !ok || f != float64(int64(f)) {
			return nil, invalid(field, "element %d is not an integer", i)
		}
		if f < minStatusCode || f > maxStatusCode {
			return nil, invalid(field, "element %d out of range: %v", i, f)
		}
		codes = append(codes, int(f))
	}
	return codes, nil
}

// number accepts the numeric forms produced by encoding/json.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
