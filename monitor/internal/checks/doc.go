// Package checks validates and normalizes check documents read from the
// record store before they are scheduled.
//
// Fields are checked in a fixed order (id, userPhone, protocol, url, method,
// successCodes, timeoutSeconds) and the first violation is returned as a
// *ValidationError. A document that fails is skipped for the cycle.
//
// Normalization: a missing or unrecognised state becomes "unknown", and a
// missing, non-numeric or non-positive lastChecked means "never checked".
package checks
