// Package notify delivers alert text to a phone number.
//
// Notifier is the contract the outcome processor depends on:
// Send(ctx, phone, message) error. Implementations:
//
//   - SMS: a Twilio-compatible REST gateway, rate limited with
//     golang.org/x/time/rate.
//   - Webhook: posts the message to slack, teams or generic http targets.
//   - Multi: fans out to several notifiers and joins their errors.
//   - Log: writes the alert to the structured log only.
//
// FromConfig assembles the notifier described by config.NotifierConfig.
// Callers treat every error as non-fatal; nothing here retries.
package notify
