// Package types defines the shared data model of the monitor: the Check
// document kept in the record store, the Outcome of one probe and the
// LogEntry written to a check's journal. JSON field names match the documents
// produced by the external API layer.
package types
