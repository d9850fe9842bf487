// Package outcome turns a probe outcome into the next check state and runs
// the side effects of one processed probe.
//
// State rule: up iff the probe did not error and the response code is one
// of the check's success codes; down otherwise.
//
// Alert rule: alert iff the check had been processed before (lastChecked
// set) and its previous state differs from the new one. The first processed
// probe of a check never alerts.
//
// Side effects of Processor.Process, in order:
//  1. append one LogEntry line to the check's journal
//  2. persist the check with the new state and lastChecked
//  3. on alert, send the notification (failures are logged, never retried)
//  4. hand the Result to observers (status views, history, gRPC health)
//
// A failure in step 1 or 2 abandons the remaining steps, so a persisted
// state always has its log line.
package outcome
