// Package probe executes one timed HTTP or HTTPS request for a check and
// reduces it to a types.Outcome.
//
// The Executor builds its http.Client once. Redirects are not followed, so
// the outcome is the status code of the first response. The request runs in
// its own goroutine; a single select between its result and the check's
// timeout settles the outcome exactly once, and whichever event loses is
// discarded. Probe never retries and never returns an error: failures are
// data (Outcome.Errored, Outcome.ErrorKind).
//
// For HTTPS responses the days until the peer certificate expires are
// recorded as well.
package probe
