// Package records is the durable key/value document store used for checks
// (and, by the external API layer, users and tokens).
//
// Each record lives in its own file at <root>/<namespace>/<id> and holds one
// JSON document. Writes never modify a file in place:
//
//   - Create writes a temp file and hard-links it to the final name, so the
//     existence check and the publish are a single syscall and an existing
//     document is never touched.
//   - Update writes a temp file, fsyncs it and renames it over the old one.
//
// Temp files are dot-prefixed and never returned by List. The store does no
// locking of its own; callers serialise writers to the same id.
package records
