// Package journal keeps the append-only per-check logs and rotates them into
// compressed artifacts.
//
// Layout under the logs root:
//
//	<id>.log                      live log, one JSON line per processed probe
//	compressed/<id>-<ts>.gz       rotated artifact, raw gzip of the live log
//
// Append opens, writes and closes on every call. Rotate compresses a live log
// and truncates it only once the artifact is synced and renamed into place;
// it holds the same per-id lock as Append so no line is lost between the copy
// and the truncate. Artifacts are never opened for writing again.
package journal
