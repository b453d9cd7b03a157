// Package audit keeps a local record of mrcrypt operations.
//
// Every encrypt and decrypt run appends one entry to a JSON Lines file in
// the user's state directory:
//
//	$XDG_STATE_HOME/mrcrypt/audit.jsonl
//
// Each entry records the time (RFC3339 with microseconds, UTC), the local
// user, the operation, the files written and, for encryption, the key and
// regions used.
//
// Audit logging is best-effort. If the log cannot be written the operation
// still succeeds.
//
// Use ReadEntries to load the log. Malformed lines, such as a partial write
// from an interrupted run, are skipped.
package audit
