// Package logging wires log/slog for the content index.
//
// Records are JSON, written to a size-rotated file (DefaultLogPath) and
// optionally mirrored to stderr. Event names are snake_case
// such as index_batch_committed or stale_lock_cleared.
package logging
