// Package records persists video records, their stage log audit trail,
// pipeline runs, and processing artifacts (transcripts, summaries, segments)
// in SQLite. The task queue shares the same database file through DB().
//
// All writes go through busy-retry helpers so concurrent workers degrade to
// short waits instead of surfacing SQLITE_BUSY to callers.
package records
