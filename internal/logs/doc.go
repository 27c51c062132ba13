// Package logs provides file tailing with offset bookkeeping for the CLI
// and the daemon's LogTail endpoint.
//
// It reads log files with bounded memory, supports a negative offset for
// "last N lines", and polls in follow mode until the caller's wait window or
// context closes.
package logs
