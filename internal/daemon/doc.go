// Package daemon composes the long-running services behind lecternd: the
// pipeline worker pool, the cleanup schedule, and the single-instance lock.
package daemon
