// Package cleanup removes stale staging files. A Sweeper deletes working
// files older than the configured age, and a Scheduler runs sweeps on an
// interval while the daemon is up.
package cleanup
