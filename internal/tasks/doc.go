// Package tasks implements the durable stage work queue and the worker pool
// that drains it. Tasks live in the records database; claims are atomic
// single-statement updates so any number of workers can poll safely.
// Running tasks heartbeat on an interval and a reclaim pass requeues work
// whose owner stopped heartbeating, which gives at-least-once execution.
package tasks
