// Package logging assembles the structured slog loggers used across Lectern.
//
// It owns the console and JSON handlers, wires size-based file rotation, and
// exposes context-aware helpers so pipeline code automatically tags log lines
// with video IDs, run IDs, stages, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
