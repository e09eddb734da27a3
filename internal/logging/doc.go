// Package logging assembles structured slog loggers and formatting helpers used
// across Nexus services.
//
// It owns the console and JSON handlers, picks a format for the current
// terminal, and exposes context-aware helpers so stage code automatically tags
// log lines with job, media and subscription identifiers. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
