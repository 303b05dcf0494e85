// Package logging assembles structured slog loggers and formatting helpers used
// across shutterbox.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so queue code can tag log lines
// with capture IDs and correlation IDs. Payload bytes are never rendered, only
// their length. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
