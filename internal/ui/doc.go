// Package ui renders shell command lifecycle events as human-readable console
// messages.
//
// When console logging is enabled the relocation pipeline routes every git and
// history-filter invocation through ConsoleCommandEventLogger, keeping the
// command feedback readable while structured telemetry stays on the zap side.
package ui
