// Package logging provides structured logging for SoC Hub.
//
// It wraps the standard library's log/slog with configuration-driven
// level, format and output selection, plus default service/version fields
// attached to every record.
package logging
