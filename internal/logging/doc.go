// Package logging configures the process-wide slog logger.
//
// Records go to stderr: text when stderr is a terminal, JSON otherwise. When
// a log file is configured, JSON records are also written to a size-rotated
// file next to it.
package logging
