// Package logging configures structured slog output for docrag.
//
// Logs are JSON lines written to a size-rotated file under the data directory
// and, for interactive commands, mirrored to stderr. Stdio transports (the MCP
// server) must never log to stdout or stderr, so they use file-only logging.
package logging
