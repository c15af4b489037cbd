// Package logging configures structured slog output for amankb.
//
// Logs are JSON lines written to a size-rotated file under ~/.aix/logs/.
// Interactive commands may tee to stderr; the tool server never does,
// because stdout/stderr belong to the protocol stream there.
package logging
