// Package logging provides structured JSON logging with size-based file
// rotation for loreleaf. Logs are written to ~/.loreleaf/logs/ and, in
// debug mode, mirrored to stderr.
//
// MCP serving keeps stdout clean for the protocol stream; file logging
// plus stderr is always safe there.
package logging
