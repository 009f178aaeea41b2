// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger writing console entries to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (InfoKV, DebugKV, etc.).
//
// Stdout belongs to command output, so nothing here ever writes to it.
package logger
