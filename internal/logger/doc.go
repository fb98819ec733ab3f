// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Info, InfoKV, ErrorKV, etc.).
//
// Update flows accept a context and extract the logger from it, so every
// line of a run carries the flow name and the product being updated.
package logger
