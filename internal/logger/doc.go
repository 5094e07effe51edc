// Package logger wraps zap for the updater:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing for the --log-level flag,
//   - leveled helpers (Infof, WarnKV, ErrorKV, ...).
//
// Services take a context and log through the logger stored in it, so
// fields attached by callers (channel, entry, attempt) follow every line.
package logger
