// Package logging builds the process logger.
//
// Loggers are plain *slog.Logger values. New wraps the configured JSON or
// text handler with two layers:
//
//   - request-scoped fields (request_id, correlation_id, actor) are read
//     from the context passed to the *Context logging methods
//   - secrets are redacted before they reach the output, both by attribute
//     name (bypass_token, authorization, ...) and by value pattern
//     (bearer tokens, key material)
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithRequestID(ctx, req.ID)
//	logger.InfoContext(ctx, "request evaluated", "action", "BLOCK")
package logging
