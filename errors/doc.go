// Package errors provides standardized error handling patterns for the logtest service.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// This classification enables intelligent error handling throughout the
// service, letting the listener decide when an accept failure is retryable,
// and letting request workers convert per-request failures into response
// payloads instead of crashing.
//
// # Error Classification
//
//   - Transient: network timeouts, connection issues, busy sessions (retry recommended)
//   - Invalid: malformed request frames, ruleset compilation failures (do not retry)
//   - Fatal: bad service configuration, unrecoverable listener failures (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if sess == nil {
//	    return errors.ErrSessionExpired
//	}
//
// Wrap errors with context for debugging:
//
//	if err := store.Create(token); err != nil {
//	    return errors.Wrap(err, "Dispatcher", "handleRequest", "session creation")
//	}
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    // retry with backoff
//	}
package errors
