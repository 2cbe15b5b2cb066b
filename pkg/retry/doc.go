// Package retry implements exponential backoff with optional jitter for
// transient failures, such as socket accept errors or broker reconnects.
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return listener.accept()
//	})
//
// Errors wrapped with NonRetryable fail immediately without further
// attempts. Context cancellation aborts both the operation loop and any
// in-progress backoff sleep.
package retry
