// Package retry augments an outbound HTTP request with automatic
// retry-with-backoff and, optionally, FIFO serialization over a caller-owned
// connection queue.
//
// Usage
//
//	attach, err := retry.Attach(retry.Options{Queue: retry.MakeQueue()})
//	if err != nil { ... }
//	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	attach(httpReq).
//		RetryOnConnectionFailure(retry.Notify(func(err error) { ... })).
//		Finish(func(resp *transport.Response, err error) { ... })
//
// Retry loop
//   - Every completed attempt is classified by the Predicate (default
//     ShouldRetry). Retryable outcomes never reach the caller.
//   - Before each retry the controller's retry counter is incremented, but
//     never past Backoff.Retries. The wait is computed from that counter, so
//     it grows until the cap and then plateaus.
//   - Backoff.Retries does NOT bound the number of attempts. A request that
//     keeps failing retryably is resent forever at the plateaued interval.
//     Bound it in the Predicate, abort through the request context, or use a
//     continuation handler that ends the loop with an error.
//   - A terminal outcome resets the counter, is delivered to the callback,
//     and advances the connection queue when the request was queued.
//
// Connection error handlers
//   - Notify: fire-and-forget, the retry proceeds regardless.
//   - Continuation: the handler decides. next(nil) retries, next(err) ends
//     the request with a *FatalError wrapping err.
//
// A wait override that returns an error also ends the request with a
// *FatalError. Fatal errors are never retried.
package retry
