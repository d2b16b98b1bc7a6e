// Package transport is the collaborator that actually talks to the remote
// endpoint. The retry controller only opens handles, configures them, sends
// them once and aborts them; it never inspects the wire protocol.
package transport

import (
	"context"
	nethttp "net/http"
	"time"
)

// Target is the stable part of an outbound request that every attempt reuses.
type Target struct {
	Method string
	URL    string
	Body   []byte
}

// Response is a fully read response of one attempt.
type Response struct {
	StatusCode int
	Header     nethttp.Header
	Body       []byte
	Elapsed    time.Duration
}

// Callback receives the outcome of a single Send. It is invoked exactly once.
type Callback func(resp *Response, err error)

// Handle is one attempt's connection to the endpoint. A handle is sent at
// most once; a retry opens a fresh handle.
type Handle interface {
	// Send dispatches the attempt and returns immediately; cb fires on completion.
	Send(cb Callback)
	// SetTimeout sets the per-attempt timeout; zero disables it.
	SetTimeout(d time.Duration)
	// SetHeader sets an outgoing header, replacing existing values.
	SetHeader(key, value string)
	// AddHeader appends a value to an outgoing header.
	AddHeader(key, value string)
	// Header returns a copy of the outgoing headers.
	Header() nethttp.Header
	// Timeout returns the per-attempt timeout.
	Timeout() time.Duration
	// Abort cancels the attempt. Aborting an idle or finished handle releases it.
	Abort()
}

// Transport opens handles bound to the caller's context.
type Transport interface {
	Open(ctx context.Context, target Target) Handle
}
