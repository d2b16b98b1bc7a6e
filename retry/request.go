package retry

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"github.com/gaborage/requeue/queue"
	"github.com/gaborage/requeue/trace"
	"github.com/gaborage/requeue/transport"
)

// HeaderRequestID is stamped on every attached request that lacks it. The
// value comes from trace.WithRequestID on the request context, or a new UUID,
// and is sent on every attempt of the request.
const HeaderRequestID = trace.HeaderXRequestID

// Middleware turns a plain *http.Request into a retrying Request.
type Middleware func(req *nethttp.Request) *Request

// Attach validates opts, fills in defaults and returns the middleware.
func Attach(opts Options) (Middleware, error) {
	merged, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return func(req *nethttp.Request) *Request {
		return newRequest(merged, req)
	}, nil
}

// MustAttach is like Attach but panics on invalid options.
func MustAttach(opts Options) Middleware {
	m, err := Attach(opts)
	if err != nil {
		panic(err)
	}
	return m
}

// MakeQueue returns an empty connection queue to share between requests.
// Pass queue.WithName to label its depth metric.
func MakeQueue(opts ...queue.Option) *queue.Queue {
	return queue.New(opts...)
}

// Request is an outbound request with retry and queueing attached. Configure
// it with Set, Timeout and RetryOnConnectionFailure, then call Finish or Do
// exactly once.
type Request struct {
	ctrl     *Controller
	state    *State
	queue    *queue.Queue
	err      error
	finished atomic.Bool
}

func newRequest(opts Options, req *nethttp.Request) *Request {
	r := &Request{ctrl: newController(opts), queue: opts.Queue}

	target, err := targetOf(req)
	if err != nil {
		r.err = err
		return r
	}

	ctx := req.Context()
	r.state = newState(ctx, opts.Transport, target)
	for key, values := range req.Header {
		for _, v := range values {
			r.state.attempt().handle.AddHeader(key, v)
		}
	}
	if req.Header.Get(HeaderRequestID) == "" {
		r.state.setHeader(HeaderRequestID, trace.EnsureRequestID(ctx))
	}
	return r
}

// targetOf reads the stable parts of req. The body is buffered so every
// attempt can resend it.
func targetOf(req *nethttp.Request) (transport.Target, error) {
	if req == nil || req.URL == nil {
		return transport.Target{}, transport.NewValidationError("request and URL are required", "url")
	}

	var body []byte
	switch {
	case req.GetBody != nil:
		rc, err := req.GetBody()
		if err != nil {
			return transport.Target{}, transport.NewValidationError(fmt.Sprintf("failed to read request body: %v", err), "body")
		}
		defer rc.Close()
		if body, err = io.ReadAll(rc); err != nil {
			return transport.Target{}, transport.NewValidationError(fmt.Sprintf("failed to read request body: %v", err), "body")
		}
	case req.Body != nil && req.Body != nethttp.NoBody:
		defer req.Body.Close()
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return transport.Target{}, transport.NewValidationError(fmt.Sprintf("failed to read request body: %v", err), "body")
		}
	}

	method := req.Method
	if method == "" {
		method = nethttp.MethodGet
	}
	return transport.Target{Method: method, URL: req.URL.String(), Body: body}, nil
}

// RetryOnConnectionFailure registers the handler consulted on every
// retryable outcome.
func (r *Request) RetryOnConnectionFailure(h ConnectionErrorHandler) *Request {
	if r.state != nil {
		r.state.setHandler(h)
	}
	return r
}

// Set sets an outgoing header. It is carried unchanged onto every retry.
func (r *Request) Set(key, value string) *Request {
	if r.state != nil {
		r.state.setHeader(key, value)
	}
	return r
}

// Timeout declares the per-attempt timeout reapplied on every retry.
func (r *Request) Timeout(d time.Duration) *Request {
	if r.state != nil {
		r.state.setTimeout(d)
	}
	return r
}

// State exposes the request state, mainly to wait overrides and tests.
func (r *Request) State() *State {
	return r.state
}

// RetryCount returns the current retry counter of this request.
func (r *Request) RetryCount() int {
	return r.ctrl.RetryCount()
}

// Finish sends the request and delivers the terminal outcome to fn. With a
// queue attached the request waits for every request enqueued before it.
// fn may be nil; retries and queue advancement happen regardless.
func (r *Request) Finish(fn Callback) {
	if !r.finished.CompareAndSwap(false, true) {
		if fn != nil {
			fn(nil, transport.NewValidationError("request already finished", "finish"))
		}
		return
	}
	if r.err != nil {
		if fn != nil {
			fn(nil, r.err)
		}
		return
	}

	timeout := r.state.Timeout()
	if r.queue == nil {
		r.ctrl.finishRequest(r.state, fn, timeout)
		return
	}
	r.state.setQueue(r.queue)
	r.queue.Enqueue(&queueEntry{ctrl: r.ctrl, state: r.state, fn: fn, timeout: timeout})
}

// Do is a blocking Finish. It returns when the outcome is delivered or when
// the request context ends, whichever happens first.
func (r *Request) Do() (*transport.Response, error) {
	type result struct {
		resp *transport.Response
		err  error
	}
	done := make(chan result, 1)
	r.Finish(func(resp *transport.Response, err error) {
		done <- result{resp: resp, err: err}
	})

	ctx := context.Background()
	if r.state != nil {
		ctx = r.state.Context()
	}
	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, transport.NewAbortedError("request context ended", ctx.Err())
	}
}

// queueEntry binds a request to its queue slot. The timeout is the one
// declared when the request was enqueued.
type queueEntry struct {
	ctrl    *Controller
	state   *State
	fn      Callback
	timeout time.Duration
}

func (e *queueEntry) Dispatch() {
	e.ctrl.finishRequest(e.state, e.fn, e.timeout)
}
