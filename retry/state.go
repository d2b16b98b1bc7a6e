package retry

import (
	"context"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gaborage/requeue/backoff"
	"github.com/gaborage/requeue/queue"
	"github.com/gaborage/requeue/transport"
)

// attempt is the record of one send. A retry discards it and starts a fresh
// one; only the timeout and headers are carried forward.
type attempt struct {
	number int
	handle transport.Handle
	resp   *transport.Response
	err    error
}

// State is the mutable wrapper around one logical request across all of its
// attempts.
type State struct {
	ctx       context.Context
	transport transport.Transport
	target    transport.Target

	mu      sync.Mutex
	timeout time.Duration
	current *attempt
	handler ConnectionErrorHandler
	queue   *queue.Queue
}

var _ backoff.Request = (*State)(nil)

func newState(ctx context.Context, tr transport.Transport, target transport.Target) *State {
	return &State{
		ctx:       ctx,
		transport: tr,
		target:    target,
		current:   &attempt{number: 1, handle: tr.Open(ctx, target)},
	}
}

// Context returns the caller's context.
func (s *State) Context() context.Context {
	return s.ctx
}

// Target returns the stable method, URL and body.
func (s *State) Target() transport.Target {
	return s.target
}

// Header returns a copy of the outgoing headers of the current attempt.
func (s *State) Header() nethttp.Header {
	return s.attempt().handle.Header()
}

// Timeout returns the declared per-attempt timeout.
func (s *State) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// Attempt returns the 1-based number of the current attempt.
func (s *State) Attempt() int {
	return s.attempt().number
}

// LastResponse returns the status and headers of the most recent completed
// attempt when it produced a response.
func (s *State) LastResponse() (int, nethttp.Header, bool) {
	a := s.attempt()
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.resp == nil {
		return 0, nil, false
	}
	return a.resp.StatusCode, a.resp.Header, true
}

func (s *State) attempt() *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *State) setHeader(key, value string) {
	s.attempt().handle.SetHeader(key, value)
}

func (s *State) setTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	h := s.current.handle
	s.mu.Unlock()
	h.SetTimeout(d)
}

func (s *State) setHandler(h ConnectionErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *State) connectionErrorHandler() ConnectionErrorHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *State) setQueue(q *queue.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = q
}

func (s *State) linkedQueue() *queue.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

// record stores the outcome of a on its attempt record.
func (s *State) record(a *attempt, resp *transport.Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.resp = resp
	a.err = err
}

// reset prepares a resend: it captures the outgoing headers of the previous
// handle, aborts that handle, and opens a fresh one with the declared
// timeout and the captured headers reapplied unchanged.
func (s *State) reset(timeout time.Duration) {
	s.mu.Lock()
	prev := s.current
	s.timeout = timeout
	s.mu.Unlock()

	header := prev.handle.Header()
	prev.handle.Abort()

	next := s.transport.Open(s.ctx, s.target)
	next.SetTimeout(timeout)
	for key, values := range header {
		for _, v := range values {
			next.AddHeader(key, v)
		}
	}

	s.mu.Lock()
	s.current = &attempt{number: prev.number + 1, handle: next}
	s.mu.Unlock()
}
