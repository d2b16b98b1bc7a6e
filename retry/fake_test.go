package retry

import (
	"context"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaborage/requeue/transport"
)

// responder produces the outcome of the n-th send (1-based) across the
// whole fake transport.
type responder func(n int, h *fakeHandle) (*transport.Response, error)

type fakeTransport struct {
	respond responder
	async   bool
	latency time.Duration
	hold    bool

	mu      sync.Mutex
	handles []*fakeHandle
	sends   int
	sentURL []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeTransport(respond responder) *fakeTransport {
	return &fakeTransport{respond: respond}
}

func (f *fakeTransport) Open(ctx context.Context, target transport.Target) transport.Handle {
	h := &fakeHandle{transport: f, ctx: ctx, target: target, header: make(nethttp.Header)}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h
}

func (f *fakeTransport) Handles() []*fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeHandle(nil), f.handles...)
}

func (f *fakeTransport) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeTransport) SentURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentURL...)
}

type fakeHandle struct {
	transport *fakeTransport
	ctx       context.Context
	target    transport.Target

	mu      sync.Mutex
	header  nethttp.Header
	timeout time.Duration
	sent    bool
	aborted bool
	sentHdr nethttp.Header
}

func (h *fakeHandle) Send(cb transport.Callback) {
	f := h.transport
	f.mu.Lock()
	f.sends++
	n := f.sends
	f.sentURL = append(f.sentURL, h.target.URL)
	f.mu.Unlock()

	h.mu.Lock()
	h.sent = true
	h.sentHdr = h.header.Clone()
	h.mu.Unlock()

	run := func() {
		cur := f.inFlight.Add(1)
		for {
			prev := f.maxInFlight.Load()
			if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		if f.latency > 0 {
			time.Sleep(f.latency)
		}
		if err := h.ctx.Err(); err != nil {
			f.inFlight.Add(-1)
			cb(nil, transport.NewAbortedError("request context ended", err))
			return
		}
		resp, err := f.respond(n, h)
		f.inFlight.Add(-1)
		cb(resp, err)
	}

	switch {
	case f.hold:
	case f.async:
		go run()
	default:
		run()
	}
}

func (h *fakeHandle) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = d
}

func (h *fakeHandle) SetHeader(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header.Set(key, value)
}

func (h *fakeHandle) AddHeader(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header.Add(key, value)
}

func (h *fakeHandle) Header() nethttp.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.header.Clone()
}

func (h *fakeHandle) Timeout() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timeout
}

func (h *fakeHandle) Abort() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborted = true
}

func (h *fakeHandle) Aborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

func (h *fakeHandle) SentHeader() nethttp.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sentHdr
}

func status(code int, header nethttp.Header) (*transport.Response, error) {
	if header == nil {
		header = make(nethttp.Header)
	}
	resp := &transport.Response{StatusCode: code, Header: header}
	if code >= 400 {
		return resp, transport.NewHTTPError("request failed", code, nil)
	}
	return resp, nil
}

// failUntil answers with code for the first n sends and 200 afterwards.
func failUntil(n, code int) responder {
	return func(i int, _ *fakeHandle) (*transport.Response, error) {
		if i <= n {
			return status(code, nil)
		}
		return status(nethttp.StatusOK, nil)
	}
}

// manualScheduler captures scheduled retries so tests decide when they fire.
type manualScheduler struct {
	mu      sync.Mutex
	waits   []time.Duration
	pending []func()
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits = append(m.waits, d)
	m.pending = append(m.pending, fn)
}

// fire runs the oldest pending retry. It reports false when none is pending.
func (m *manualScheduler) fire() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	fn()
	return true
}

// drain fires retries until none is pending, up to limit.
func (m *manualScheduler) drain(limit int) int {
	fired := 0
	for fired < limit && m.fire() {
		fired++
	}
	return fired
}

func (m *manualScheduler) Waits() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.waits...)
}

// immediate runs scheduled retries inline without waiting.
func immediate(_ time.Duration, fn func()) {
	fn()
}
