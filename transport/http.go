package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gaborage/requeue/logger"
)

const tracerName = "requeue/transport"

// HTTP is the net/http backed Transport.
type HTTP struct {
	client         *nethttp.Client
	logger         logger.Logger
	limiter        *rate.Limiter
	tracerProvider trace.TracerProvider
}

var _ Transport = (*HTTP)(nil)

// Option configures an HTTP transport
type Option func(*HTTP)

// WithRateLimit throttles sends to r per second with the given burst. Every
// attempt, including retries, waits for a token before it goes on the wire.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(t *HTTP) {
		t.limiter = rate.NewLimiter(r, burst)
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *HTTP) {
		t.tracerProvider = tp
	}
}

// NewHTTP creates a transport sending through client. A nil client gets a
// fresh *http.Client without a global timeout; per-attempt timeouts are
// applied through the request context instead.
func NewHTTP(client *nethttp.Client, log logger.Logger, opts ...Option) *HTTP {
	if client == nil {
		client = &nethttp.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}
	t := &HTTP{client: client, logger: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open creates an unsent handle for target.
func (t *HTTP) Open(ctx context.Context, target Target) Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	return &httpHandle{
		transport: t,
		ctx:       ctx,
		target:    target,
		header:    make(nethttp.Header),
	}
}

func (t *HTTP) tracer() trace.Tracer {
	if t.tracerProvider != nil {
		return t.tracerProvider.Tracer(tracerName)
	}
	return otel.Tracer(tracerName)
}

type httpHandle struct {
	transport *HTTP
	ctx       context.Context
	target    Target

	mu      sync.Mutex
	header  nethttp.Header
	timeout time.Duration
	cancel  context.CancelFunc
	sent    bool
	aborted bool
}

func (h *httpHandle) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = d
}

func (h *httpHandle) Timeout() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timeout
}

func (h *httpHandle) SetHeader(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header.Set(key, value)
}

func (h *httpHandle) AddHeader(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header.Add(key, value)
}

func (h *httpHandle) Header() nethttp.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.header.Clone()
}

func (h *httpHandle) Abort() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborted = true
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *httpHandle) Send(cb Callback) {
	h.mu.Lock()
	if h.sent {
		h.mu.Unlock()
		go cb(nil, NewValidationError("handle already sent", "handle"))
		return
	}
	h.sent = true
	if h.aborted {
		h.mu.Unlock()
		go cb(nil, NewAbortedError("handle aborted before send", nil))
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	h.cancel = cancel
	header := h.header.Clone()
	timeout := h.timeout
	h.mu.Unlock()

	go func() {
		defer cancel()
		resp, err := h.transport.do(ctx, h.ctx, h.target, header, timeout)
		cb(resp, err)
	}()
}

// do performs one round trip. parent is the caller's context, used to tell
// caller cancellation apart from the per-attempt timeout.
func (t *HTTP) do(ctx, parent context.Context, target Target, header nethttp.Header, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if target.URL == "" {
		return nil, NewValidationError("URL cannot be empty", "url")
	}
	method := target.Method
	if method == "" {
		method = nethttp.MethodGet
	}

	ctx, span := t.tracer().Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target.URL),
		),
	)
	defer span.End()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			cerr := t.classify(ctx, parent, timeout, err)
			span.SetStatus(codes.Error, cerr.Error())
			return nil, cerr
		}
	}

	var body io.Reader
	if target.Body != nil {
		body = bytes.NewReader(target.Body)
	}
	httpReq, err := nethttp.NewRequestWithContext(ctx, method, target.URL, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, NewValidationError(fmt.Sprintf("failed to create HTTP request: %v", err), "url")
	}
	httpReq.Header = header
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	t.logger.Debug().
		Str("direction", "outbound").
		Str("method", method).
		Str("url", target.URL).
		Interface("headers", header).
		Msg("HTTP transport request")

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		cerr := t.classify(ctx, parent, timeout, err)
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		return nil, cerr
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		cerr := t.classify(ctx, parent, timeout, err)
		span.SetStatus(codes.Error, cerr.Error())
		return nil, cerr
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
		Elapsed:    time.Since(start),
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	t.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Elapsed).
		Msg("HTTP transport response")

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, nethttp.StatusText(resp.StatusCode))
		return resp, NewHTTPError(
			fmt.Sprintf("HTTP request failed with status %d", resp.StatusCode),
			resp.StatusCode,
			resp.Body,
		)
	}
	return resp, nil
}

func (t *HTTP) classify(ctx, parent context.Context, timeout time.Duration, err error) ClientError {
	if parent.Err() != nil {
		return NewAbortedError("request context done", parent.Err())
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return NewAbortedError("request aborted", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError("request timeout", timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timeout", timeout, err)
	}
	return NewNetworkError("request execution failed", err)
}
