package transport

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/gaborage/requeue/logger"
	obtest "github.com/gaborage/requeue/observability/testing"
)

const (
	testHeaderKey   = "X-API-Key"
	testHeaderValue = "test-key"
)

type outcome struct {
	resp *Response
	err  error
}

// sendAndWait sends h and blocks for its callback.
func sendAndWait(t *testing.T, h Handle) outcome {
	t.Helper()
	done := make(chan outcome, 1)
	h.Send(func(resp *Response, err error) {
		done <- outcome{resp: resp, err: err}
	})
	select {
	case o := <-done:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
		return outcome{}
	}
}

func TestHTTPSendSuccess(t *testing.T) {
	var gotHeader, gotMethod, gotBody string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotHeader = r.Header.Get(testHeaderKey)
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Reply", "yes")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	tr := NewHTTP(nil, logger.Nop())
	h := tr.Open(context.Background(), Target{Method: nethttp.MethodPost, URL: server.URL, Body: []byte(`{"a":1}`)})
	h.SetHeader(testHeaderKey, testHeaderValue)

	o := sendAndWait(t, h)
	require.NoError(t, o.err)
	assert.Equal(t, nethttp.StatusOK, o.resp.StatusCode)
	assert.Equal(t, "ok", string(o.resp.Body))
	assert.Equal(t, "yes", o.resp.Header.Get("X-Reply"))
	assert.Equal(t, testHeaderValue, gotHeader)
	assert.Equal(t, nethttp.MethodPost, gotMethod)
	assert.Equal(t, `{"a":1}`, gotBody)
}

func TestHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer server.Close()

	o := sendAndWait(t, NewHTTP(nil, nil).Open(context.Background(), Target{URL: server.URL}))

	require.Error(t, o.err)
	require.NotNil(t, o.resp, "response is returned alongside the status error")
	assert.True(t, IsErrorType(o.err, HTTPError))
	assert.True(t, IsHTTPStatusError(o.err, nethttp.StatusServiceUnavailable))
	assert.Equal(t, "busy", string(o.resp.Body))
}

func TestHTTPTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(_ nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	h := NewHTTP(nil, nil).Open(context.Background(), Target{URL: server.URL})
	h.SetTimeout(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, h.Timeout())

	o := sendAndWait(t, h)
	assert.True(t, IsErrorType(o.err, TimeoutError), "got %v", o.err)
}

func TestHTTPAbort(t *testing.T) {
	entered := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(_ nethttp.ResponseWriter, r *nethttp.Request) {
		close(entered)
		<-r.Context().Done()
	}))
	defer server.Close()

	h := NewHTTP(nil, nil).Open(context.Background(), Target{URL: server.URL})
	done := make(chan outcome, 1)
	h.Send(func(resp *Response, err error) { done <- outcome{resp, err} })

	<-entered
	h.Abort()

	select {
	case o := <-done:
		assert.True(t, IsErrorType(o.err, AbortedError), "got %v", o.err)
	case <-time.After(5 * time.Second):
		t.Fatal("abort did not complete the attempt")
	}
}

func TestHTTPCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := sendAndWait(t, NewHTTP(nil, nil).Open(ctx, Target{URL: "http://127.0.0.1:1"}))
	assert.True(t, IsErrorType(o.err, AbortedError), "got %v", o.err)
}

func TestHTTPHandleMisuse(t *testing.T) {
	t.Run("abort before send", func(t *testing.T) {
		h := NewHTTP(nil, nil).Open(context.Background(), Target{URL: "http://127.0.0.1:1"})
		h.Abort()
		o := sendAndWait(t, h)
		assert.True(t, IsErrorType(o.err, AbortedError))
	})

	t.Run("send twice", func(t *testing.T) {
		server := httptest.NewServer(nethttp.HandlerFunc(func(nethttp.ResponseWriter, *nethttp.Request) {}))
		defer server.Close()

		h := NewHTTP(nil, nil).Open(context.Background(), Target{URL: server.URL})
		require.NoError(t, sendAndWait(t, h).err)
		assert.True(t, IsErrorType(sendAndWait(t, h).err, ValidationError))
	})

	t.Run("empty url", func(t *testing.T) {
		o := sendAndWait(t, NewHTTP(nil, nil).Open(context.Background(), Target{}))
		assert.True(t, IsErrorType(o.err, ValidationError))
	})
}

func TestHTTPNetworkError(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(nethttp.ResponseWriter, *nethttp.Request) {}))
	url := server.URL
	server.Close()

	o := sendAndWait(t, NewHTTP(nil, nil).Open(context.Background(), Target{URL: url}))
	assert.True(t, IsErrorType(o.err, NetworkError), "got %v", o.err)
}

func TestHeaderIsolation(t *testing.T) {
	var wire nethttp.Header
	server := httptest.NewServer(nethttp.HandlerFunc(func(_ nethttp.ResponseWriter, r *nethttp.Request) {
		wire = r.Header.Clone()
	}))
	defer server.Close()

	tp := obtest.NewTestTraceProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h := NewHTTP(nil, nil, WithTracerProvider(tp)).Open(context.Background(), Target{URL: server.URL})
	h.SetHeader(testHeaderKey, testHeaderValue)
	h.AddHeader("Accept", "text/plain")
	h.AddHeader("Accept", "application/json")

	snapshot := h.Header()
	snapshot.Set(testHeaderKey, "mutated")
	assert.Equal(t, testHeaderValue, h.Header().Get(testHeaderKey), "Header returns a copy")

	require.NoError(t, sendAndWait(t, h).err)
	assert.Equal(t, []string{"text/plain", "application/json"}, wire.Values("Accept"))
	assert.Equal(t, nethttp.Header{
		testHeaderKey: []string{testHeaderValue},
		"Accept":      []string{"text/plain", "application/json"},
	}, h.Header())

	spans := tp.Exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name)
}

func TestRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(nethttp.ResponseWriter, *nethttp.Request) { hits.Add(1) }))
	defer server.Close()

	tr := NewHTTP(nil, nil, WithRateLimit(rate.Every(40*time.Millisecond), 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, sendAndWait(t, tr.Open(context.Background(), Target{URL: server.URL})).err)
	}
	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestErrorHelpers(t *testing.T) {
	assert.False(t, IsErrorType(nil, NetworkError))
	assert.Equal(t, 0, StatusCode(NewNetworkError("x", nil)))
	assert.False(t, IsHTTPStatusError(nil, 0))
	assert.True(t, IsSuccessStatus(204))
	assert.False(t, IsSuccessStatus(301))
	assert.Contains(t, NewTimeoutError("slow", time.Second, nil).Error(), "timeout: 1s")
	assert.Contains(t, NewValidationError("bad", "url").Error(), "field: url")
	assert.Contains(t, NewAbortedError("stop", nil).Error(), "aborted: stop")
}
