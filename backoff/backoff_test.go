package backoff

import (
	"errors"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequest struct {
	header     nethttp.Header
	status     int
	respHeader nethttp.Header
	hasResp    bool
}

func (f *fakeRequest) Header() nethttp.Header { return f.header }
func (f *fakeRequest) Timeout() time.Duration { return 0 }
func (f *fakeRequest) LastResponse() (int, nethttp.Header, bool) {
	return f.status, f.respHeader, f.hasResp
}

func TestExponentialDefaults(t *testing.T) {
	p := DefaultPolicy()
	expected := []time.Duration{2000, 2800, 3920, 5488, 7683, 10756}

	for n, ms := range expected {
		d, err := p.Wait(nil, n)
		require.NoError(t, err)
		assert.Equal(t, ms*time.Millisecond, d, "attempt %d", n)
	}
}

func TestExponentialCustomBase(t *testing.T) {
	wait := Exponential(100*time.Millisecond, 2)
	assert.Equal(t, 100*time.Millisecond, wait(0))
	assert.Equal(t, 800*time.Millisecond, wait(3))
}

func TestExponentialLargeAttemptsClamp(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "below_limit", attempt: 60, want: p.Exponential(60)},
		{name: "attempt_100", attempt: 100, want: MaxWait},
		{name: "attempt_120", attempt: 120, want: MaxWait},
		{name: "attempt_200", attempt: 200, want: MaxWait},
		{name: "attempt_10000", attempt: 10000, want: MaxWait},
	}

	prev := time.Duration(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := p.Wait(nil, tt.attempt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.GreaterOrEqual(t, d, prev)
			prev = d
		})
	}
}

func TestExponentialHugeBaseClamps(t *testing.T) {
	wait := Exponential(time.Hour, 1e12)
	assert.Equal(t, MaxWait, wait(3))
}

func TestOverride(t *testing.T) {
	t.Run("receives request and attempt", func(t *testing.T) {
		req := &fakeRequest{header: nethttp.Header{"X-Tier": []string{"gold"}}}
		p := DefaultPolicy()
		p.Override = func(r Request, attempt int) (time.Duration, error) {
			if r.Header().Get("X-Tier") == "gold" {
				return time.Duration(attempt) * time.Millisecond, nil
			}
			return time.Second, nil
		}

		d, err := p.Wait(req, 3)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Millisecond, d)
	})

	t.Run("error propagates", func(t *testing.T) {
		boom := errors.New("policy exploded")
		p := DefaultPolicy()
		p.Override = func(Request, int) (time.Duration, error) { return 0, boom }

		_, err := p.Wait(nil, 1)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("negative wait rejected", func(t *testing.T) {
		p := DefaultPolicy()
		p.Override = Constant(-time.Second)

		_, err := p.Wait(nil, 1)
		assert.ErrorIs(t, err, ErrNegativeWait)
	})
}

func TestRetryAfter(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	p := DefaultPolicy()
	wait := p.RetryAfter(nil)

	t.Run("delta seconds", func(t *testing.T) {
		req := &fakeRequest{hasResp: true, status: 429, respHeader: nethttp.Header{HeaderRetryAfter: []string{"7"}}}
		d, err := wait(req, 1)
		require.NoError(t, err)
		assert.Equal(t, 7*time.Second, d)
	})

	t.Run("http date", func(t *testing.T) {
		at := fixed.Add(90 * time.Second).Format(nethttp.TimeFormat)
		req := &fakeRequest{hasResp: true, status: 503, respHeader: nethttp.Header{HeaderRetryAfter: []string{at}}}
		d, err := wait(req, 1)
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, d)
	})

	t.Run("huge delta clamps instead of failing", func(t *testing.T) {
		p := DefaultPolicy()
		p.Override = wait
		req := &fakeRequest{hasResp: true, status: 429, respHeader: nethttp.Header{HeaderRetryAfter: []string{"9223372037"}}}
		d, err := p.Wait(req, 1)
		require.NoError(t, err)
		assert.Equal(t, MaxWait, d)
	})

	t.Run("missing header falls back to exponential", func(t *testing.T) {
		req := &fakeRequest{hasResp: true, status: 503, respHeader: nethttp.Header{}}
		d, err := wait(req, 2)
		require.NoError(t, err)
		assert.Equal(t, 3920*time.Millisecond, d)
	})

	t.Run("no response falls back", func(t *testing.T) {
		d, err := wait(&fakeRequest{}, 0)
		require.NoError(t, err)
		assert.Equal(t, 2000*time.Millisecond, d)
	})

	t.Run("custom fallback", func(t *testing.T) {
		d, err := p.RetryAfter(Constant(time.Millisecond))(&fakeRequest{}, 4)
		require.NoError(t, err)
		assert.Equal(t, time.Millisecond, d)
	})
}

func TestParseRetryAfter(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{name: "empty", value: "", ok: false},
		{name: "seconds", value: " 3 ", want: 3 * time.Second, ok: true},
		{name: "negative", value: "-1", ok: false},
		{name: "garbage", value: "soon", ok: false},
		{name: "largest_exact", value: "9223372036", want: 9223372036 * time.Second, ok: true},
		{name: "overflow_boundary", value: "9223372037", want: MaxWait, ok: true},
		{name: "overflow_large", value: "99999999999", want: MaxWait, ok: true},
		{name: "beyond_int64", value: "99999999999999999999", ok: false},
		{name: "past date", value: fixed.Add(-time.Hour).Format(nethttp.TimeFormat), want: 0, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
