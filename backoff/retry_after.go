package backoff

import (
	nethttp "net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderRetryAfter is the response header servers use to ask clients to wait.
const HeaderRetryAfter = "Retry-After"

// now is replaced in tests
var now = time.Now

// RetryAfter returns an override that honours the Retry-After header of the
// last response, in delta-seconds or HTTP-date form. Without a usable header
// it defers to fallback; a nil fallback means the default exponential policy
// of p.
func (p Policy) RetryAfter(fallback WaitFunc) WaitFunc {
	if fallback == nil {
		fallback = func(_ Request, attempt int) (time.Duration, error) {
			return p.Exponential(attempt), nil
		}
	}
	return func(req Request, attempt int) (time.Duration, error) {
		if req != nil {
			if _, header, ok := req.LastResponse(); ok {
				if d, ok := ParseRetryAfter(header.Get(HeaderRetryAfter)); ok {
					return d, nil
				}
			}
		}
		return fallback(req, attempt)
	}
}

// ParseRetryAfter parses a Retry-After value. Dates in the past yield zero;
// delays beyond MaxWait are clamped to it.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		if seconds > int64(MaxWait/time.Second) {
			return MaxWait, true
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := nethttp.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now())
	if d < 0 {
		d = 0
	}
	return d, true
}
