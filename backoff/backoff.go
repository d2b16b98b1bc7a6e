// Package backoff computes how long to wait before a retried attempt.
//
// The default policy is exponential: round(InitialTimeout * Factor^attempt),
// measured in milliseconds. The attempt number handed to the policy is the
// retry counter of the owning controller, which stops growing once it reaches
// MaxRetries; from that point the wait plateaus instead of growing.
package backoff

import (
	"errors"
	"math"
	nethttp "net/http"
	"time"
)

const (
	// DefaultInitialTimeout is the wait base for attempt 0
	DefaultInitialTimeout = 2000 * time.Millisecond

	// DefaultFactor is the exponential growth factor
	DefaultFactor = 1.4

	// DefaultMaxRetries caps the growth of the retry counter
	DefaultMaxRetries = 5

	// MaxWait is the longest wait any policy computes. Larger results,
	// including ones that overflow int64, are clamped to it.
	MaxWait = time.Duration(math.MaxInt64)
)

// ErrNegativeWait is returned when an override produces a negative duration.
var ErrNegativeWait = errors.New("backoff: wait duration must not be negative")

// Request is the in-flight request a wait function may inspect, e.g. to honour
// a Retry-After header sent by the server.
type Request interface {
	// Header returns the outgoing headers of the request.
	Header() nethttp.Header
	// Timeout returns the declared per-attempt timeout.
	Timeout() time.Duration
	// LastResponse returns the status and headers of the most recent attempt,
	// or ok=false when the attempt produced no response.
	LastResponse() (status int, header nethttp.Header, ok bool)
}

// WaitFunc computes the wait before the next attempt. An error is treated as
// fatal by the retry controller and is never retried.
type WaitFunc func(req Request, attempt int) (time.Duration, error)

// Policy is the immutable wait configuration of one controller.
type Policy struct {
	InitialTimeout time.Duration
	Factor         float64
	MaxRetries     int
	Override       WaitFunc
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialTimeout: DefaultInitialTimeout,
		Factor:         DefaultFactor,
		MaxRetries:     DefaultMaxRetries,
	}
}

// Exponential returns round(InitialTimeout * Factor^attempt) in milliseconds.
func (p Policy) Exponential(attempt int) time.Duration {
	return Exponential(p.InitialTimeout, p.Factor)(attempt)
}

// Wait computes the wait for attempt, delegating to Override when set.
func (p Policy) Wait(req Request, attempt int) (time.Duration, error) {
	if p.Override == nil {
		return p.Exponential(attempt), nil
	}
	d, err := p.Override(req, attempt)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, ErrNegativeWait
	}
	return d, nil
}

// Exponential builds the default attempt->wait function for the given base
// and factor. The product is computed in float nanoseconds and clamped to
// MaxWait, so large attempt counts never wrap to zero or a negative wait.
func Exponential(initial time.Duration, factor float64) func(attempt int) time.Duration {
	ms := float64(initial) / float64(time.Millisecond)
	return func(attempt int) time.Duration {
		ns := math.Round(ms*math.Pow(factor, float64(attempt))) * float64(time.Millisecond)
		if math.IsNaN(ns) || ns >= float64(MaxWait) {
			return MaxWait
		}
		if ns < 0 {
			return 0
		}
		return time.Duration(ns)
	}
}

// Constant is an override that always waits d.
func Constant(d time.Duration) WaitFunc {
	return func(Request, int) (time.Duration, error) {
		return d, nil
	}
}
