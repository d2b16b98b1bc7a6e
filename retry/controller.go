package retry

import (
	"errors"
	"sync"
	"time"

	"github.com/gaborage/requeue/backoff"
	"github.com/gaborage/requeue/internal/tracking"
	"github.com/gaborage/requeue/logger"
	"github.com/gaborage/requeue/transport"
)

// Callback receives the terminal outcome of a logical request.
type Callback = transport.Callback

// Controller drives one logical request: send, classify, wait, reset,
// resend, deliver. Its retry counter is scoped to that request.
type Controller struct {
	policy    backoff.Policy
	predicate Predicate
	logger    logger.Logger

	// schedule runs fn after d. Replaced in tests.
	schedule func(d time.Duration, fn func())

	mu         sync.Mutex
	retryCount int
}

func newController(opts Options) *Controller {
	return &Controller{
		policy:    opts.policy(),
		predicate: opts.Predicate,
		logger:    opts.Logger,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// RetryCount returns the current retry counter.
func (c *Controller) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// bumpRetryCount increments the counter unless it already reached the cap,
// so the computed wait plateaus once the cap is hit.
func (c *Controller) bumpRetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retryCount < c.policy.MaxRetries {
		c.retryCount++
	}
	return c.retryCount
}

func (c *Controller) resetRetryCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount = 0
}

// finishRequest sends the current attempt of s and drives it to a terminal
// outcome. timeout is the declared timeout reapplied on every reset.
func (c *Controller) finishRequest(s *State, fn Callback, timeout time.Duration) {
	a := s.attempt()
	target := s.Target()

	tracking.RecordAttempt(s.Context(), target.Method)
	c.logger.Debug().
		Str("method", target.Method).
		Str("url", target.URL).
		Int("attempt", a.number).
		Msg("sending request")

	a.handle.Send(func(resp *transport.Response, err error) {
		s.record(a, resp, err)
		c.onComplete(s, fn, timeout, resp, err)
	})
}

func (c *Controller) onComplete(s *State, fn Callback, timeout time.Duration, resp *transport.Response, err error) {
	if !c.predicate(resp, err) {
		c.deliver(s, fn, resp, err)
		return
	}

	s.connectionErrorHandler().invoke(err, func(fatal error) {
		if fatal != nil {
			c.logger.Error().
				Err(fatal).
				Str("url", s.Target().URL).
				Msg("connection error handler aborted retries")
			c.deliver(s, fn, resp, &FatalError{Source: SourceHandler, Err: fatal})
			return
		}
		c.scheduleRetry(s, fn, timeout, resp, err)
	})
}

func (c *Controller) scheduleRetry(s *State, fn Callback, timeout time.Duration, resp *transport.Response, cause error) {
	count := c.bumpRetryCount()

	wait, err := c.policy.Wait(s, count)
	if err != nil {
		c.logger.Error().
			Err(err).
			Int("retry_count", count).
			Msg("wait policy failed")
		c.deliver(s, fn, resp, &FatalError{Source: SourceWait, Err: err})
		return
	}

	target := s.Target()
	tracking.RecordRetry(s.Context(), target.Method, count, wait, errorType(resp, cause))
	c.logger.Warn().
		Err(cause).
		Str("url", target.URL).
		Int("attempt", s.Attempt()).
		Int("retry_count", count).
		Dur("wait", wait).
		Msg("retryable outcome, scheduling retry")

	c.schedule(wait, func() {
		s.reset(timeout)
		c.finishRequest(s, fn, timeout)
	})
}

// deliver ends the request: reset the counter, hand the outcome to fn, then
// let the next queued request go.
func (c *Controller) deliver(s *State, fn Callback, resp *transport.Response, err error) {
	c.resetRetryCount()

	outcome := tracking.OutcomeDelivered
	if IsFatal(err) {
		outcome = tracking.OutcomeFatal
	}
	tracking.RecordOutcome(s.Context(), s.Target().Method, outcome)

	event := c.logger.Debug().Str("url", s.Target().URL).Int("attempts", s.Attempt())
	if resp != nil {
		event = event.Int("status", resp.StatusCode)
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("request delivered")

	if fn != nil {
		fn(resp, err)
	}
	if q := s.linkedQueue(); q != nil {
		q.Advance()
	}
}

func errorType(resp *transport.Response, err error) string {
	var clientErr transport.ClientError
	switch {
	case errors.As(err, &clientErr):
		return string(clientErr.Type())
	case resp != nil:
		return string(transport.HTTPError)
	case err != nil:
		return "other"
	}
	return "none"
}
