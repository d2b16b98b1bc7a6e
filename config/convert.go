package config

import (
	"golang.org/x/time/rate"

	"github.com/gaborage/requeue/backoff"
	"github.com/gaborage/requeue/logger"
	"github.com/gaborage/requeue/retry"
	"github.com/gaborage/requeue/transport"
)

// Logger builds the logger described by the log section.
func (c *Config) Logger() *logger.ZeroLogger {
	return logger.New(c.Log.Level, c.Log.Pretty).WithSensitiveHeaders(c.Log.SensitiveHeaders...)
}

// RetryOptions converts the retry and transport sections into options for
// retry.Attach. The queue, predicate and handlers stay code-level concerns.
func (c *Config) RetryOptions(log logger.Logger) retry.Options {
	var topts []transport.Option
	if c.Transport.RateLimit > 0 {
		topts = append(topts, transport.WithRateLimit(rate.Limit(c.Transport.RateLimit), c.Transport.Burst))
	}

	opts := retry.Options{
		InitialTimeout: c.Retry.InitialTimeout,
		Backoff: retry.BackoffOptions{
			Factor:  c.Retry.Backoff.Factor,
			Retries: retry.IntPtr(c.Retry.Backoff.Retries),
		},
		Transport: transport.NewHTTP(nil, log, topts...),
		Logger:    log,
	}
	if c.Retry.HonorRetryAfter {
		policy := backoff.Policy{
			InitialTimeout: c.Retry.InitialTimeout,
			Factor:         c.Retry.Backoff.Factor,
			MaxRetries:     c.Retry.Backoff.Retries,
		}
		opts.Backoff.Override = policy.RetryAfter(nil)
	}
	return opts
}
