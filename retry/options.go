package retry

import (
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"

	"github.com/gaborage/requeue/backoff"
	"github.com/gaborage/requeue/logger"
	"github.com/gaborage/requeue/queue"
	"github.com/gaborage/requeue/transport"
)

// Options configures Attach. Zero-valued fields take their defaults.
type Options struct {
	// InitialTimeout is the wait base of the exponential policy. Default 2s.
	InitialTimeout time.Duration `validate:"gt=0"`

	Backoff BackoffOptions

	// Queue serializes every request produced by the middleware. Nil sends
	// requests independently.
	Queue *queue.Queue

	// Predicate classifies a completed attempt. Default ShouldRetry.
	Predicate Predicate

	// Transport opens attempt handles. Default transport.NewHTTP(nil, Logger).
	Transport transport.Transport

	// Logger receives controller logs. Default logger.Nop().
	Logger logger.Logger
}

// BackoffOptions configures the wait before a retry.
type BackoffOptions struct {
	// Factor is the exponential growth factor. Default 1.4.
	Factor float64 `validate:"gt=0"`

	// Retries caps the growth of the retry counter. Default 5. A pointer so
	// that an explicit zero survives defaulting; see IntPtr.
	Retries *int `validate:"required,gte=0"`

	// Override replaces the exponential policy. It receives the in-flight
	// request, so it can inspect headers or the last response.
	Override backoff.WaitFunc
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

var validate = validator.New()

func defaultOptions() Options {
	return Options{
		InitialTimeout: backoff.DefaultInitialTimeout,
		Backoff: BackoffOptions{
			Factor:  backoff.DefaultFactor,
			Retries: IntPtr(backoff.DefaultMaxRetries),
		},
		Predicate: ShouldRetry,
	}
}

// withDefaults deep-merges the defaults under opts and validates the result.
// The caller's value is not modified.
func (opts Options) withDefaults() (Options, error) {
	merged := opts
	if err := mergo.Merge(&merged, defaultOptions(), mergo.WithoutDereference); err != nil {
		return Options{}, fmt.Errorf("failed to apply default options: %w", err)
	}
	if merged.Logger == nil {
		merged.Logger = logger.Nop()
	}
	if merged.Transport == nil {
		merged.Transport = transport.NewHTTP(nil, merged.Logger)
	}
	if err := validate.Struct(merged); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Options{}, transport.NewValidationError(
				fmt.Sprintf("invalid option value %v (rule: %s)", verrs[0].Value(), verrs[0].Tag()),
				verrs[0].Namespace(),
			)
		}
		return Options{}, err
	}
	return merged, nil
}

// policy builds the immutable wait policy.
func (opts Options) policy() backoff.Policy {
	return backoff.Policy{
		InitialTimeout: opts.InitialTimeout,
		Factor:         opts.Backoff.Factor,
		MaxRetries:     *opts.Backoff.Retries,
		Override:       opts.Backoff.Override,
	}
}
