package config

import (
	"time"

	"github.com/gaborage/requeue/observability"
)

// Config is the file and environment driven configuration of a requeue
// client: retry policy, transport throttling, logging and telemetry.
type Config struct {
	Retry         RetryConfig          `koanf:"retry" yaml:"retry" mapstructure:"retry"`
	Transport     TransportConfig      `koanf:"transport" yaml:"transport" mapstructure:"transport"`
	Log           LogConfig            `koanf:"log" yaml:"log" mapstructure:"log"`
	Observability observability.Config `koanf:"observability" yaml:"observability" mapstructure:"observability"`
}

// RetryConfig holds the wait policy settings.
type RetryConfig struct {
	// InitialTimeout is the base of the exponential wait. Default: 2s.
	InitialTimeout time.Duration `koanf:"initialtimeout" yaml:"initialtimeout" mapstructure:"initialtimeout" validate:"gt=0"`

	Backoff BackoffConfig `koanf:"backoff" yaml:"backoff" mapstructure:"backoff"`

	// HonorRetryAfter waits for the server's Retry-After header when present.
	HonorRetryAfter bool `koanf:"honorretryafter" yaml:"honorretryafter" mapstructure:"honorretryafter"`
}

// BackoffConfig holds the growth settings of the wait policy.
type BackoffConfig struct {
	// Factor is the exponential growth factor. Default: 1.4.
	Factor float64 `koanf:"factor" yaml:"factor" mapstructure:"factor" validate:"gt=0"`

	// Retries caps the growth of the wait, not the number of attempts. Default: 5.
	Retries int `koanf:"retries" yaml:"retries" mapstructure:"retries" validate:"gte=0"`
}

// TransportConfig throttles the HTTP transport.
type TransportConfig struct {
	// RateLimit is the maximum sends per second, retries included. Zero disables throttling.
	RateLimit float64 `koanf:"ratelimit" yaml:"ratelimit" mapstructure:"ratelimit" validate:"gte=0"`

	// Burst is the number of sends allowed at once. Default: 1.
	Burst int `koanf:"burst" yaml:"burst" mapstructure:"burst" validate:"gte=1"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `koanf:"pretty" yaml:"pretty" mapstructure:"pretty"`

	// SensitiveHeaders are redacted in logs in addition to the built-in list.
	SensitiveHeaders []string `koanf:"sensitiveheaders" yaml:"sensitiveheaders" mapstructure:"sensitiveheaders"`
}
