package observability

import (
	"fmt"
	"strings"
	"time"
)

const (
	// EndpointStdout is a special endpoint value that outputs to stdout (for local development).
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// CompressionGzip specifies gzip compression for OTLP export.
	CompressionGzip = "gzip"

	// CompressionNone specifies no compression for OTLP export.
	CompressionNone = "none"

	// EnvironmentDevelopment is the default environment name.
	EnvironmentDevelopment = "development"
)

// BoolPtr returns a pointer to the provided bool value.
func BoolPtr(v bool) *bool {
	return &v
}

// Float64Ptr returns a pointer to the provided float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Config defines the configuration for exporting request traces and
// retry metrics. When Enabled is false every operation is a no-op.
type Config struct {
	Enabled     bool          `koanf:"enabled" mapstructure:"enabled"`
	Service     ServiceConfig `koanf:"service" mapstructure:"service"`
	Environment string        `koanf:"environment" mapstructure:"environment"`
	Trace       TraceConfig   `koanf:"trace" mapstructure:"trace"`
	Metrics     MetricsConfig `koanf:"metrics" mapstructure:"metrics"`
}

// ServiceConfig contains service identification metadata.
type ServiceConfig struct {
	// Name is required when observability is enabled.
	Name    string `koanf:"name" mapstructure:"name"`
	Version string `koanf:"version" mapstructure:"version"`
}

// TraceConfig defines configuration for per-attempt spans.
type TraceConfig struct {
	// Enabled: nil applies the default (true when observability is enabled).
	Enabled *bool `koanf:"enabled" mapstructure:"enabled"`

	// Endpoint is "stdout" or an OTLP host:port.
	Endpoint string `koanf:"endpoint" mapstructure:"endpoint"`

	// Protocol is "http" or "grpc". Metrics share it.
	Protocol string `koanf:"protocol" mapstructure:"protocol"`

	Insecure    bool              `koanf:"insecure" mapstructure:"insecure"`
	Headers     map[string]string `koanf:"headers" mapstructure:"headers"`
	Compression string            `koanf:"compression" mapstructure:"compression"`

	Sample SampleConfig `koanf:"sample" mapstructure:"sample"`
	Batch  BatchConfig  `koanf:"batch" mapstructure:"batch"`
	Export ExportConfig `koanf:"export" mapstructure:"export"`
}

// SampleConfig defines sampling configuration for traces.
type SampleConfig struct {
	// Rate is the fraction of traces kept, 0.0 to 1.0. nil applies 1.0;
	// an explicit 0.0 is respected.
	Rate *float64 `koanf:"rate" mapstructure:"rate"`
}

// BatchConfig defines batch processing configuration for traces.
type BatchConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Size    int           `koanf:"size" mapstructure:"size"`
}

// ExportConfig defines export timeout configuration.
type ExportConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

// MetricsConfig defines configuration for the retry metrics reader.
type MetricsConfig struct {
	Enabled  *bool         `koanf:"enabled" mapstructure:"enabled"`
	Endpoint string        `koanf:"endpoint" mapstructure:"endpoint"`
	Interval time.Duration `koanf:"interval" mapstructure:"interval"`
	Export   ExportConfig  `koanf:"export" mapstructure:"export"`
}

// ApplyDefaults sets default values for any config fields that are not specified.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = "unknown"
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	c.applyTraceDefaults()
	c.applyMetricsDefaults()
}

func (c *Config) applyTraceDefaults() {
	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Trace.Enabled == nil {
		c.Trace.Enabled = BoolPtr(true)
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.Endpoint == EndpointStdout {
		c.Trace.Insecure = true
	}
	if c.Trace.Compression == "" {
		c.Trace.Compression = CompressionGzip
	}
	if c.Trace.Sample.Rate == nil {
		c.Trace.Sample.Rate = Float64Ptr(1.0)
	}

	development := c.Environment == EnvironmentDevelopment || c.Trace.Endpoint == EndpointStdout
	if c.Trace.Batch.Timeout == 0 {
		if development {
			c.Trace.Batch.Timeout = 500 * time.Millisecond
		} else {
			c.Trace.Batch.Timeout = 5 * time.Second
		}
	}
	if c.Trace.Batch.Size == 0 {
		c.Trace.Batch.Size = 512
	}
	if c.Trace.Export.Timeout == 0 {
		if development {
			c.Trace.Export.Timeout = 10 * time.Second
		} else {
			c.Trace.Export.Timeout = 60 * time.Second
		}
	}
}

func (c *Config) applyMetricsDefaults() {
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = EndpointStdout
	}
	if c.Enabled && c.Metrics.Enabled == nil {
		c.Metrics.Enabled = BoolPtr(true)
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 10 * time.Second
	}
	if c.Metrics.Export.Timeout == 0 {
		if c.Environment == EnvironmentDevelopment || c.Metrics.Endpoint == EndpointStdout {
			c.Metrics.Export.Timeout = 10 * time.Second
		} else {
			c.Metrics.Export.Timeout = 60 * time.Second
		}
	}
}

// Validate checks the configuration. A disabled configuration is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Service.Name) == "" {
		return ErrMissingServiceName
	}

	switch c.Trace.Protocol {
	case "", ProtocolHTTP, ProtocolGRPC:
	default:
		return fmt.Errorf("trace protocol '%s': %w", c.Trace.Protocol, ErrInvalidProtocol)
	}

	switch c.Trace.Compression {
	case "", CompressionGzip, CompressionNone:
	default:
		return fmt.Errorf("trace compression '%s': %w", c.Trace.Compression, ErrInvalidCompression)
	}

	if rate := c.Trace.Sample.Rate; rate != nil && (*rate < 0 || *rate > 1) {
		return fmt.Errorf("trace sample rate %.2f: %w", *rate, ErrInvalidSampleRate)
	}

	for _, endpoint := range []string{c.Trace.Endpoint, c.Metrics.Endpoint} {
		if endpoint == "" || endpoint == EndpointStdout {
			continue
		}
		// OTLP exporters take host:port; the scheme comes from Insecure.
		if strings.Contains(endpoint, "://") {
			return fmt.Errorf("endpoint '%s' must be host:port: %w", endpoint, ErrInvalidEndpointFormat)
		}
	}
	return nil
}
