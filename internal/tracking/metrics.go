// Package tracking records OpenTelemetry metrics for request attempts,
// retries, backoff waits, terminal outcomes and connection queue depth.
// Instruments come from the global meter provider and are created lazily.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaborage/requeue/observability"
)

const (
	meterName = "requeue/retry"

	MetricAttempts    = "requeue.client.attempts"
	MetricRetries     = "requeue.client.retries"
	MetricBackoffWait = "requeue.client.backoff.wait"
	MetricOutcomes    = "requeue.client.outcomes"
	MetricQueueDepth  = "requeue.queue.depth"

	AttrMethod     = "http.request.method"
	AttrOutcome    = "outcome"
	AttrErrorType  = "error.type"
	AttrRetryCount = "retry.count"
	AttrQueue      = "queue.name"

	OutcomeDelivered = "delivered"
	OutcomeFatal     = "fatal"
)

var (
	meterOnce sync.Once

	attempts    metric.Int64Counter
	retries     metric.Int64Counter
	backoffWait metric.Float64Histogram
	outcomes    metric.Int64Counter
	queueDepth  metric.Int64UpDownCounter
)

// logMetricError reports instrument creation failures to stderr. Metrics
// never break request processing.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize metric %s: %v\n", metricName, err)
	}
}

func initMeter() {
	meter := otel.Meter(meterName)

	var err error
	attempts, err = observability.CreateCounter(meter, MetricAttempts,
		"Number of attempts put on the wire, including retries",
		metric.WithUnit("{attempt}"))
	logMetricError(MetricAttempts, err)

	retries, err = observability.CreateCounter(meter, MetricRetries,
		"Number of retries scheduled after a retryable outcome",
		metric.WithUnit("{retry}"))
	logMetricError(MetricRetries, err)

	backoffWait, err = observability.CreateHistogram(meter, MetricBackoffWait,
		"Backoff wait inserted before a retried attempt",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 3, 5, 8, 11, 15, 30, 60))
	logMetricError(MetricBackoffWait, err)

	outcomes, err = observability.CreateCounter(meter, MetricOutcomes,
		"Number of logical requests that reached a terminal outcome",
		metric.WithUnit("{request}"))
	logMetricError(MetricOutcomes, err)

	queueDepth, err = observability.CreateUpDownCounter(meter, MetricQueueDepth,
		"Entries held by connection queues, including the one in flight",
		metric.WithUnit("{request}"))
	logMetricError(MetricQueueDepth, err)
}

func ensureMeter() {
	meterOnce.Do(initMeter)
}

// RecordAttempt counts one send.
func RecordAttempt(ctx context.Context, method string) {
	ensureMeter()
	if attempts == nil {
		return
	}
	attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrMethod, method)))
}

// RecordRetry counts a scheduled retry and the wait preceding it.
func RecordRetry(ctx context.Context, method string, retryCount int, wait time.Duration, errorType string) {
	ensureMeter()
	attrs := metric.WithAttributes(
		attribute.String(AttrMethod, method),
		attribute.String(AttrErrorType, errorType),
	)
	if retries != nil {
		retries.Add(ctx, 1, attrs)
	}
	if backoffWait != nil {
		backoffWait.Record(ctx, wait.Seconds(), metric.WithAttributes(
			attribute.String(AttrMethod, method),
			attribute.Int(AttrRetryCount, retryCount),
		))
	}
}

// RecordOutcome counts a terminal delivery.
func RecordOutcome(ctx context.Context, method, outcome string) {
	ensureMeter()
	if outcomes == nil {
		return
	}
	outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMethod, method),
		attribute.String(AttrOutcome, outcome),
	))
}

// QueueDepthChanged adjusts the depth of the named queue by delta.
func QueueDepthChanged(queue string, delta int64) {
	ensureMeter()
	if queueDepth == nil {
		return
	}
	queueDepth.Add(context.Background(), delta, metric.WithAttributes(
		attribute.String(AttrQueue, queue),
	))
}
