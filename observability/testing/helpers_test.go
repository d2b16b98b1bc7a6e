package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestMeterHelpers(t *testing.T) {
	mp := NewTestMeterProvider()
	defer func() { require.NoError(t, mp.Shutdown(context.Background())) }()

	meter := mp.Meter("test")
	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)
	hist, err := meter.Float64Histogram("test.hist")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("kind", "a")))
	counter.Add(ctx, 3, metric.WithAttributes(attribute.String("kind", "b")))
	hist.Record(ctx, 0.5)
	hist.Record(ctx, 1.5)

	rm := mp.Collect(t)
	RequireMetric(t, rm, "test.counter")
	assert.Equal(t, int64(5), SumInt64(rm, "test.counter"))
	assert.Equal(t, int64(3), SumInt64(rm, "test.counter", attribute.String("kind", "b")))
	assert.Equal(t, int64(0), SumInt64(rm, "missing"))
	assert.Equal(t, uint64(2), HistogramCount(rm, "test.hist"))
	assert.Nil(t, FindMetric(rm, "missing"))
}

func TestTraceHelpers(t *testing.T) {
	tp := NewTestTraceProvider()
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	spans := tp.Exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "op", spans[0].Name)
}
