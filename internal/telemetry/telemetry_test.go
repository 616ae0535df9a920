package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/storage/memory"
	"github.com/steveyegge/illsync/internal/types"
)

// installRecorders swaps the global providers for in-memory ones.
func installRecorders(t *testing.T) (*tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	rec := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})
	return rec, reader
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestWrapStorageDisabled(t *testing.T) {
	t.Setenv("ILL_OTEL_ENABLED", "")
	inner := memory.New()
	assert.Same(t, inner, WrapStorage(inner).(*memory.MemoryStorage))
}

func TestWrapStorageEnabled(t *testing.T) {
	t.Setenv("ILL_OTEL_ENABLED", "true")
	wrapped := WrapStorage(memory.New())
	_, ok := wrapped.(*InstrumentedStorage)
	assert.True(t, ok, "got %T", wrapped)
}

func TestInstrumentedStorageRecordsSpansAndMetrics(t *testing.T) {
	rec, reader := installRecorders(t)
	ctx := context.Background()
	s := newInstrumentedStorage(memory.New())

	req := &types.Request{Status: "IN_NY", Direction: types.DirectionIncoming, Backend: "Libris", OrderID: "1001"}
	require.NoError(t, s.CreateRequest(ctx, req))
	_, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	_, err = s.GetRequest(ctx, 999)
	require.True(t, errors.Is(err, storage.ErrNotFound))

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "storage.CreateRequest", spans[0].Name())
	assert.Equal(t, "storage.GetRequest", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Equal(t, codes.Error, spans[2].Status().Code)

	assert.Equal(t, int64(3), counterTotal(t, reader, "ill.storage.operations"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "ill.storage.errors"))
}

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("ILL_OTEL_ENABLED", "")
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	require.NoError(t, Init(context.Background(), "illsync", "test"))
	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "noop tracer must not produce real spans")
	span.End()
	Shutdown(context.Background())
	assert.Empty(t, shutdownFns)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestMetricReadersFromEnv(t *testing.T) {
	t.Setenv("ILL_OTEL_STDOUT", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	s := settingsFromEnv()
	assert.True(t, s.stdoutMetrics)
	assert.Equal(t, "collector:4318", s.otlpEndpoint)

	readers, err := metricReaders(context.Background(), exportSettings{stdoutMetrics: true})
	require.NoError(t, err)
	assert.Len(t, readers, 1)
	for _, r := range readers {
		assert.NoError(t, r.Shutdown(context.Background()))
	}

	readers, err = metricReaders(context.Background(), exportSettings{})
	require.NoError(t, err)
	assert.Empty(t, readers)
}
