package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func restoreTracerProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevPropagator)
	})
}

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	restoreTracerProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupTracing(context.Background(), "qsoul", "  ")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupTracingInstallsProvider(t *testing.T) {
	restoreTracerProvider(t)

	shutdown, err := SetupTracing(context.Background(), "qsoul-test", "http://127.0.0.1:4318/v1/traces")
	require.NoError(t, err)

	provider, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok, "expected sdk tracer provider, got %T", otel.GetTracerProvider())

	// no spans were started, so shutdown has nothing to export.
	require.NoError(t, shutdown(context.Background()))
	_, span := provider.Tracer("test").Start(context.Background(), "after-shutdown")
	assert.False(t, span.SpanContext().IsValid(), "provider should be shut down")
}
