package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(t.Context(), Config{Enabled: false, Endpoint: "http://192.0.2.1:4318"})
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
	assert.Equal(t, before, otel.GetTracerProvider())

	shutdown, err = Setup(t.Context(), Config{Enabled: true})
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

func TestSetup_RegistersProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	// Non-routable address; nothing is exported because no spans are ended.
	shutdown, err := Setup(t.Context(), Config{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		Insecure:    true,
		SampleRatio: 0.5,
		ServiceName: "attendance-test",
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
