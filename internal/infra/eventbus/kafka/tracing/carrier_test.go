package tracing

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier_SetReplaces(t *testing.T) {
	mc := &MessageCarrier{Headers: []sarama.RecordHeader{{Key: []byte("traceparent"), Value: []byte("old")}}}

	mc.Set("traceparent", "new")
	mc.Set("baggage", "k=v")

	assert.Len(t, mc.Headers, 2)
	assert.Equal(t, "new", mc.Get("traceparent"))
	assert.Equal(t, "k=v", mc.Get("baggage"))
	assert.Equal(t, "", mc.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, mc.Keys())
}

func TestTraceContext_RoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	out := &sarama.ProducerMessage{Topic: "isar.telemetry"}
	InjectTraceContext(ctx, out)
	require.NotEmpty(t, out.Headers)

	in := &sarama.ConsumerMessage{Topic: "isar.telemetry"}
	for i := range out.Headers {
		in.Headers = append(in.Headers, &out.Headers[i])
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), in))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsRemote())
}
