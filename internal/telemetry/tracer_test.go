package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProviderWithoutEndpointIsNoop(t *testing.T) {
	cfg := Config{
		ServiceName: "powerstatsd-test",
	}

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if provider.tp != nil {
		t.Error("expected noop provider (tp == nil)")
	}

	// Spans from the global tracer must be non-recording.
	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("expected noop tracer span to be non-recording")
	}
	span.End()
}

func TestNoopProviderShutdown(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected nil shutdown for noop provider, got: %v", err)
	}
}

func TestTracerReturnsUsableTracer(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{}); err != nil {
		t.Fatal(err)
	}

	tracer := Tracer("powerstats-test")
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	if ctx == nil {
		t.Error("expected non-nil context from span start")
	}
}

func TestPollAttributes(t *testing.T) {
	attrs := PollAttributes("hal", 8, 4, 2)
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}

	want := map[attribute.Key]attribute.Value{
		PollBackendKey:   attribute.StringValue("hal"),
		PollMetersKey:    attribute.IntValue(8),
		PollConsumersKey: attribute.IntValue(4),
		PollEntitiesKey:  attribute.IntValue(2),
	}
	for _, kv := range attrs {
		expected, ok := want[kv.Key]
		if !ok {
			t.Errorf("unexpected attribute key %s", kv.Key)
			continue
		}
		if kv.Value != expected {
			t.Errorf("attribute %s: expected %v, got %v", kv.Key, expected, kv.Value)
		}
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("timeout")
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != ErrorKey || !attrs[0].Value.AsBool() {
		t.Errorf("expected error=true, got %v", attrs[0])
	}
	if attrs[1].Value.AsString() != "timeout" {
		t.Errorf("expected error.type=timeout, got %v", attrs[1].Value)
	}
}
