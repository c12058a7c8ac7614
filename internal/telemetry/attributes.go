package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the exporter.
const (
	// Poll attributes
	PollBackendKey   = "poll.backend"
	PollMetersKey    = "poll.meters"
	PollConsumersKey = "poll.consumers"
	PollEntitiesKey  = "poll.entities"
	PollTriggerKey   = "poll.trigger"

	// Hub attributes
	HubServiceKey = "hub.service"
	HubCodeKey    = "hub.code"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// PollAttributes creates span attributes for one poll cycle.
func PollAttributes(backend string, meters, consumers, entities int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PollBackendKey, backend),
		attribute.Int(PollMetersKey, meters),
		attribute.Int(PollConsumersKey, consumers),
		attribute.Int(PollEntitiesKey, entities),
	}
}

// PollTrigger names what started a poll cycle.
func PollTrigger(trigger string) attribute.KeyValue {
	return attribute.String(PollTriggerKey, trigger)
}

// HubAttributes creates span attributes for a hub transaction.
func HubAttributes(service string, code uint32) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HubServiceKey, service),
		attribute.Int64(HubCodeKey, int64(code)),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
