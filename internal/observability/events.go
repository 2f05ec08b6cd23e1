package observability

import "time"

// EventEnvelope is the wire format for events published to the broker.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	EmittedAt time.Time   `json:"emitted_at"`
	Payload   interface{} `json:"payload"`
}

// NewEventEnvelope stamps an envelope with the emission time.
func NewEventEnvelope(eventType, eventName string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		EventType: eventType,
		EventName: eventName,
		EmittedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

// BuildHeaders assembles correlation headers for a published event,
// skipping the ones the caller has no value for.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["x-trace-id"] = traceID
	}
	return headers
}
