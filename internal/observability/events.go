package observability

// EventEnvelope wraps an outbound service event published to the topic
// exchange. Service is always stamped so consumers can filter by origin.
type EventEnvelope struct {
	Service   string `json:"service"`
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// NewEnvelope builds an envelope stamped with this service's name.
func NewEnvelope(eventType, eventName string, payload any) EventEnvelope {
	return EventEnvelope{
		Service:   "messenger-service",
		EventType: eventType,
		EventName: eventName,
		Payload:   payload,
	}
}

// BuildHeaders carries request correlation ids onto the published message.
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
