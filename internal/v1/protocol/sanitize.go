package protocol

import (
	"math/rand/v2"
	"time"
)

// TraceSpan is one hop in an operation's latency trace.
type TraceSpan struct {
	Action    string  `json:"action"`
	Service   string  `json:"service"`
	Timestamp float64 `json:"timestamp"`
}

// tracingServiceName tags sampled spans on the wire.
const tracingServiceName = "alfred"

// traceSampler decides whether a message gets a sampled tracing span
// appended. 1-in-100 uniform, independent per message. Overridable in tests.
var traceSampler = func() bool {
	return rand.IntN(100) == 0
}

// sanitizedFields is the whitelist projection applied to every inbound op.
// Everything else is dropped silently.
var sanitizedFields = []string{
	"clientSequenceNumber",
	"contents",
	"metadata",
	"referenceSequenceNumber",
	"traces",
	"type",
}

// RawOperation is an inbound operation before sanitization. Payloads are
// opaque; the gateway only inspects structure.
type RawOperation = map[string]any

// SanitizeMessage projects an inbound op to the whitelisted field set and,
// with 1/100 probability, appends a tracing span to its traces array.
func SanitizeMessage(raw RawOperation) RawOperation {
	sanitized := make(RawOperation, len(sanitizedFields))
	for _, field := range sanitizedFields {
		if v, ok := raw[field]; ok {
			sanitized[field] = v
		}
	}

	if traces, ok := sanitized["traces"].([]any); ok && traceSampler() {
		sanitized["traces"] = append(traces, map[string]any{
			"action":    "start",
			"service":   tracingServiceName,
			"timestamp": float64(time.Now().UnixMilli()),
		})
	}

	return sanitized
}

// MessageType extracts the op's type token, or "" when absent.
func MessageType(raw RawOperation) string {
	t, _ := raw["type"].(string)
	return t
}

// MessageTraces extracts the op's traces array as TraceSpans, tolerating
// the loose shapes JSON decoding produces. Returns nil when the op carries
// no traces array.
func MessageTraces(raw RawOperation) []TraceSpan {
	arr, ok := raw["traces"].([]any)
	if !ok {
		return nil
	}

	spans := make([]TraceSpan, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		span := TraceSpan{}
		if action, ok := m["action"].(string); ok {
			span.Action = action
		}
		if service, ok := m["service"].(string); ok {
			span.Service = service
		}
		if ts, ok := m["timestamp"].(float64); ok {
			span.Timestamp = ts
		}
		spans = append(spans, span)
	}
	return spans
}
