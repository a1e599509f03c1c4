package metrics

import (
	"context"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// Sink receives client-reported latency samples extracted from RoundTrip
// messages.
type Sink interface {
	WriteLatencyMetric(ctx context.Context, event string, traces []protocol.TraceSpan) error
}

// LatencySink records round-trip samples into the prometheus histogram.
type LatencySink struct{}

// WriteLatencyMetric observes the span between the earliest and latest
// trace timestamps. Samples with fewer than two spans carry no duration
// and are ignored.
func (LatencySink) WriteLatencyMetric(_ context.Context, _ string, traces []protocol.TraceSpan) error {
	if len(traces) < 2 {
		return nil
	}

	min, max := traces[0].Timestamp, traces[0].Timestamp
	for _, span := range traces[1:] {
		if span.Timestamp < min {
			min = span.Timestamp
		}
		if span.Timestamp > max {
			max = span.Timestamp
		}
	}

	OpRoundTripLatency.Observe((max - min) / 1000)
	return nil
}
