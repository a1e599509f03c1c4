package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/auth"
	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
	"github.com/coscribe/collab-gateway/internal/v1/throttle"
)

// handleSubmitOp accepts operation batches from a writer client, sanitizes
// them and hands them to the orderer. Rejections go back as a nack to the
// submitting socket only; nothing reaches the room.
func (c *connection) handleSubmitOp(ctx context.Context, clientID string, batches []any) {
	conn, connected := c.connections[clientID]
	if !connected {
		if _, known := c.roomMap[clientID]; known {
			// The clientId is on this socket but has no orderer
			// connection: a write-capable client that connected
			// read-only, or a reader overstepping its scope.
			if auth.CanWrite(c.scopeMap[clientID]) || auth.CanSummarize(c.scopeMap[clientID]) {
				c.nack(clientID, protocol.NackMessage{
					Code:    http.StatusBadRequest,
					Type:    protocol.NackBadRequest,
					Message: "Readonly client",
				})
			} else {
				c.nack(clientID, protocol.NackMessage{
					Code:    http.StatusForbidden,
					Type:    protocol.NackInvalidScope,
					Message: "Invalid scope",
				})
			}
			return
		}
		c.nack(clientID, protocol.NackMessage{
			Code:    http.StatusBadRequest,
			Type:    protocol.NackBadRequest,
			Message: "Nonexistent client",
		})
		return
	}

	room := c.roomMap[clientID]
	if terr := c.gw.submitGuard.Check(ctx, throttle.SubmitOpKey(clientID, room.TenantID)); terr != nil {
		c.nack(clientID, protocol.NackMessage{
			Code:       terr.Code,
			Type:       protocol.NackThrottling,
			Message:    terr.Message,
			RetryAfter: terr.RetryAfter,
		})
		return
	}

	sanitized := make([]protocol.RawOperation, 0, len(batches))
	for _, batch := range batches {
		for _, raw := range flattenBatch(batch) {
			msg := protocol.SanitizeMessage(raw)
			if protocol.MessageType(msg) == protocol.MessageTypeRoundTrip {
				// Consumed here, never forwarded. Only messages carrying a
				// traces array yield a latency sample.
				if traces := protocol.MessageTraces(msg); traces != nil {
					if err := c.gw.sink.WriteLatencyMetric(ctx, "latency", traces); err != nil {
						logging.Warn(ctx, "Failed to record round trip latency",
							append(room.LogFields(), zap.Error(err))...)
					}
				}
				continue
			}
			sanitized = append(sanitized, msg)
		}
	}

	if len(sanitized) == 0 {
		return
	}

	// Fire and forget: ordering failures surface through the connection's
	// error handler, not as a nack.
	go func() {
		if err := conn.Order(context.Background(), sanitized); err != nil {
			logging.Error(c.ctx, "Failed to submit ops to orderer",
				append(room.LogFields(), zap.String("clientId", clientID), zap.Error(err))...)
		}
	}()

	metrics.OpsForwarded.WithLabelValues(room.TenantID).Add(float64(len(sanitized)))
}

// handleSubmitSignal broadcasts transient signal payloads to the client's
// room. Signals carry no ordering guarantees and skip the orderer entirely.
func (c *connection) handleSubmitSignal(ctx context.Context, clientID string, batches []any) {
	room, known := c.roomMap[clientID]
	if !known {
		c.nack(clientID, protocol.NackMessage{
			Code:    http.StatusBadRequest,
			Type:    protocol.NackBadRequest,
			Message: "Nonexistent client",
		})
		return
	}

	for _, batch := range batches {
		for _, content := range flattenSignalBatch(batch) {
			c.rooms.EmitToRoom(room.ID(), "signal", protocol.SignalMessage{
				ClientID: clientID,
				Content:  content,
			})
			metrics.SignalsBroadcast.Inc()
		}
	}
}

// nack emits a negative acknowledgment to this socket only.
func (c *connection) nack(clientID string, msg protocol.NackMessage) {
	metrics.Nacks.WithLabelValues(string(msg.Type)).Inc()
	logging.Info(c.ctx, "Nacking submission",
		zap.String("clientId", clientID),
		zap.String("nackType", string(msg.Type)),
		zap.String("message", msg.Message))
	c.sock.Emit("nack", "", []protocol.NackMessage{msg})
}

// flattenBatch normalizes one submitOp batch element: a bare object is a
// single op, an array is a list of ops. Anything else is dropped.
func flattenBatch(batch any) []protocol.RawOperation {
	switch v := batch.(type) {
	case map[string]any:
		return []protocol.RawOperation{v}
	case []any:
		out := make([]protocol.RawOperation, 0, len(v))
		for _, elem := range v {
			if m, ok := elem.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// flattenSignalBatch normalizes a submitSignal batch element. Signal
// contents are opaque, so scalars pass through unchanged.
func flattenSignalBatch(batch any) []any {
	if list, ok := batch.([]any); ok {
		return list
	}
	return []any{batch}
}
