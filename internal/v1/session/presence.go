package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// handleGetClients answers a presence query with the registry's view of the
// client's room.
func (c *connection) handleGetClients(ctx context.Context, clientID string) {
	room, known := c.roomMap[clientID]
	if !known {
		c.nack(clientID, protocol.NackMessage{
			Code:    http.StatusBadRequest,
			Type:    protocol.NackBadRequest,
			Message: "Nonexistent client",
		})
		return
	}

	clients, err := c.gw.registry.GetClients(ctx, room.TenantID, room.DocumentID)
	if err != nil {
		logging.Error(ctx, "Failed to list room clients",
			append(room.LogFields(), zap.String("clientId", clientID), zap.Error(err))...)
		return
	}

	c.rooms.EmitToRoom(room.ID(), "connected_clients", clients)
}

// handlePing answers a liveness probe from a connected client.
func (c *connection) handlePing(ctx context.Context, clientID string) {
	room, known := c.roomMap[clientID]
	if !known {
		c.nack(clientID, protocol.NackMessage{
			Code:    http.StatusBadRequest,
			Type:    protocol.NackBadRequest,
			Message: "Nonexistent client",
		})
		return
	}

	c.rooms.EmitToRoom(room.ID(), "pong", clientID)
}
