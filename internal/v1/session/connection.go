package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/ordering"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// connection is the per-socket state: three parallel maps keyed by
// clientId plus the expiration timer. Handlers run serially per socket
// (dispatched from the read pump), so the maps need no locking; timerMu
// only guards the timer pointer, which the async expiration callback races
// with.
type connection struct {
	gw    *Gateway
	sock  Socket
	rooms Broadcaster
	ctx   context.Context

	// connectionsMap: clientId → orderer connection (writers only).
	connections map[string]ordering.Connection
	// roomMap: clientId → room (all successfully connected clients).
	roomMap map[string]protocol.Room
	// scopeMap: clientId → authorized scopes.
	scopeMap map[string][]string

	timerMu         sync.Mutex
	expirationTimer *time.Timer
}

func newConnection(ctx context.Context, gw *Gateway, sock Socket, rooms Broadcaster) *connection {
	return &connection{
		gw:          gw,
		sock:        sock,
		rooms:       rooms,
		ctx:         ctx,
		connections: make(map[string]ordering.Connection),
		roomMap:     make(map[string]protocol.Room),
		scopeMap:    make(map[string][]string),
	}
}

// armExpiration schedules a forced disconnect once the freshest token
// expires. One timer per socket: each successful connect replaces the
// previous deadline, so with multiple clientIds on one socket only the
// last-armed deadline is honored.
func (c *connection) armExpiration(remaining time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.expirationTimer != nil {
		c.expirationTimer.Stop()
	}
	c.expirationTimer = time.AfterFunc(remaining, func() {
		logging.Info(c.ctx, "Token expired, disconnecting socket", zap.String("socketId", c.sock.ID()))
		c.sock.Disconnect()
	})
}

func (c *connection) clearExpiration() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.expirationTimer != nil {
		c.expirationTimer.Stop()
		c.expirationTimer = nil
	}
}

// handleDisconnect drains the per-socket state: tears down orderer
// connections, unregisters every client and announces the departures. It
// waits for all registry removals so graceful shutdown can observe them.
func (c *connection) handleDisconnect(ctx context.Context) {
	c.clearExpiration()

	for clientID, conn := range c.connections {
		logging.Info(ctx, "Disconnecting orderer connection",
			append(c.roomMap[clientID].LogFields(), zap.String("clientId", clientID))...)
		go func(clientID string, conn ordering.Connection) {
			if err := conn.Disconnect(context.Background()); err != nil {
				logging.Error(ctx, "Orderer disconnect failed", zap.String("clientId", clientID), zap.Error(err))
			}
		}(clientID, conn)
	}

	var wg sync.WaitGroup
	for clientID, room := range c.roomMap {
		logging.Info(ctx, "Removing client from room",
			append(room.LogFields(), zap.String("clientId", clientID))...)

		wg.Add(1)
		go func(clientID string, room protocol.Room) {
			defer wg.Done()
			if err := c.gw.registry.RemoveClient(context.Background(), room.TenantID, room.DocumentID, clientID); err != nil {
				logging.Error(ctx, "Failed to remove client from registry",
					append(room.LogFields(), zap.String("clientId", clientID), zap.Error(err))...)
			}
		}(clientID, room)

		c.rooms.EmitToRoom(room.ID(), "signal", protocol.RoomLeaveMessage{ClientID: clientID})
	}
	wg.Wait()

	c.connections = make(map[string]ordering.Connection)
	c.roomMap = make(map[string]protocol.Room)
	c.scopeMap = make(map[string][]string)
}
