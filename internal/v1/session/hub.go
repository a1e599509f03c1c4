package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/bus"
	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// Hub owns all live sockets and the room membership maps behind Broadcaster.
// Document rooms are additionally bridged across pods through the redis bus.
type Hub struct {
	gateway *Gateway
	bus     *bus.Service
	podID   string

	mu        sync.Mutex
	conns     map[*Conn]struct{}
	rooms     map[string]map[*Conn]struct{}
	roomStops map[string]context.CancelFunc

	allowedOrigins []string
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewHub wires the gateway core to the transport. busService may be nil for
// single-instance mode.
func NewHub(gateway *Gateway, busService *bus.Service, allowedOrigins []string) *Hub {
	h := &Hub{
		gateway:        gateway,
		bus:            busService,
		podID:          uuid.NewString(),
		conns:          make(map[*Conn]struct{}),
		rooms:          make(map[string]map[*Conn]struct{}),
		roomStops:      make(map[string]context.CancelFunc),
		allowedOrigins: allowedOrigins,
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h
}

// ServeWs upgrades the HTTP request and starts the socket's pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return h.originAllowed(r.Header.Get("Origin"))
		},
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	socketID := uuid.NewString()
	ctx := context.WithValue(context.Background(), logging.CorrelationIDKey, socketID)

	conn := newConn(ctx, socketID, ws, h)

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	metrics.IncConnection()
	logging.Info(ctx, "Socket connected", zap.String("socketId", socketID))

	go conn.writePump()
	go conn.readPump()
}

func (h *Hub) originAllowed(origin string) bool {
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// joinRoom adds a socket to a room, creating the room (and its cross-pod
// subscription) on first join.
func (h *Hub) joinRoom(roomID string, c *Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[roomID] = members
		if isDocumentRoom(roomID) {
			metrics.ActiveRooms.Inc()
			h.subscribeRoomLocked(roomID)
		}
	}
	members[c] = struct{}{}
	return nil
}

func (h *Hub) leaveRoom(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(roomID, c)
}

func (h *Hub) leaveRoomLocked(roomID string, c *Conn) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
		if stop, ok := h.roomStops[roomID]; ok {
			stop()
			delete(h.roomStops, roomID)
		}
		if isDocumentRoom(roomID) {
			metrics.ActiveRooms.Dec()
		}
	}
}

// dropConn removes a closed socket from every room it is still in.
func (h *Hub) dropConn(c *Conn) {
	h.mu.Lock()
	for roomID, members := range h.rooms {
		if _, ok := members[c]; ok {
			h.leaveRoomLocked(roomID, c)
		}
	}
	delete(h.conns, c)
	h.mu.Unlock()
}

// EmitToRoom delivers an event to every local member of the room and, for
// document rooms, publishes it to peer pods.
func (h *Hub) EmitToRoom(roomID string, event string, args ...any) {
	h.emitLocal(roomID, event, args...)

	if h.bus != nil && isDocumentRoom(roomID) {
		if err := h.bus.Publish(h.ctx, roomID, event, args, h.podID); err != nil {
			logging.Warn(h.ctx, "Cross-pod publish failed", zap.String("roomId", roomID), zap.Error(err))
		}
	}
}

func (h *Hub) emitLocal(roomID string, event string, args ...any) {
	h.mu.Lock()
	members := make([]*Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.Unlock()

	for _, c := range members {
		c.Emit(event, args...)
	}
}

// subscribeRoomLocked bridges a document room from peer pods. Caller holds h.mu.
func (h *Hub) subscribeRoomLocked(roomID string) {
	if h.bus == nil {
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	h.roomStops[roomID] = cancel

	h.bus.Subscribe(ctx, roomID, &h.wg, func(payload bus.PubSubPayload) {
		if payload.SenderID == h.podID {
			return // our own publish echoed back
		}
		var rawArgs []json.RawMessage
		if err := json.Unmarshal(payload.Payload, &rawArgs); err != nil {
			logging.Error(h.ctx, "Failed to unmarshal cross-pod args", zap.String("roomId", payload.RoomID), zap.Error(err))
			return
		}
		args := make([]any, len(rawArgs))
		for i, raw := range rawArgs {
			args[i] = raw
		}
		h.emitLocal(payload.RoomID, payload.Event, args...)
	})
}

// DeliverOrdered fans sequenced operations back out to the document room.
// Implements ordering.Deliverer for the in-process orderer.
func (h *Hub) DeliverOrdered(roomID string, messages []protocol.RawOperation) {
	h.EmitToRoom(roomID, protocol.MessageTypeOperation, messages)
}

// Shutdown disconnects every socket and waits for room subscriptions to
// wind down.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down hub - closing all sockets...")

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}

	h.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		logging.Info(ctx, "All sockets closed", zap.Int("count", len(conns)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isDocumentRoom(roomID string) bool {
	return !strings.HasPrefix(roomID, "client#")
}
