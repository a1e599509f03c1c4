package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// envelope frames every event on the wire.
type envelope struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// Conn is one websocket attached to the hub. It implements Socket.
// Inbound events are dispatched serially from readPump, so the per-socket
// handler state needs no locking of its own.
type Conn struct {
	id   string
	ws   wsConnection
	hub  *Hub
	ctx  context.Context
	conn *connection

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	send chan []byte
}

func newConn(ctx context.Context, id string, ws wsConnection, hub *Hub) *Conn {
	c := &Conn{
		id:   id,
		ws:   ws,
		hub:  hub,
		ctx:  ctx,
		send: make(chan []byte, 256),
	}
	c.conn = newConnection(ctx, hub.gateway, c, hub)
	return c
}

func (c *Conn) ID() string { return c.id }

// Emit marshals the event envelope and queues it for the write pump.
func (c *Conn) Emit(event string, args ...any) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		logging.GetLogger().Debug("Skipping send to closed socket", zap.String("socketId", c.id))
		return
	}
	c.mu.RUnlock()

	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			logging.Error(c.ctx, "Failed to marshal event argument", zap.String("event", event), zap.Error(err))
			return
		}
		rawArgs = append(rawArgs, data)
	}

	data, err := json.Marshal(envelope{Event: event, Args: rawArgs})
	if err != nil {
		logging.Error(c.ctx, "Failed to marshal event envelope", zap.String("event", event), zap.Error(err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(c.ctx, "Recovered from panic in Emit", zap.String("socketId", c.id), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(c.ctx, "Socket send channel full or closed", zap.String("socketId", c.id), zap.String("event", event))
	}
}

func (c *Conn) Join(roomID string) error {
	return c.hub.joinRoom(roomID, c)
}

func (c *Conn) Leave(roomID string) {
	c.hub.leaveRoom(roomID, c)
}

// Disconnect closes the send channel, which drives the write pump to send
// a close frame and tear the connection down.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump processes inbound events serially until the transport closes.
func (c *Conn) readPump() {
	defer func() {
		c.conn.handleDisconnect(c.ctx)
		c.hub.dropConn(c)
		c.ws.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn(c.ctx, "Failed to unmarshal event envelope", zap.String("socketId", c.id), zap.Error(err))
			continue
		}

		c.dispatch(c.ctx, env)
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()
	writeWait := 10 * time.Second

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(c.ctx, "error writing message", zap.Error(err))
			return
		}
	}
}

// dispatch routes one inbound event to the per-socket handlers.
func (c *Conn) dispatch(ctx context.Context, env envelope) {
	switch env.Event {
	case "connect_document":
		var req connectRequest
		if len(env.Args) < 1 || json.Unmarshal(env.Args[0], &req) != nil {
			logging.Warn(ctx, "Malformed connect_document envelope", zap.String("socketId", c.id))
			return
		}
		c.conn.handleConnectDocument(ctx, req)

	case "submitOp":
		clientID, batches, ok := decodeSubmitArgs(env.Args)
		if !ok {
			logging.Warn(ctx, "Malformed submitOp envelope", zap.String("socketId", c.id))
			return
		}
		c.conn.handleSubmitOp(ctx, clientID, batches)

	case "submitSignal":
		clientID, batches, ok := decodeSubmitArgs(env.Args)
		if !ok {
			logging.Warn(ctx, "Malformed submitSignal envelope", zap.String("socketId", c.id))
			return
		}
		c.conn.handleSubmitSignal(ctx, clientID, batches)

	case "get_clients":
		clientID, ok := decodeClientIDArg(env.Args)
		if !ok {
			logging.Warn(ctx, "Malformed get_clients envelope", zap.String("socketId", c.id))
			return
		}
		c.conn.handleGetClients(ctx, clientID)

	case "ping":
		clientID, ok := decodeClientIDArg(env.Args)
		if !ok {
			logging.Warn(ctx, "Malformed ping envelope", zap.String("socketId", c.id))
			return
		}
		c.conn.handlePing(ctx, clientID)

	default:
		logging.Warn(ctx, "Unknown event received", zap.String("socketId", c.id), zap.String("event", env.Event))
	}
}

func decodeSubmitArgs(args []json.RawMessage) (string, []any, bool) {
	if len(args) < 2 {
		return "", nil, false
	}
	var clientID string
	if json.Unmarshal(args[0], &clientID) != nil {
		return "", nil, false
	}
	var batches []any
	if json.Unmarshal(args[1], &batches) != nil {
		return "", nil, false
	}
	return clientID, batches, true
}

func decodeClientIDArg(args []json.RawMessage) (string, bool) {
	if len(args) < 1 {
		return "", false
	}
	var clientID string
	if json.Unmarshal(args[0], &clientID) != nil {
		return "", false
	}
	return clientID, true
}
