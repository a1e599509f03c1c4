package session

// Socket is the transport-side view of one client connection. The gateway
// core only speaks to this interface; production sockets are
// gorilla/websocket connections managed by the Hub, tests use in-memory
// fakes.
type Socket interface {
	// ID identifies the underlying transport connection.
	ID() string
	// Emit sends an event to this socket only.
	Emit(event string, args ...any)
	// Join adds the socket to a broadcast room.
	Join(roomID string) error
	// Leave removes the socket from a broadcast room.
	Leave(roomID string)
	// Disconnect forcibly closes the transport connection, which triggers
	// the disconnect handler exactly once.
	Disconnect()
}

// Broadcaster fans an event out to every socket joined to a room,
// including the sender.
type Broadcaster interface {
	EmitToRoom(roomID string, event string, args ...any)
}
