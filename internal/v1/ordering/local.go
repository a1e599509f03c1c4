package ordering

import (
	"context"
	"sync"
	"time"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// LocalManager sequences ops in process. Every document gets a single
// mutex-guarded sequence counter, so ops from concurrent writers are
// totally ordered before delivery.
type LocalManager struct {
	mu        sync.Mutex
	deliverer Deliverer
	docs      map[string]*localDocument
}

func NewLocalManager(deliverer Deliverer) *LocalManager {
	return &LocalManager{
		deliverer: deliverer,
		docs:      make(map[string]*localDocument),
	}
}

// SetDeliverer installs the fan-out target. The hub is built after the
// manager, so startup wires it here before any document exists.
func (m *LocalManager) SetDeliverer(d Deliverer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverer = d
}

func (m *LocalManager) GetOrderer(_ context.Context, tenantID, documentID string) (Orderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room := protocol.Room{TenantID: tenantID, DocumentID: documentID}
	doc, ok := m.docs[room.ID()]
	if !ok {
		doc = &localDocument{
			room:      room,
			deliverer: m.deliverer,
		}
		m.docs[room.ID()] = doc
	}
	return doc, nil
}

type localDocument struct {
	mu        sync.Mutex
	room      protocol.Room
	sequence  int64
	deliverer Deliverer
}

func (d *localDocument) Connect(_ context.Context, clientID string, client protocol.ClientDescriptor) (Connection, error) {
	return &localConnection{doc: d, clientID: clientID}, nil
}

// order stamps sequence numbers under the document lock and hands the batch
// to the deliverer in one piece, preserving batch order.
func (d *localDocument) order(clientID string, messages []protocol.RawOperation) {
	d.mu.Lock()
	stamped := make([]protocol.RawOperation, 0, len(messages))
	now := time.Now().UnixMilli()
	for _, msg := range messages {
		d.sequence++
		out := make(protocol.RawOperation, len(msg)+3)
		for k, v := range msg {
			out[k] = v
		}
		out["sequenceNumber"] = d.sequence
		out["clientId"] = clientID
		out["timestamp"] = now
		stamped = append(stamped, out)
	}
	d.mu.Unlock()

	if d.deliverer != nil && len(stamped) > 0 {
		d.deliverer.DeliverOrdered(d.room.ID(), stamped)
	}
}

type localConnection struct {
	doc      *localDocument
	clientID string

	mu       sync.Mutex
	onError  func(error)
	errFired bool
	closed   bool
}

func (c *localConnection) ClientID() string { return c.clientID }

func (c *localConnection) MaxMessageSize() int {
	return protocol.DefaultServiceConfiguration.MaxMessageSize
}

func (c *localConnection) ServiceConfiguration() protocol.ServiceConfiguration {
	return protocol.DefaultServiceConfiguration
}

func (c *localConnection) Connect(_ context.Context) error { return nil }

func (c *localConnection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *localConnection) Order(_ context.Context, messages []protocol.RawOperation) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		// Disconnect already happened; completions after close are harmless.
		return nil
	}

	c.doc.order(c.clientID, messages)
	return nil
}

// OnError registers a one-shot error handler.
func (c *localConnection) OnError(handler func(error)) {
	c.mu.Lock()
	c.onError = handler
	c.mu.Unlock()
}

func (c *localConnection) fireError(err error) {
	c.mu.Lock()
	handler := c.onError
	fired := c.errFired
	c.errFired = true
	c.mu.Unlock()

	if handler != nil && !fired {
		handler(err)
	}
}
