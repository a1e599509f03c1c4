// Package ordering defines the total-order service consumed by the gateway
// for writer clients, plus an in-process sequencer for tests and
// single-node deployments.
package ordering

import (
	"context"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// Manager hands out the orderer responsible for one document.
type Manager interface {
	GetOrderer(ctx context.Context, tenantID, documentID string) (Orderer, error)
}

// Orderer is the per-document total-order service.
type Orderer interface {
	Connect(ctx context.Context, clientID string, client protocol.ClientDescriptor) (Connection, error)
}

// Connection is one writer's attachment to an orderer. Connect and Order
// complete asynchronously; their failures surface through the error handler
// registered with OnError, not through protocol errors.
type Connection interface {
	ClientID() string
	MaxMessageSize() int
	ServiceConfiguration() protocol.ServiceConfiguration
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Order(ctx context.Context, messages []protocol.RawOperation) error
	OnError(handler func(error))
}

// Deliverer receives ordered operations for fan-out back to a room. The
// session hub implements this.
type Deliverer interface {
	DeliverOrdered(roomID string, messages []protocol.RawOperation)
}
