// Package registry tracks which clients are connected to which document,
// shared across gateway pods through redis.
package registry

import (
	"context"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// ClientRegistry is the client membership collaborator consumed by the
// connect, presence and disconnect paths.
type ClientRegistry interface {
	GetClients(ctx context.Context, tenantID, documentID string) ([]protocol.SignalClient, error)
	AddClient(ctx context.Context, tenantID, documentID, clientID string, client protocol.ClientDescriptor) error
	RemoveClient(ctx context.Context, tenantID, documentID, clientID string) error
}
