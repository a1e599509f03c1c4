package registry

import (
	"context"
	"sync"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// MemoryRegistry is the single-instance registry used in tests and when
// redis is disabled.
type MemoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]protocol.ClientDescriptor
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rooms: make(map[string]map[string]protocol.ClientDescriptor),
	}
}

func (m *MemoryRegistry) GetClients(_ context.Context, tenantID, documentID string) ([]protocol.SignalClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[registryKey(tenantID, documentID)]
	clients := make([]protocol.SignalClient, 0, len(room))
	for clientID, desc := range room {
		clients = append(clients, protocol.SignalClient{ClientID: clientID, Client: desc})
	}
	return clients, nil
}

func (m *MemoryRegistry) AddClient(_ context.Context, tenantID, documentID, clientID string, client protocol.ClientDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := registryKey(tenantID, documentID)
	if m.rooms[key] == nil {
		m.rooms[key] = make(map[string]protocol.ClientDescriptor)
	}
	m.rooms[key][clientID] = client
	return nil
}

func (m *MemoryRegistry) RemoveClient(_ context.Context, tenantID, documentID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := registryKey(tenantID, documentID)
	delete(m.rooms[key], clientID)
	if len(m.rooms[key]) == 0 {
		delete(m.rooms, key)
	}
	return nil
}
