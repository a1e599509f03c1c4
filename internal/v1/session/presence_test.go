package session

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

func TestGetClientsBroadcastsRegistryView(t *testing.T) {
	env := newTestEnv(writerClaims())
	c := env.build(t)
	clientID := connectedWriter(t, env, c)

	c.handleGetClients(context.Background(), clientID)

	events := env.rooms.roomEvents("tenant-1/doc-1")
	require.Len(t, events, 2) // join signal + connected_clients
	assert.Equal(t, "connected_clients", events[1].Event)

	clients, ok := events[1].Args[0].([]protocol.SignalClient)
	require.True(t, ok)
	require.Len(t, clients, 1)
	assert.Equal(t, clientID, clients[0].ClientID)
}

func TestGetClientsUnknownClientNacked(t *testing.T) {
	env := newTestEnv(writerClaims())
	c := env.build(t)

	c.handleGetClients(context.Background(), "ghost")

	nack := lastNack(t, env.sock)
	assert.Equal(t, http.StatusBadRequest, nack.Code)
	assert.Equal(t, protocol.NackBadRequest, nack.Type)
	assert.Equal(t, "Nonexistent client", nack.Message)
}

func TestGetClientsRegistryFaultEmitsNothing(t *testing.T) {
	env := newTestEnv(writerClaims())
	c := env.build(t)
	clientID := connectedWriter(t, env, c)

	env.registry.getErr = errBackend
	c.handleGetClients(context.Background(), clientID)

	events := env.rooms.roomEvents("tenant-1/doc-1")
	assert.Len(t, events, 1) // only the join signal
}

func TestPing(t *testing.T) {
	env := newTestEnv(writerClaims())
	c := env.build(t)
	clientID := connectedWriter(t, env, c)

	c.handlePing(context.Background(), clientID)

	events := env.rooms.roomEvents("tenant-1/doc-1")
	require.Len(t, events, 2)
	assert.Equal(t, "pong", events[1].Event)
	assert.Equal(t, clientID, events[1].Args[0])
}

func TestPingUnknownClientNacked(t *testing.T) {
	env := newTestEnv(writerClaims())
	c := env.build(t)

	c.handlePing(context.Background(), "ghost")

	nack := lastNack(t, env.sock)
	assert.Equal(t, protocol.NackBadRequest, nack.Type)
}
