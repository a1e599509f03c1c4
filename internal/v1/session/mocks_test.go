package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coscribe/collab-gateway/internal/v1/auth"
	"github.com/coscribe/collab-gateway/internal/v1/config"
	"github.com/coscribe/collab-gateway/internal/v1/ordering"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
	"github.com/coscribe/collab-gateway/internal/v1/registry"
)

type emittedEvent struct {
	Event string
	Args  []any
}

// fakeSocket is an in-memory Socket recording everything the gateway does
// to it.
type fakeSocket struct {
	mu           sync.Mutex
	id           string
	emitted      []emittedEvent
	joined       []string
	left         []string
	joinErr      error
	disconnected bool
}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{id: id}
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Emit(event string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, emittedEvent{Event: event, Args: args})
}

func (s *fakeSocket) Join(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinErr != nil {
		return s.joinErr
	}
	s.joined = append(s.joined, roomID)
	return nil
}

func (s *fakeSocket) Leave(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, roomID)
}

func (s *fakeSocket) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
}

func (s *fakeSocket) events() []emittedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emittedEvent(nil), s.emitted...)
}

func (s *fakeSocket) lastEvent() (emittedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.emitted) == 0 {
		return emittedEvent{}, false
	}
	return s.emitted[len(s.emitted)-1], true
}

func (s *fakeSocket) isDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// fakeBroadcaster records room emissions.
type fakeBroadcaster struct {
	mu     sync.Mutex
	byRoom map[string][]emittedEvent
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{byRoom: make(map[string][]emittedEvent)}
}

func (b *fakeBroadcaster) EmitToRoom(roomID string, event string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byRoom[roomID] = append(b.byRoom[roomID], emittedEvent{Event: event, Args: args})
}

func (b *fakeBroadcaster) roomEvents(roomID string) []emittedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]emittedEvent(nil), b.byRoom[roomID]...)
}

// fakeValidator returns scripted claims without real token parsing.
type fakeValidator struct {
	claims *auth.TokenClaims
	err    error
}

func (v *fakeValidator) ValidateTokenClaims(_, _, _ string) (*auth.TokenClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

// fakeTenants accepts or rejects every tenant.
type fakeTenants struct {
	err error
}

func (m *fakeTenants) VerifyToken(context.Context, string, string) error { return m.err }

// failingRegistry wraps a real in-memory registry with injectable faults.
type failingRegistry struct {
	inner     registry.ClientRegistry
	getErr    error
	addErr    error
	removeErr error
}

func (r *failingRegistry) GetClients(ctx context.Context, tenantID, documentID string) ([]protocol.SignalClient, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.inner.GetClients(ctx, tenantID, documentID)
}

func (r *failingRegistry) AddClient(ctx context.Context, tenantID, documentID, clientID string, client protocol.ClientDescriptor) error {
	if r.addErr != nil {
		return r.addErr
	}
	return r.inner.AddClient(ctx, tenantID, documentID, clientID, client)
}

func (r *failingRegistry) RemoveClient(ctx context.Context, tenantID, documentID, clientID string) error {
	if r.removeErr != nil {
		return r.removeErr
	}
	return r.inner.RemoveClient(ctx, tenantID, documentID, clientID)
}

// fakeOrdererManager hands out recording connections.
type fakeOrdererManager struct {
	mu      sync.Mutex
	getErr  error
	connErr error
	conns   []*fakeOrdererConn
}

func (m *fakeOrdererManager) GetOrderer(context.Context, string, string) (ordering.Orderer, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m, nil
}

func (m *fakeOrdererManager) Connect(_ context.Context, clientID string, _ protocol.ClientDescriptor) (ordering.Connection, error) {
	if m.connErr != nil {
		return nil, m.connErr
	}
	conn := &fakeOrdererConn{clientID: clientID}
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	return conn, nil
}

func (m *fakeOrdererManager) lastConn() *fakeOrdererConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

type fakeOrdererConn struct {
	mu           sync.Mutex
	clientID     string
	ordered      [][]protocol.RawOperation
	connected    bool
	disconnected bool
	onError      func(error)
}

func (c *fakeOrdererConn) ClientID() string    { return c.clientID }
func (c *fakeOrdererConn) MaxMessageSize() int { return 32 * 1024 }

func (c *fakeOrdererConn) ServiceConfiguration() protocol.ServiceConfiguration {
	cfg := protocol.DefaultServiceConfiguration
	cfg.MaxMessageSize = 32 * 1024
	return cfg
}

func (c *fakeOrdererConn) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeOrdererConn) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeOrdererConn) Order(_ context.Context, messages []protocol.RawOperation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ordered = append(c.ordered, messages)
	return nil
}

func (c *fakeOrdererConn) OnError(handler func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

func (c *fakeOrdererConn) orderedOps() []protocol.RawOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.RawOperation
	for _, batch := range c.ordered {
		out = append(out, batch...)
	}
	return out
}

func (c *fakeOrdererConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// fakeSink records latency writes.
type fakeSink struct {
	mu     sync.Mutex
	events []string
	traces [][]protocol.TraceSpan
}

func (s *fakeSink) WriteLatencyMetric(_ context.Context, event string, traces []protocol.TraceSpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.traces = append(s.traces, traces)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// scriptedLimiter returns a fixed error for every increment.
type scriptedLimiter struct {
	err error
}

func (l *scriptedLimiter) IncrementCount(context.Context, string) error { return l.err }

// testEnv bundles the fakes wired into one gateway + connection under test.
type testEnv struct {
	sock     *fakeSocket
	rooms    *fakeBroadcaster
	registry *failingRegistry
	orderers *fakeOrdererManager
	sink     *fakeSink
	tenants  *fakeTenants
	deps     GatewayDeps
	cfg      *config.Config
}

func newTestEnv(claims *auth.TokenClaims) *testEnv {
	env := &testEnv{
		sock:     newFakeSocket("socket-1"),
		rooms:    newFakeBroadcaster(),
		registry: &failingRegistry{inner: registry.NewMemoryRegistry()},
		orderers: &fakeOrdererManager{},
		sink:     &fakeSink{},
		tenants:  &fakeTenants{},
	}
	env.deps = GatewayDeps{
		Validator: &fakeValidator{claims: claims},
		Tenants:   env.tenants,
		Registry:  env.registry,
		Orderers:  env.orderers,
		Sink:      env.sink,
	}
	env.cfg = &config.Config{
		MaxClientsPerDocument: config.DefaultMaxClientsPerDocument,
		MaxTokenLifetimeSec:   config.DefaultMaxTokenLifetimeSec,
	}
	return env
}

func (env *testEnv) build(t *testing.T) *connection {
	t.Helper()
	gw := NewGateway(env.deps, env.cfg)
	return newConnection(context.Background(), gw, env.sock, env.rooms)
}

func writerClaims() *auth.TokenClaims {
	return &auth.TokenClaims{
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		User:       auth.UserInfo{ID: "user-1"},
		Scopes:     []string{auth.ScopeDocRead, auth.ScopeDocWrite},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * time.Minute)),
		},
	}
}

func readerClaims() *auth.TokenClaims {
	c := writerClaims()
	c.Scopes = []string{auth.ScopeDocRead}
	return c
}

func connectReq() connectRequest {
	return connectRequest{
		TenantID: "tenant-1",
		ID:       "doc-1",
		Token:    "a-token",
		Mode:     protocol.ModeWrite,
		Versions: []string{"^0.4.0"},
	}
}

var errBackend = errors.New("backend unavailable")
