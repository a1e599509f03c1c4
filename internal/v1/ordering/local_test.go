package ordering

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// captureDeliverer records every delivered batch.
type captureDeliverer struct {
	mu      sync.Mutex
	batches map[string][][]protocol.RawOperation
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{batches: make(map[string][][]protocol.RawOperation)}
}

func (d *captureDeliverer) DeliverOrdered(roomID string, messages []protocol.RawOperation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches[roomID] = append(d.batches[roomID], messages)
}

func (d *captureDeliverer) all(roomID string) []protocol.RawOperation {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []protocol.RawOperation
	for _, batch := range d.batches[roomID] {
		out = append(out, batch...)
	}
	return out
}

func TestLocalManagerSameOrdererPerDocument(t *testing.T) {
	m := NewLocalManager(newCaptureDeliverer())
	ctx := context.Background()

	a, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)
	b, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)
	other, err := m.GetOrderer(ctx, "t", "other")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}

func TestLocalOrderingStampsSequence(t *testing.T) {
	sink := newCaptureDeliverer()
	m := NewLocalManager(sink)
	ctx := context.Background()

	orderer, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)
	conn, err := orderer.Connect(ctx, "client-a", protocol.ClientDescriptor{})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))

	ops := []protocol.RawOperation{
		{"type": "op", "clientSequenceNumber": 1},
		{"type": "op", "clientSequenceNumber": 2},
	}
	require.NoError(t, conn.Order(ctx, ops))

	delivered := sink.all("t/d")
	require.Len(t, delivered, 2)
	assert.Equal(t, int64(1), delivered[0]["sequenceNumber"])
	assert.Equal(t, int64(2), delivered[1]["sequenceNumber"])
	assert.Equal(t, "client-a", delivered[0]["clientId"])
	assert.NotNil(t, delivered[0]["timestamp"])

	// The caller's maps are not mutated.
	assert.NotContains(t, ops[0], "sequenceNumber")
}

func TestLocalOrderingTotalOrderAcrossWriters(t *testing.T) {
	sink := newCaptureDeliverer()
	m := NewLocalManager(sink)
	ctx := context.Background()

	orderer, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)

	connA, err := orderer.Connect(ctx, "client-a", protocol.ClientDescriptor{})
	require.NoError(t, err)
	connB, err := orderer.Connect(ctx, "client-b", protocol.ClientDescriptor{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = connA.Order(ctx, []protocol.RawOperation{{"type": "op"}})
		}()
		go func() {
			defer wg.Done()
			_ = connB.Order(ctx, []protocol.RawOperation{{"type": "op"}})
		}()
	}
	wg.Wait()

	delivered := sink.all("t/d")
	require.Len(t, delivered, 20)

	seen := make(map[int64]bool)
	for _, op := range delivered {
		seq := op["sequenceNumber"].(int64)
		assert.False(t, seen[seq], "duplicate sequence number %d", seq)
		seen[seq] = true
	}
	for i := int64(1); i <= 20; i++ {
		assert.True(t, seen[i], "missing sequence number %d", i)
	}
}

func TestLocalConnectionOrderAfterDisconnect(t *testing.T) {
	sink := newCaptureDeliverer()
	m := NewLocalManager(sink)
	ctx := context.Background()

	orderer, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)
	conn, err := orderer.Connect(ctx, "client-a", protocol.ClientDescriptor{})
	require.NoError(t, err)

	require.NoError(t, conn.Disconnect(ctx))
	require.NoError(t, conn.Order(ctx, []protocol.RawOperation{{"type": "op"}}))

	assert.Empty(t, sink.all("t/d"))
}

func TestLocalConnectionErrorHandlerFiresOnce(t *testing.T) {
	m := NewLocalManager(newCaptureDeliverer())
	ctx := context.Background()

	orderer, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)
	conn, err := orderer.Connect(ctx, "client-a", protocol.ClientDescriptor{})
	require.NoError(t, err)

	var calls int
	conn.OnError(func(error) { calls++ })

	lc := conn.(*localConnection)
	lc.fireError(errors.New("boom"))
	lc.fireError(errors.New("boom again"))

	assert.Equal(t, 1, calls)
}

func TestLocalConnectionDefaults(t *testing.T) {
	m := NewLocalManager(nil)
	ctx := context.Background()

	orderer, err := m.GetOrderer(ctx, "t", "d")
	require.NoError(t, err)
	conn, err := orderer.Connect(ctx, "client-a", protocol.ClientDescriptor{})
	require.NoError(t, err)

	assert.Equal(t, "client-a", conn.ClientID())
	assert.Equal(t, protocol.DefaultServiceConfiguration.MaxMessageSize, conn.MaxMessageSize())
	assert.Equal(t, protocol.DefaultServiceConfiguration, conn.ServiceConfiguration())

	// A nil deliverer drops the batch without panicking.
	require.NoError(t, conn.Order(ctx, []protocol.RawOperation{{"type": "op"}}))
}
