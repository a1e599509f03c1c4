package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/coscribe/collab-gateway/internal/v1/metrics"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
)

// RedisRegistry stores room membership in one hash per document:
// clients:{tenantId}/{documentId} → clientId → JSON descriptor.
type RedisRegistry struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewRedisRegistry wraps an established redis client with a circuit breaker.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	st := gobreaker.Settings{
		Name:        "client-registry",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	return &RedisRegistry{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

func registryKey(tenantID, documentID string) string {
	return fmt.Sprintf("clients:%s/%s", tenantID, documentID)
}

// GetClients returns the current client list for a document.
func (r *RedisRegistry) GetClients(ctx context.Context, tenantID, documentID string) ([]protocol.SignalClient, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		return r.client.HGetAll(ctx, registryKey(tenantID, documentID)).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("client-registry").Inc()
		}
		return nil, fmt.Errorf("failed to fetch client list: %w", err)
	}

	entries := res.(map[string]string)
	clients := make([]protocol.SignalClient, 0, len(entries))
	for clientID, raw := range entries {
		var desc protocol.ClientDescriptor
		if err := json.Unmarshal([]byte(raw), &desc); err != nil {
			continue
		}
		clients = append(clients, protocol.SignalClient{ClientID: clientID, Client: desc})
	}
	return clients, nil
}

// AddClient registers a client under its document hash.
func (r *RedisRegistry) AddClient(ctx context.Context, tenantID, documentID, clientID string, client protocol.ClientDescriptor) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client descriptor: %w", err)
	}

	_, err = r.cb.Execute(func() (interface{}, error) {
		return nil, r.client.HSet(ctx, registryKey(tenantID, documentID), clientID, data).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("client-registry").Inc()
		}
		return fmt.Errorf("failed to add client: %w", err)
	}
	return nil
}

// RemoveClient deletes a client from its document hash.
func (r *RedisRegistry) RemoveClient(ctx context.Context, tenantID, documentID, clientID string) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.client.HDel(ctx, registryKey(tenantID, documentID), clientID).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("client-registry").Inc()
		}
		return fmt.Errorf("failed to remove client: %w", err)
	}
	return nil
}
