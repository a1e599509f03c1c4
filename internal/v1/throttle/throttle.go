// Package throttle wraps a pluggable rate limiter behind a guard that
// converts exceed-events into typed throttle errors and fails open on
// internal limiter faults.
package throttle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
)

// Error is a typed throttle rejection. The caller decides how to surface it.
type Error struct {
	Code       int
	Message    string
	RetryAfter int // seconds
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s (retry after %ds)", e.Code, e.Message, e.RetryAfter)
}

// Limiter increments the counter for a throttle key. Implementations return
// *Error when the key's rate is exceeded and any other error on internal
// faults.
type Limiter interface {
	IncrementCount(ctx context.Context, key string) error
}

// ConnectKey is the throttle id for socket connects of one tenant.
func ConnectKey(tenantID string) string {
	return tenantID + "_OpenSocketConn"
}

// SubmitOpKey is the throttle id for op submissions of one client.
func SubmitOpKey(clientID, tenantID string) string {
	return clientID + "_" + tenantID + "_SubmitOp"
}

// Guard fronts an optional limiter for one telemetry group.
type Guard struct {
	limiter Limiter
	group   string
}

// NewGuard wraps limiter; a nil limiter disables the guard.
func NewGuard(l Limiter, group string) *Guard {
	return &Guard{limiter: l, group: group}
}

// Check increments the counter for key. It returns a *Error only when the
// limiter reports the rate exceeded; internal limiter faults are logged and
// swallowed so the limiter's own crash cannot deny service.
func (g *Guard) Check(ctx context.Context, key string) *Error {
	if g == nil || g.limiter == nil {
		return nil
	}

	err := g.limiter.IncrementCount(ctx, key)
	if err == nil {
		return nil
	}

	if throttleErr, ok := err.(*Error); ok {
		metrics.ThrottleExceeded.WithLabelValues(g.group).Inc()
		return throttleErr
	}

	logging.Error(ctx, "Rate limiter failed",
		zap.String("telemetryGroup", "throttling"),
		zap.String("key", key),
		zap.Error(err))
	return nil
}

// UluleLimiter implements Limiter over ulule/limiter/v3.
type UluleLimiter struct {
	limiter *limiter.Limiter
	message string
}

// NewUluleLimiter builds a limiter from a "count-period" formatted rate
// (e.g. "100-M"). With a redis client the counters are shared across pods;
// otherwise an in-memory store is used.
func NewUluleLimiter(rateFormatted, message string, redisClient *redis.Client) (*UluleLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(rateFormatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rateFormatted, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "throttle:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return &UluleLimiter{limiter: limiter.New(store, rate), message: message}, nil
}

// IncrementCount counts one hit for key and reports exceeded rates as *Error.
func (u *UluleLimiter) IncrementCount(ctx context.Context, key string) error {
	lctx, err := u.limiter.Get(ctx, key)
	if err != nil {
		return err
	}

	if lctx.Reached {
		retryAfter := int(lctx.Reset - time.Now().Unix())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &Error{
			Code:       http.StatusTooManyRequests,
			Message:    u.message,
			RetryAfter: retryAfter,
		}
	}

	return nil
}
