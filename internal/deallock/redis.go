package deallock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

const (
	keyPrefix      = "dealflow:deal-lock:"
	retryInterval  = 25 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another emitter is left alone.
// KEYS[1] = lock key
// ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock in Redis. The lease expires after ttl so a crashed
// holder cannot wedge a deal.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis builds a Redis lock. Non-positive durations fall back to the
// defaults.
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Redis{client: client, ttl: ttl, wait: wait}
}

func (l *Redis) Lock(ctx context.Context, dealID id.DealID) (func(), error) {
	key := keyPrefix + dealID.String()
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire deal lock %s: %w: %w", dealID, sentinel.ErrUnavailable, err)
		}
		if ok {
			return l.releaser(key, token), nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("deal %s: %w", dealID, sentinel.ErrLockHeld)
		}
	}
}

func (l *Redis) releaser(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
}
