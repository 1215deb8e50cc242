package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	redisclient "github.com/zatekoja/telehealth-meet/internal/infrastructure/clients/redis"
)

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements EncounterLocker with SET NX PX, shared across replicas
type RedisLocker struct {
	client *redisclient.Client
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed locker; ttl bounds how long a crashed
// holder can block an encounter.
func NewRedisLocker(client *redisclient.Client, ttl time.Duration) providers.EncounterLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
	}
}

// TryLock acquires key without waiting
func (l *RedisLocker) TryLock(ctx context.Context, key string) (providers.Unlock, error) {
	token := uuid.NewString()

	acquired, err := l.client.Client().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, providers.ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.Client(), []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}
