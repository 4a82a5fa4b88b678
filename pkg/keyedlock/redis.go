package keyedlock

import (
	"context"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
)

const (
	lockTTL       = 10 * time.Second
	retryInterval = 25 * time.Millisecond
)

// Del the key only if we still own it. Without the ownership check a
// slow holder could delete a lock re-acquired by someone else.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker serializes across processes with SETNX + TTL. The TTL
// bounds how long a crashed holder can wedge a key.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(fullKey, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	release := func() {
		l.client.Eval(releaseScript, []string{fullKey}, token)
	}
	return release, nil
}
