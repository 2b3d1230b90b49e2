package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
	"github.com/redis/go-redis/v9"
)

var _ cache.ILock = (*Client)(nil)

const lockKeyPrefix = "lock:"

// releaseScript удаляет ключ, только если он всё ещё принадлежит нам
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire SET NX с TTL, значение - случайный токен владельца
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, c.key(lockKeyPrefix+key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return true, nil
}

// Release снимает только свою блокировку: после истечения TTL ключ мог забрать другой воркер
func (c *Client) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, c.client, []string{c.key(lockKeyPrefix + key)}, token).Err(); err != nil {
		return fmt.Errorf("redis release lock failed: %w", err)
	}
	return nil
}
