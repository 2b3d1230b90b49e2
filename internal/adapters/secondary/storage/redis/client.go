package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss ключа нет
var ErrCacheMiss = errors.New("cache miss")

var _ cache.Cache = (*Client)(nil)

// Client кэш снимков здоровья сетей и распределённая блокировка переводов.
// Все ключи получают общий префикс, чтобы делить инстанс Redis с другими сервисами.
type Client struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string // ключ блокировки -> токен владельца
}

func NewClient(client *redis.Client, prefix string) *Client {
	return &Client{
		client: client,
		prefix: prefix,
		tokens: make(map[string]string),
	}
}

func (c *Client) key(key string) string {
	return c.prefix + key
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s: %w", key, ErrCacheMiss)
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
