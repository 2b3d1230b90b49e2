package cache

import (
	"context"
	"time"
)

// Cache key/value с TTL для данных, потеря которых не ломает обработку
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// ILock короткая блокировка по ключу с TTL: перевод или запуск джобы обрабатывает один воркер
type ILock interface {
	// Acquire false если ключ уже занят
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
