package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
)

// Lock in-memory блокировка по ключу, для одного процесса
type Lock struct {
	mu      sync.Mutex
	entries map[string]time.Time // ключ -> момент истечения
	now     func() time.Time
}

func NewLock() cache.ILock {
	return &Lock{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *Lock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiresAt, ok := l.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	l.entries[key] = now.Add(ttl)
	return true, nil
}

func (l *Lock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}
