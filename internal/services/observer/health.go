package observer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
)

const (
	healthCacheKeyPrefix = "network_health:"
	healthCacheTTL       = 10 * time.Minute
)

// HealthRegistry состояние наблюдателей по сетям.
// Если передан кэш, снимок каждой сети дублируется в него для соседних инстансов.
type HealthRegistry struct {
	mu    sync.RWMutex
	items map[domain.Network]*domain.NetworkHealth
	cache cache.Cache
	log   *slog.Logger
}

func NewHealthRegistry(c cache.Cache, log *slog.Logger) *HealthRegistry {
	return &HealthRegistry{
		items: make(map[domain.Network]*domain.NetworkHealth),
		cache: c,
		log:   log,
	}
}

func (h *HealthRegistry) Register(network domain.Network) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.items[network]; !ok {
		h.items[network] = &domain.NetworkHealth{Network: network}
	}
}

func (h *HealthRegistry) RecordSuccess(ctx context.Context, network domain.Network, at time.Time) {
	h.update(ctx, network, func(item *domain.NetworkHealth) {
		item.ConsecutiveFailures = 0
		item.LastError = ""
		item.LastSuccessAt = &at
	})
}

func (h *HealthRegistry) RecordFailure(ctx context.Context, network domain.Network, err error, failures int) {
	h.update(ctx, network, func(item *domain.NetworkHealth) {
		item.ConsecutiveFailures = failures
		if err != nil {
			item.LastError = err.Error()
		}
	})
}

func (h *HealthRegistry) MarkDegraded(ctx context.Context, network domain.Network, since time.Time) {
	h.update(ctx, network, func(item *domain.NetworkHealth) {
		item.Degraded = true
		item.DegradedSince = &since
	})
}

func (h *HealthRegistry) MarkRecovered(ctx context.Context, network domain.Network) {
	h.update(ctx, network, func(item *domain.NetworkHealth) {
		item.Degraded = false
		item.DegradedSince = nil
	})
}

func (h *HealthRegistry) SetCheckpoint(ctx context.Context, network domain.Network, cursor uint64) {
	h.update(ctx, network, func(item *domain.NetworkHealth) {
		item.Checkpoint = cursor
	})
}

// Snapshot копия состояния, сети по алфавиту
func (h *HealthRegistry) Snapshot() []domain.NetworkHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.NetworkHealth, 0, len(h.items))
	for _, item := range h.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out
}

// Degraded сети с разомкнутой цепью
func (h *HealthRegistry) Degraded() []domain.Network {
	var out []domain.Network
	for _, item := range h.Snapshot() {
		if item.Degraded {
			out = append(out, item.Network)
		}
	}
	return out
}

func (h *HealthRegistry) update(ctx context.Context, network domain.Network, fn func(item *domain.NetworkHealth)) {
	h.mu.Lock()
	item, ok := h.items[network]
	if !ok {
		item = &domain.NetworkHealth{Network: network}
		h.items[network] = item
	}
	fn(item)
	snapshot := *item
	h.mu.Unlock()

	h.mirror(ctx, snapshot)
}

func (h *HealthRegistry) mirror(ctx context.Context, item domain.NetworkHealth) {
	if h.cache == nil {
		return
	}

	data, err := json.Marshal(item)
	if err != nil {
		h.log.Debug("failed to marshal network health", "error", err, "network", item.Network)
		return
	}

	if err := h.cache.Set(ctx, healthCacheKeyPrefix+string(item.Network), string(data), healthCacheTTL); err != nil {
		h.log.Debug("failed to cache network health", "error", err, "network", item.Network)
	}
}
