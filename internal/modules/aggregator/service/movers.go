package service

import (
	"context"
	"sync"
	"time"

	"signal_trader/pkg/logger"
)

// MoversCache — crowd-лист поверх суточного тикера биржи: топ символов по
// абсолютному ходу цены. Живёт как обычная зависимость (constructor
// injection), никаких синглтонов на уровне пакета.
type MoversCache struct {
	mu      sync.RWMutex
	fetch   func(ctx context.Context, n int) ([]string, error)
	ttl     time.Duration
	topN    int
	fetched time.Time
	set     map[string]struct{}
}

func NewMoversCache(
	fetch func(ctx context.Context, n int) ([]string, error),
	ttl time.Duration,
	topN int,
) *MoversCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if topN <= 0 {
		topN = 20
	}
	return &MoversCache{
		fetch: fetch,
		ttl:   ttl,
		topN:  topN,
		set:   make(map[string]struct{}),
	}
}

// Refresh перечитывает список, если TTL вышел. Дёргается из maintenance-тика
// раннера, сами проверки Contains в I/O не ходят.
func (m *MoversCache) Refresh(ctx context.Context) error {
	m.mu.RLock()
	fresh := !m.fetched.IsZero() && time.Since(m.fetched) < m.ttl
	m.mu.RUnlock()
	if fresh {
		return nil
	}

	symbols, err := m.fetch(ctx, m.topN)
	if err != nil {
		return err
	}

	next := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		next[s] = struct{}{}
	}

	m.mu.Lock()
	m.set = next
	m.fetched = time.Now()
	m.mu.Unlock()

	logger.Info("crowd list refreshed: %d symbols", len(symbols))
	return nil
}

func (m *MoversCache) Contains(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[symbol]
	return ok
}
