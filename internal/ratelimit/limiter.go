// Package ratelimit ограничивает частоту входящих кадров по сессии (скользящее окно).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Memory — лимитер в памяти процесса; используется по умолчанию.
type Memory struct {
	mu      sync.Mutex
	history map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		history: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if m.limit <= 0 {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-m.window)

	attempts := m.history[key]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= m.limit {
		m.history[key] = fresh
		return false, nil
	}
	m.history[key] = append(fresh, now)
	return true, nil
}

// Forget убирает историю ключа (сессия отключилась).
func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.history, key)
	m.mu.Unlock()
	return nil
}
