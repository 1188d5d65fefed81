package presence

import (
	"context"
	"sync"
	"time"

	"marketchat/internal/domain/chat"
)

// MemoryRegistry is a process-local registry with the same TTL semantics
// as the Redis one. It backs tests and single-node dev runs.
type MemoryRegistry struct {
	mu      sync.RWMutex
	expires map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &MemoryRegistry{
		expires: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryRegistry) IsPresent(ctx context.Context, actor chat.Actor) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	deadline, ok := m.expires[actor.ChannelKey()]
	return ok && m.now().Before(deadline), nil
}

func (m *MemoryRegistry) Mark(ctx context.Context, actor chat.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[actor.ChannelKey()] = m.now().Add(m.ttl)
	return nil
}

func (m *MemoryRegistry) Clear(ctx context.Context, actor chat.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, actor.ChannelKey())
	return nil
}

// MemoryDedup mirrors RedisDedup for tests and dev runs.
type MemoryDedup struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{expires: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDedup) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if deadline, ok := d.expires[key]; ok && now.Before(deadline) {
		return false, nil
	}
	d.expires[key] = now.Add(ttl)
	return true, nil
}
