package nonce

import (
	"context"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore holds keys in a map protected by a mutex.
// Expiration is handled by a background janitor goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // value = expiry timestamp
	stop    chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
}

func (m *MemoryStore) Use(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.entries[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.entries[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MemoryStore) ExpireKeys(ctx context.Context) error {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, k)
		}
	}
	return nil
}

// janitor purges expired keys periodically.
func (m *MemoryStore) janitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.ExpireKeys(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Close stops the janitor
func (m *MemoryStore) Close() {
	close(m.stop)
}
