package infrastructure

import (
	"context"
	"sync"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
)

// MemorySessionCache is the single-process fallback used when Redis is not
// configured. Entries survive only as long as the process.
type MemorySessionCache struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{sessions: make(map[string]domain.Session)}
}

func (c *MemorySessionCache) Remember(ctx context.Context, deviceToken string, s domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[deviceToken] = s
	return nil
}

func (c *MemorySessionCache) Recall(ctx context.Context, deviceToken string) (*domain.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[deviceToken]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *MemorySessionCache) Forget(ctx context.Context, deviceToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, deviceToken)
	return nil
}
