package middleware

import (
	"context"
	"sync"
	"time"
)

// MemoryReplayGuard is an in-process domain.ReplayGuard used when no Redis
// is configured. Expired keys are pruned on each claim.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time // key -> expiry
	now  func() time.Time
}

// NewMemoryReplayGuard creates an empty guard. A nil now uses time.Now.
func NewMemoryReplayGuard(now func() time.Time) *MemoryReplayGuard {
	if now == nil {
		now = time.Now
	}
	return &MemoryReplayGuard{seen: make(map[string]time.Time), now: now}
}

// Claim records key until ttl elapses. It returns false when key is live.
func (g *MemoryReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.seen {
		if !now.Before(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}
