package redis

import (
	"context"
	"fmt"
	"time"
)

// ReplayGuard implements domain.ReplayGuard with SET NX, so a signed admin
// request is accepted once across every replica.
type ReplayGuard struct {
	client *Client
}

// NewReplayGuard creates a ReplayGuard backed by the given Client.
func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{client: c}
}

// Claim records key for ttl. It returns false when key is already recorded.
func (g *ReplayGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.Underlying().SetNX(ctx, g.client.key("replay", key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}
