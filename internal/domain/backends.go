package domain

import (
	"context"
	"time"
)

// RateLimiter counts requests per key over a sliding window. Allow reports
// whether one more request fits within limit.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serializes admin mutations across replicas. Acquire fails
// with ErrLockHeld while another holder owns key; the returned func
// releases the lock and is safe to call once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// ReplayGuard remembers signed admin requests. Claim returns false when key
// was already claimed within ttl.
type ReplayGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// StreamEntry is one encoded Event read back from the durable event log.
type StreamEntry struct {
	ID   string
	Data []byte
}

// EventBus carries encoded engine events: a live pub/sub channel for
// connected clients and an append-only stream for replay.
type EventBus interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, data []byte) error
	// StreamRead returns up to count entries after afterID ("0" for the
	// start of the log).
	StreamRead(ctx context.Context, stream, afterID string, count int) ([]StreamEntry, error)
}
