package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

const (
	// streamMaxLen bounds the event log via XADD MAXLEN ~.
	streamMaxLen int64 = 10000

	// entryField is the stream field holding the encoded event.
	entryField = "event"
)

// EventBus implements domain.EventBus with Redis Pub/Sub for live fan-out
// and Redis Streams for a durable, ordered event log. It also implements
// domain.EventSink: each engine event is appended to the stream and then
// published on the live channel.
type EventBus struct {
	rdb     *redis.Client
	stream  string
	channel string
}

// NewEventBus creates an EventBus that records engine events on stream and
// announces them on channel.
func NewEventBus(c *Client, stream, channel string) *EventBus {
	return &EventBus{rdb: c.Underlying(), stream: stream, channel: channel}
}

// Channel is the Pub/Sub channel engine events are published on.
func (b *EventBus) Channel() string { return b.channel }

// Emit implements domain.EventSink.
func (b *EventBus) Emit(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", evt.Name, err)
	}
	return errors.Join(
		b.StreamAppend(ctx, b.stream, payload),
		b.Publish(ctx, b.channel, payload),
	)
}

// Publish announces data on channel.
func (b *EventBus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of raw payloads. The subscription and the returned channel are
// closed when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend adds data to stream, trimming the log to roughly
// streamMaxLen entries.
func (b *EventBus) StreamAppend(ctx context.Context, stream string, data []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{entryField: data},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries recorded after afterID without
// blocking. An empty log yields no entries and no error.
func (b *EventBus) StreamRead(ctx context.Context, stream, afterID string, count int) ([]domain.StreamEntry, error) {
	res, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, afterID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis: xread %s: %w", stream, err)
	}

	var entries []domain.StreamEntry
	for _, xs := range res {
		for _, m := range xs.Messages {
			if data, ok := entryData(m.Values); ok {
				entries = append(entries, domain.StreamEntry{ID: m.ID, Data: data})
			}
		}
	}
	return entries, nil
}

// entryData extracts the encoded event of a stream entry. go-redis returns
// field values as strings.
func entryData(values map[string]any) ([]byte, bool) {
	switch v := values[entryField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	}
	return nil, false
}

// Compile-time interface checks.
var (
	_ domain.EventBus = (*EventBus)(nil)
	_ domain.EventSink = (*EventBus)(nil)
)
