// Package redis backs the engine's event bus, the API rate limiter and the
// admin mutation lock with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "yieldagg"

// ClientConfig holds connection parameters. Namespace prefixes every key
// the package writes and defaults to "yieldagg".
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Namespace  string
}

func (cfg ClientConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client is a namespaced go-redis client.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New connects and pings the server.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	c := wrap(redis.NewClient(cfg.options()), cfg.Namespace)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func wrap(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{rdb: rdb, namespace: namespace}
}

// Ping reports whether the server answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.rdb.Options().Addr, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Underlying exposes the driver client.
func (c *Client) Underlying() *redis.Client { return c.rdb }

// key namespaces a logical key: key("lock", "settings") is
// "yieldagg:lock:settings".
func (c *Client) key(kind, name string) string {
	return c.namespace + ":" + kind + ":" + name
}
