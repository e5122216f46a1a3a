// Package config defines the top-level configuration for the yield aggregator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/aggregator"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by YIELDAGG_* environment variables.
type Config struct {
	Chain      ChainConfig       `toml:"chain"`
	Protocols  ProtocolsConfig   `toml:"protocols"`
	PriceFeeds map[string]string `toml:"price_feeds"` // token -> feed
	Aggregator AggregatorConfig  `toml:"aggregator"`
	Postgres   PostgresConfig    `toml:"postgres"`
	Redis      RedisConfig       `toml:"redis"`
	S3         S3Config          `toml:"s3"`
	Server     ServerConfig      `toml:"server"`
	Notify     NotifyConfig      `toml:"notify"`
	Admin      AdminConfig       `toml:"admin"`
	Mode       string            `toml:"mode"`
	LogLevel   string            `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoints used for read-only calls. URLs are
// tried in order.
type ChainConfig struct {
	RPCURLs     []string `toml:"rpc_urls"`
	ChainID     int64    `toml:"chain_id"`
	CallTimeout duration `toml:"call_timeout"`
}

// ProtocolsConfig holds the initial protocol endpoints and the lending
// reference asset.
type ProtocolsConfig struct {
	LendingDataProvider string `toml:"lending_data_provider"`
	PositionManager     string `toml:"position_manager"`
	StablePool          string `toml:"stable_pool"`
	StableGauge         string `toml:"stable_gauge"`
	ReferenceAsset      string `toml:"reference_asset"`
}

// AggregatorConfig holds the engine's initial owner and switches. Once a
// settings store holds state, the stored values win over these.
type AggregatorConfig struct {
	Owner         string   `toml:"owner"`
	CacheDuration duration `toml:"cache_duration"`
	Enabled       bool     `toml:"enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. Leaving both dsn
// and host empty disables persistence.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || strings.TrimSpace(p.Host) != ""
}

// RedisConfig holds Redis connection parameters. An empty addr disables the
// event bus, rate limiter and distributed lock.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	EventStream  string `toml:"event_stream"`
	EventChannel string `toml:"event_channel"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// S3Config holds S3-compatible object storage parameters. An empty bucket
// disables the snapshot archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether object storage is configured.
func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Bucket) != "" }

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per RateWindow per client IP; 0 disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// AuthMaxSkew bounds the age of signed admin requests.
	AuthMaxSkew duration `toml:"auth_max_skew"`
	// MaxOwners caps the wallets a single read request may value.
	MaxOwners int `toml:"max_owners"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AdminConfig locates the owner key used by the sign command. A raw key wins
// over the encrypted key file; both are normally injected via environment.
type AdminConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
}

// Defaults returns a Config populated with reasonable default values.
// Protocol addresses, price feeds and the cache duration come from the
// engine's own defaults. These match the values in config.example.toml.
func Defaults() Config {
	engine := aggregator.DefaultSettings(common.Address{})
	feeds := make(map[string]string, len(engine.PriceFeeds))
	for token, feed := range engine.PriceFeeds {
		feeds[token.Hex()] = feed.Hex()
	}

	return Config{
		Chain: ChainConfig{
			RPCURLs:     []string{"https://arb1.arbitrum.io/rpc"},
			ChainID:     42161,
			CallTimeout: duration{5 * time.Second},
		},
		Protocols: ProtocolsConfig{
			LendingDataProvider: engine.Protocols.LendingDataProvider.Hex(),
			PositionManager:     engine.Protocols.PositionManager.Hex(),
			StablePool:          engine.Protocols.StablePool.Hex(),
			StableGauge:         engine.Protocols.StableGauge.Hex(),
			ReferenceAsset:      aggregator.WETH.Hex(),
		},
		PriceFeeds: feeds,
		Aggregator: AggregatorConfig{
			CacheDuration: duration{engine.CacheDuration},
			Enabled:       engine.Enabled,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "yieldagg",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			EventStream:  "yieldagg:events",
			EventChannel: "yieldagg:events:live",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			AuthMaxSkew: duration{5 * time.Minute},
			MaxOwners:   20,
		},
		Notify: NotifyConfig{
			Events: []string{"transfer_ownership", "renounce_ownership", "set_enabled"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"query":  true,
	"sign":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, query, sign)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if len(c.Chain.RPCURLs) == 0 {
		errs = append(errs, "chain: rpc_urls must not be empty")
	}
	if c.Chain.ChainID < 0 {
		errs = append(errs, "chain: chain_id must not be negative")
	}
	if c.Chain.CallTimeout.Duration <= 0 {
		errs = append(errs, "chain: call_timeout must be > 0")
	}

	// Protocols
	for name, v := range map[string]string{
		"lending_data_provider": c.Protocols.LendingDataProvider,
		"position_manager":      c.Protocols.PositionManager,
		"stable_pool":           c.Protocols.StablePool,
		"stable_gauge":          c.Protocols.StableGauge,
		"reference_asset":       c.Protocols.ReferenceAsset,
	} {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("protocols: %s %q is not a hex address", name, v))
		}
	}
	for token, feed := range c.PriceFeeds {
		if !common.IsHexAddress(token) || !common.IsHexAddress(feed) {
			errs = append(errs, fmt.Sprintf("price_feeds: %q = %q must map a hex address to a hex address", token, feed))
		}
	}

	// Aggregator
	owner := strings.TrimSpace(c.Aggregator.Owner)
	switch {
	case owner == "" && strings.ToLower(c.Mode) == "server":
		errs = append(errs, "aggregator: owner is required for mode server")
	case owner != "" && !common.IsHexAddress(owner):
		errs = append(errs, fmt.Sprintf("aggregator: owner %q is not a hex address", owner))
	case owner != "" && common.HexToAddress(owner) == (common.Address{}):
		errs = append(errs, "aggregator: owner must not be the zero address")
	}
	if c.Aggregator.CacheDuration.Duration < 0 {
		errs = append(errs, "aggregator: cache_duration must not be negative")
	}

	// Postgres
	if c.Postgres.Enabled() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled() {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.EventStream == "" || c.Redis.EventChannel == "" {
			errs = append(errs, "redis: event_stream and event_channel must not be empty")
		}
	}

	// S3
	if c.S3.Enabled() && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}

	// Server
	if strings.ToLower(c.Mode) == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Server.AuthMaxSkew.Duration <= 0 {
			errs = append(errs, "server: auth_max_skew must be > 0")
		}
		if c.Server.MaxOwners < 0 {
			errs = append(errs, "server: max_owners must be >= 0")
		}
	}

	// Admin
	if strings.ToLower(c.Mode) == "sign" && c.Admin.PrivateKey == "" && c.Admin.KeyFile == "" {
		errs = append(errs, "admin: private_key or key_file is required for mode sign")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
