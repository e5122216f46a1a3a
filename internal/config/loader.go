package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies YIELDAGG_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		// A [price_feeds] table in the file replaces the default registry
		// instead of merging into it.
		var feedsOnly struct {
			PriceFeeds map[string]string `toml:"price_feeds"`
		}
		md, err := toml.DecodeFile(path, &feedsOnly)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if md.IsDefined("price_feeds") {
				cfg.PriceFeeds = nil
			}
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known YIELDAGG_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStringSlice(&cfg.Chain.RPCURLs, "YIELDAGG_CHAIN_RPC_URLS")
	setInt64(&cfg.Chain.ChainID, "YIELDAGG_CHAIN_CHAIN_ID")
	setDuration(&cfg.Chain.CallTimeout, "YIELDAGG_CHAIN_CALL_TIMEOUT")

	// ── Protocols ──
	setStr(&cfg.Protocols.LendingDataProvider, "YIELDAGG_PROTOCOLS_LENDING_DATA_PROVIDER")
	setStr(&cfg.Protocols.PositionManager, "YIELDAGG_PROTOCOLS_POSITION_MANAGER")
	setStr(&cfg.Protocols.StablePool, "YIELDAGG_PROTOCOLS_STABLE_POOL")
	setStr(&cfg.Protocols.StableGauge, "YIELDAGG_PROTOCOLS_STABLE_GAUGE")
	setStr(&cfg.Protocols.ReferenceAsset, "YIELDAGG_PROTOCOLS_REFERENCE_ASSET")

	// ── Aggregator ──
	setStr(&cfg.Aggregator.Owner, "YIELDAGG_AGGREGATOR_OWNER")
	setDuration(&cfg.Aggregator.CacheDuration, "YIELDAGG_AGGREGATOR_CACHE_DURATION")
	setBool(&cfg.Aggregator.Enabled, "YIELDAGG_AGGREGATOR_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "YIELDAGG_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "YIELDAGG_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "YIELDAGG_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "YIELDAGG_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "YIELDAGG_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "YIELDAGG_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "YIELDAGG_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "YIELDAGG_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "YIELDAGG_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "YIELDAGG_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "YIELDAGG_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "YIELDAGG_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "YIELDAGG_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "YIELDAGG_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "YIELDAGG_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "YIELDAGG_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.EventStream, "YIELDAGG_REDIS_EVENT_STREAM")
	setStr(&cfg.Redis.EventChannel, "YIELDAGG_REDIS_EVENT_CHANNEL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "YIELDAGG_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "YIELDAGG_S3_REGION")
	setStr(&cfg.S3.Bucket, "YIELDAGG_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "YIELDAGG_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "YIELDAGG_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "YIELDAGG_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "YIELDAGG_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "YIELDAGG_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "YIELDAGG_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "YIELDAGG_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "YIELDAGG_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.AuthMaxSkew, "YIELDAGG_SERVER_AUTH_MAX_SKEW")
	setInt(&cfg.Server.MaxOwners, "YIELDAGG_SERVER_MAX_OWNERS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "YIELDAGG_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "YIELDAGG_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "YIELDAGG_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "YIELDAGG_NOTIFY_EVENTS")

	// ── Admin ──
	setStr(&cfg.Admin.PrivateKey, "YIELDAGG_ADMIN_PRIVATE_KEY")
	setStr(&cfg.Admin.KeyFile, "YIELDAGG_ADMIN_KEY_FILE")
	setStr(&cfg.Admin.KeyPassword, "YIELDAGG_ADMIN_KEY_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "YIELDAGG_MODE")
	setStr(&cfg.LogLevel, "YIELDAGG_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
