package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/adapter"
	"github.com/alanyoungcy/yieldagg/internal/aggregator"
	s3blob "github.com/alanyoungcy/yieldagg/internal/blob/s3"
	"github.com/alanyoungcy/yieldagg/internal/cache/redis"
	"github.com/alanyoungcy/yieldagg/internal/chain"
	"github.com/alanyoungcy/yieldagg/internal/config"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/notify"
	"github.com/alanyoungcy/yieldagg/internal/oracle"
	"github.com/alanyoungcy/yieldagg/internal/ownable"
	"github.com/alanyoungcy/yieldagg/internal/server/handler"
	"github.com/alanyoungcy/yieldagg/internal/service"
	"github.com/alanyoungcy/yieldagg/internal/store/postgres"
)

const (
	// eventBuffer bounds the engine events waiting for Redis.
	eventBuffer = 1024
	// eventTimeout bounds one event's stream append and publish.
	eventTimeout = 2 * time.Second
)

// Dependencies bundles what the modes need. Optional backends are nil when
// not configured.
type Dependencies struct {
	Engine    *aggregator.Engine
	Snapshots *service.SnapshotService

	AuditStore  domain.AuditStore
	RateLimiter domain.RateLimiter
	ReplayGuard domain.ReplayGuard
	EventBus    domain.EventBus

	// Backends lists reachability checks for the health endpoint.
	Backends map[string]handler.Pinger
}

// Wire builds the chain client, optional stores, caches and blob storage,
// and the engine on top of them. The cleanup function releases everything in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	defaults, err := settingsFromConfig(cfg)
	if err != nil {
		return fail(err)
	}
	serving := strings.ToLower(cfg.Mode) == "server"

	deps := &Dependencies{Backends: map[string]handler.Pinger{}}
	engineDeps := aggregator.Deps{Logger: logger}

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, chain.ClientConfig{
		URLs:        cfg.Chain.RPCURLs,
		ChainID:     cfg.Chain.ChainID,
		CallTimeout: cfg.Chain.CallTimeout.Duration,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, chainClient.Close)

	// --- PostgreSQL ---
	var settingsStore domain.SettingsStore
	var snapshotStore domain.SnapshotStore
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		settingsStore = postgres.NewSettingsStore(pool)
		snapshotStore = postgres.NewSnapshotStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Backends["postgres"] = pgClient

		engineDeps.Store = settingsStore
		engineDeps.Audit = deps.AuditStore
	}

	// --- Redis (server mode only) ---
	if serving && cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewEventBus(redisClient, cfg.Redis.EventStream, cfg.Redis.EventChannel)
		deps.EventBus = bus
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.ReplayGuard = redis.NewReplayGuard(redisClient)
		deps.Backends["redis"] = redisClient

		sink := aggregator.NewAsyncSink(bus, eventBuffer, eventTimeout, logger)
		closers = append(closers, sink.Close)
		engineDeps.Sink = sink
		engineDeps.Lock = redis.NewLockManager(redisClient)
	} else {
		engineDeps.Sink = logSink{logger: logger}
	}

	// --- S3 (server mode only) ---
	var archive domain.SnapshotArchive
	if serving && cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		archive = s3blob.NewArchive(s3Client)
		deps.Backends["s3"] = s3Client
	}

	// --- Notifications ---
	if n := notify.FromConfig(notify.Config{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		Events:            cfg.Notify.Events,
	}, logger); n != nil {
		logger.InfoContext(ctx, "notifications enabled", slog.Any("channels", n.Channels()))
		engineDeps.Notifier = n
	}

	// --- Engine ---
	initial, err := aggregator.Bootstrap(ctx, settingsStore, defaults)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	auth := new(ownable.Ownable)
	auth.Restore(initial.Owner)
	engineDeps.Auth = auth

	resolver := oracle.NewResolver(chainClient, logger)
	engineDeps.Prices = resolver
	engineDeps.Adapters = []adapter.Adapter{
		adapter.NewLendingAdapter(chainClient, resolver, common.HexToAddress(cfg.Protocols.ReferenceAsset), nil, logger),
		adapter.NewConcentratedAdapter(chainClient, nil, logger),
		adapter.NewStableSwapAdapter(chainClient, nil, logger),
	}

	engine, err := aggregator.NewEngine(initial, engineDeps)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Engine = engine

	if snapshotStore != nil {
		deps.Snapshots = service.NewSnapshotService(engine, snapshotStore, archive, logger)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("owner", initial.Owner.Hex()),
		slog.Bool("enabled", initial.Enabled),
		slog.Bool("postgres", cfg.Postgres.Enabled()),
		slog.Bool("redis", deps.EventBus != nil),
		slog.Bool("s3", archive != nil),
	)
	return deps, cleanup, nil
}

// settingsFromConfig builds the first-start engine settings. Validate has
// already checked every address.
func settingsFromConfig(cfg *config.Config) (domain.Settings, error) {
	s := domain.Settings{
		Protocols: domain.ProtocolAddresses{
			LendingDataProvider: common.HexToAddress(cfg.Protocols.LendingDataProvider),
			PositionManager:     common.HexToAddress(cfg.Protocols.PositionManager),
			StablePool:          common.HexToAddress(cfg.Protocols.StablePool),
			StableGauge:         common.HexToAddress(cfg.Protocols.StableGauge),
		},
		PriceFeeds:    make(map[common.Address]common.Address, len(cfg.PriceFeeds)),
		CacheDuration: cfg.Aggregator.CacheDuration.Duration,
		Enabled:       cfg.Aggregator.Enabled,
	}
	if owner := strings.TrimSpace(cfg.Aggregator.Owner); owner != "" {
		if !common.IsHexAddress(owner) {
			return domain.Settings{}, fmt.Errorf("wire: %w: %q", domain.ErrInvalidOwner, owner)
		}
		s.Owner = common.HexToAddress(owner)
	}
	for token, feed := range cfg.PriceFeeds {
		if !common.IsHexAddress(token) || !common.IsHexAddress(feed) {
			return domain.Settings{}, fmt.Errorf("wire: %w: feed %q for %q", domain.ErrInvalidToken, feed, token)
		}
		s.PriceFeeds[common.HexToAddress(token)] = common.HexToAddress(feed)
	}
	return s, nil
}

// logSink records engine events in the log when no event bus is configured.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Emit(ctx context.Context, evt domain.Event) error {
	s.logger.DebugContext(ctx, "event", slog.String("event", evt.Name))
	return nil
}
