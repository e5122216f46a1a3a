package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL. The
// protocol endpoints live in a single row; the feed registry in its own table.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// settingsRow is the flat database shape of domain.Settings.
type settingsRow struct {
	Owner               string
	LendingDataProvider string
	PositionManager     string
	StablePool          string
	StableGauge         string
	CacheDurationMs     int64
	Enabled             bool
}

func toSettingsRow(s domain.Settings) settingsRow {
	return settingsRow{
		Owner:               s.Owner.Hex(),
		LendingDataProvider: s.Protocols.LendingDataProvider.Hex(),
		PositionManager:     s.Protocols.PositionManager.Hex(),
		StablePool:          s.Protocols.StablePool.Hex(),
		StableGauge:         s.Protocols.StableGauge.Hex(),
		CacheDurationMs:     s.CacheDuration.Milliseconds(),
		Enabled:             s.Enabled,
	}
}

func (r settingsRow) toDomain(feeds map[common.Address]common.Address) domain.Settings {
	return domain.Settings{
		Owner: common.HexToAddress(r.Owner),
		Protocols: domain.ProtocolAddresses{
			LendingDataProvider: common.HexToAddress(r.LendingDataProvider),
			PositionManager:     common.HexToAddress(r.PositionManager),
			StablePool:          common.HexToAddress(r.StablePool),
			StableGauge:         common.HexToAddress(r.StableGauge),
		},
		PriceFeeds:    feeds,
		CacheDuration: time.Duration(r.CacheDurationMs) * time.Millisecond,
		Enabled:       r.Enabled,
	}
}

// Load returns the stored settings or domain.ErrNotFound before the first Save.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	const query = `
		SELECT owner, lending_data_provider, position_manager, stable_pool,
		       stable_gauge, cache_duration_ms, enabled
		FROM engine_settings WHERE id = 1`

	var r settingsRow
	err := s.pool.QueryRow(ctx, query).Scan(
		&r.Owner, &r.LendingDataProvider, &r.PositionManager, &r.StablePool,
		&r.StableGauge, &r.CacheDurationMs, &r.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{}, domain.ErrNotFound
		}
		return domain.Settings{}, fmt.Errorf("postgres: load settings: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT token, feed FROM price_feeds`)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("postgres: load price feeds: %w", err)
	}
	defer rows.Close()

	feeds := make(map[common.Address]common.Address)
	for rows.Next() {
		var token, feed string
		if err := rows.Scan(&token, &feed); err != nil {
			return domain.Settings{}, fmt.Errorf("postgres: scan price feed: %w", err)
		}
		feeds[common.HexToAddress(token)] = common.HexToAddress(feed)
	}
	if err := rows.Err(); err != nil {
		return domain.Settings{}, fmt.Errorf("postgres: load price feeds rows: %w", err)
	}

	return r.toDomain(feeds), nil
}

// Save replaces the stored settings and feed registry atomically.
func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	r := toSettingsRow(settings)

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		const upsert = `
			INSERT INTO engine_settings (
				id, owner, lending_data_provider, position_manager, stable_pool,
				stable_gauge, cache_duration_ms, enabled, updated_at
			) VALUES (1, $1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (id) DO UPDATE SET
				owner = EXCLUDED.owner,
				lending_data_provider = EXCLUDED.lending_data_provider,
				position_manager = EXCLUDED.position_manager,
				stable_pool = EXCLUDED.stable_pool,
				stable_gauge = EXCLUDED.stable_gauge,
				cache_duration_ms = EXCLUDED.cache_duration_ms,
				enabled = EXCLUDED.enabled,
				updated_at = NOW()`
		if _, err := tx.Exec(ctx, upsert,
			r.Owner, r.LendingDataProvider, r.PositionManager, r.StablePool,
			r.StableGauge, r.CacheDurationMs, r.Enabled,
		); err != nil {
			return fmt.Errorf("postgres: save settings: %w", err)
		}

		tokens := make([]string, 0, len(settings.PriceFeeds))
		batch := &pgx.Batch{}
		for token, feed := range settings.PriceFeeds {
			tokens = append(tokens, token.Hex())
			batch.Queue(`
				INSERT INTO price_feeds (token, feed, updated_at) VALUES ($1, $2, NOW())
				ON CONFLICT (token) DO UPDATE SET feed = EXCLUDED.feed, updated_at = NOW()
				WHERE price_feeds.feed IS DISTINCT FROM EXCLUDED.feed`,
				token.Hex(), feed.Hex())
		}
		batch.Queue(`DELETE FROM price_feeds WHERE NOT (token = ANY($1))`, tokens)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: save price feeds: %w", err)
		}
		return nil
	})
}

// Compile-time interface check.
var _ domain.SettingsStore = (*SettingsStore)(nil)
