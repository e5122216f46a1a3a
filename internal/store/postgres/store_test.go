package postgres

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/yieldagg?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "yieldagg"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p@db:6543/d?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "d", SSLMode: "require"}))
}

func TestDSN_EscapesCredentials(t *testing.T) {
	assert.Equal(t, "postgres://svc:p%40ss%2Fw@db:5432/yieldagg?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "svc", Password: "p@ss/w", Database: "yieldagg"}))
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_settings.sql", "002_audit_log.sql", "003_portfolio_snapshots.sql"}, names)
}

func TestSettingsRowRoundTrip(t *testing.T) {
	in := domain.Settings{
		Owner: common.HexToAddress("0x000000000000000000000000000000000000000a"),
		Protocols: domain.ProtocolAddresses{
			LendingDataProvider: common.HexToAddress("0x01"),
			PositionManager:     common.HexToAddress("0x02"),
			StablePool:          common.HexToAddress("0x03"),
			StableGauge:         common.HexToAddress("0x04"),
		},
		CacheDuration: 45 * time.Second,
		Enabled:       false,
	}
	feeds := map[common.Address]common.Address{common.HexToAddress("0x05"): common.HexToAddress("0x06")}

	out := toSettingsRow(in).toDomain(feeds)
	in.PriceFeeds = feeds
	assert.Equal(t, in, out)
}

func TestBuildListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args := buildListQuery("SELECT * FROM t WHERE a = $1", "created_at",
		[]any{"x"}, domain.ListOpts{Since: &since, Offset: 20}, 50)
	assert.Equal(t,
		"SELECT * FROM t WHERE a = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", q)
	require.Len(t, args, 4)
	assert.Equal(t, 50, args[2])
	assert.Equal(t, 20, args[3])

	q, args = buildListQuery("SELECT * FROM t WHERE 1=1", "ts", nil, domain.ListOpts{Limit: 5}, 50)
	assert.Equal(t, "SELECT * FROM t WHERE 1=1 ORDER BY ts DESC LIMIT $1", q)
	assert.Equal(t, []any{5}, args)
}

func TestParseFixed(t *testing.T) {
	v, err := parseFixed("123456789012345678901234567890", domain.USDDecimals)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.Raw().String())
	assert.Equal(t, domain.USDDecimals, v.Decimals())

	_, err = parseFixed("1.5", domain.USDDecimals)
	assert.Error(t, err)
}

func TestOwnerKeysLowercase(t *testing.T) {
	a := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	assert.Equal(t, []string{"0xabcdef0000000000000000000000000000000001"}, ownerKeys([]common.Address{a}))
}
