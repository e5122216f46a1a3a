package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldagg/internal/crypto"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
	"github.com/alanyoungcy/yieldagg/internal/oracle"
	"github.com/alanyoungcy/yieldagg/internal/server/handler"
	"github.com/alanyoungcy/yieldagg/internal/server/middleware"
)

const (
	ownerKey    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	strangerKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	weth  = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// fakeEngine implements every engine-facing handler interface with an owner
// check matching the real engine's contract.
type fakeEngine struct {
	mu       sync.Mutex
	settings domain.Settings
	priceErr error
	multi    [][]common.Address
}

func (f *fakeEngine) Settings() domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.Clone()
}

func (f *fakeEngine) gate(caller common.Address, apply func(*domain.Settings)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings.Owner == (common.Address{}) || caller != f.settings.Owner {
		return domain.ErrUnauthorizedAccount
	}
	apply(&f.settings)
	return nil
}

func (f *fakeEngine) SetPriceFeed(_ context.Context, caller, token, feed common.Address) error {
	return f.gate(caller, func(s *domain.Settings) { s.PriceFeeds[token] = feed })
}

func (f *fakeEngine) SetProtocolAddresses(_ context.Context, caller common.Address, addrs domain.ProtocolAddresses) error {
	return f.gate(caller, func(s *domain.Settings) { s.Protocols = addrs })
}

func (f *fakeEngine) SetEnabled(_ context.Context, caller common.Address, enabled bool) error {
	return f.gate(caller, func(s *domain.Settings) { s.Enabled = enabled })
}

func (f *fakeEngine) SetCacheDuration(_ context.Context, caller common.Address, d time.Duration) error {
	return f.gate(caller, func(s *domain.Settings) { s.CacheDuration = d })
}

func (f *fakeEngine) TransferOwnership(_ context.Context, caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return domain.ErrInvalidOwner
	}
	return f.gate(caller, func(s *domain.Settings) { s.Owner = newOwner })
}

func (f *fakeEngine) RenounceOwnership(_ context.Context, caller common.Address) error {
	return f.gate(caller, func(s *domain.Settings) { s.Owner = common.Address{} })
}

func (f *fakeEngine) position(owner common.Address) domain.Position {
	return domain.Position{
		Owner:      owner,
		Protocol:   domain.ProtocolLending,
		Assets:     []common.Address{weth},
		Amounts:    []*big.Int{big.NewInt(1000)},
		APR:        fixed.FromInt64(5e16, domain.RateDecimals),
		APY:        fixed.FromInt64(5e16, domain.RateDecimals),
		AccruedUSD: fixed.FromInt64(150000000, domain.USDDecimals),
	}
}

func (f *fakeEngine) GetPositions(_ context.Context, owner common.Address) []domain.Position {
	return []domain.Position{f.position(owner)}
}

func (f *fakeEngine) GetPositionsMulti(_ context.Context, owners []common.Address) []domain.Position {
	f.mu.Lock()
	f.multi = append(f.multi, owners)
	f.mu.Unlock()
	out := []domain.Position{}
	for _, o := range owners {
		out = append(out, f.position(o))
	}
	return out
}

func (f *fakeEngine) GetPortfolioSummary(_ context.Context, _ common.Address) domain.PortfolioSummary {
	return domain.ZeroSummary()
}

func (f *fakeEngine) GetPortfolioSummaryMulti(_ context.Context, _ []common.Address) domain.PortfolioSummary {
	return domain.ZeroSummary()
}

func (f *fakeEngine) GetWalletBreakdown(_ context.Context, owners []common.Address) domain.WalletBreakdown {
	out := domain.WalletBreakdown{Aggregated: domain.ZeroSummary()}
	for _, o := range owners {
		out.Wallets = append(out.Wallets, domain.WalletPortfolio{Owner: o, Positions: []domain.Position{}, Summary: domain.ZeroSummary()})
	}
	return out
}

func (f *fakeEngine) LatestRound(_ context.Context, token common.Address) (oracle.Round, error) {
	if f.priceErr != nil {
		return oracle.Round{}, f.priceErr
	}
	return oracle.Round{Feed: common.HexToAddress("0xfeed"), RoundID: big.NewInt(7), Answer: big.NewInt(200000000000), UpdatedAt: big.NewInt(1700000000)}, nil
}

func (f *fakeEngine) ResolvePrice(_ context.Context, _ common.Address) (fixed.Value, error) {
	if f.priceErr != nil {
		return fixed.Value{}, f.priceErr
	}
	return fixed.FromInt64(200000000000, oracle.PriceDecimals), nil
}

func (f *fakeEngine) AdapterFailures() map[string]int64 {
	return map[string]int64{"lending": 0, "concentrated_amm": 2, "stable_amm": 0}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return s.allowed, s.err
}

type harness struct {
	engine  *fakeEngine
	handler http.Handler
	owner   *crypto.Signer
	other   *crypto.Signer
}

func newHarness(t *testing.T, limiter domain.RateLimiter, backends map[string]handler.Pinger) *harness {
	t.Helper()
	owner, err := crypto.NewSigner(ownerKey)
	require.NoError(t, err)
	other, err := crypto.NewSigner(strangerKey)
	require.NoError(t, err)

	eng := &fakeEngine{settings: domain.Settings{
		Owner:         owner.Address(),
		PriceFeeds:    map[common.Address]common.Address{weth: common.HexToAddress("0xfeed")},
		CacheDuration: 30 * time.Second,
		Enabled:       true,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := Handlers{
		Health:    handler.NewHealthHandler(backends, eng, logger),
		Portfolio: handler.NewPortfolioHandler(eng, 3, logger),
		Snapshots: handler.NewSnapshotHandler(nil, 3, logger),
		Prices:    handler.NewPriceHandler(eng, logger),
		Admin:     handler.NewAdminHandler(eng, nil, logger),
	}
	cfg := Config{RateLimit: 10, RateWindow: time.Minute, AuthMaxSkew: 5 * time.Minute}
	return &harness{
		engine:  eng,
		handler: NewServer(cfg, handlers, nil, limiter, logger).Handler(),
		owner:   owner,
		other:   other,
	}
}

func (h *harness) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signed(t *testing.T, s *crypto.Signer, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	headers, err := s.SignRequest(method, path, body, time.Now())
	require.NoError(t, err)
	return h.do(t, method, path, body, headers)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil, map[string]handler.Pinger{"postgres": pinger{}, "redis": nil})
	rec := h.do(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"postgres": "ok"}, body["components"])
	assert.Equal(t, float64(2), body["adapter_failures"].(map[string]any)["concentrated_amm"])
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	h = newHarness(t, nil, map[string]handler.Pinger{"redis": pinger{err: errors.New("down")}})
	rec = h.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestPositions(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/positions", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/positions?owner=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/positions?owner="+alice.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	positions := body["positions"].([]any)
	require.Len(t, positions, 1)
	pos := positions[0].(map[string]any)
	assert.Equal(t, "lending", pos["protocol"])
	assert.Equal(t, []any{"1000"}, pos["amounts"])
	assert.Equal(t, "50000000000000000", pos["apy"])
	assert.Equal(t, "0.05", pos["apy_decimal"])
	assert.Equal(t, "1.5", pos["accrued_usd_decimal"])

	rec = h.do(t, http.MethodGet, "/api/positions?owner="+bob.Hex()+"&owner="+alice.Hex()+","+bob.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.engine.multi, 1)
	assert.Equal(t, []common.Address{bob, alice, bob}, h.engine.multi[0], "order and duplicates kept")
}

func TestOwnerCap(t *testing.T) {
	h := newHarness(t, nil, nil)
	carol := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	dave := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	four := alice.Hex() + "," + bob.Hex() + "," + carol.Hex() + "," + dave.Hex()

	for _, path := range []string{"/api/positions", "/api/portfolio", "/api/portfolio/breakdown"} {
		rec := h.do(t, http.MethodGet, path+"?owner="+four, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "at most 3 owners", path)
	}
	rec := h.do(t, http.MethodGet, "/api/positions?owner="+alice.Hex()+","+bob.Hex()+"&owner="+carol.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.engine.multi, 1)
	assert.Equal(t, []common.Address{alice, bob, carol}, h.engine.multi[0])
}

func TestPortfolioAndBreakdown(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/portfolio?owner="+alice.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)["summary"].(map[string]any)
	assert.Equal(t, "0", summary["total_value"])
	assert.Equal(t, "0", summary["weighted_apy"])

	rec = h.do(t, http.MethodGet, "/api/portfolio/breakdown?owner="+alice.Hex()+"&owner="+bob.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["wallets"], 2)
}

func TestPrices(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(t, http.MethodGet, "/api/prices/0x1234", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/prices/"+weth.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "200000000000", body["price"])
	assert.Equal(t, "2000", body["price_decimal"])
	assert.Equal(t, "7", body["round_id"])

	h.engine.priceErr = domain.ErrInvalidToken
	rec = h.do(t, http.MethodGet, "/api/prices/"+weth.Hex(), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.engine.priceErr = domain.ErrCallFailed
	rec = h.do(t, http.MethodGet, "/api/prices/"+weth.Hex(), nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestConfigView(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.do(t, http.MethodGet, "/api/config", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, strings.ToLower(h.owner.Address().Hex()), body["owner"])
	assert.Equal(t, float64(30), body["cache_duration_seconds"])
	assert.Len(t, body["price_feeds"], 1)
}

func TestAdmin_RequiresSignature(t *testing.T) {
	h := newHarness(t, nil, nil)
	body := []byte(`{"enabled":false}`)

	rec := h.do(t, http.MethodPut, "/api/admin/enabled", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	headers, err := h.owner.SignRequest(http.MethodPut, "/api/admin/enabled", body, time.Now())
	require.NoError(t, err)
	rec = h.do(t, http.MethodPut, "/api/admin/enabled", []byte(`{"enabled":true}`), headers)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "body is covered by the signature")

	stale, err := h.owner.SignRequest(http.MethodPut, "/api/admin/enabled", body, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	rec = h.do(t, http.MethodPut, "/api/admin/enabled", body, stale)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.True(t, h.engine.Settings().Enabled)
}

func TestAdmin_ReplayedToggleRejected(t *testing.T) {
	h := newHarness(t, nil, nil)
	off := []byte(`{"enabled":false}`)
	on := []byte(`{"enabled":true}`)

	replay, err := h.owner.SignRequest(http.MethodPut, "/api/admin/enabled", off, time.Now())
	require.NoError(t, err)
	rec := h.do(t, http.MethodPut, "/api/admin/enabled", off, replay)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.signed(t, h.owner, http.MethodPut, "/api/admin/enabled", on)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/api/admin/enabled", off, replay)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, h.engine.Settings().Enabled, "later toggle survives")
}

func TestAdmin_OwnerGate(t *testing.T) {
	h := newHarness(t, nil, nil)
	body := []byte(`{"enabled":false}`)

	rec := h.signed(t, h.other, http.MethodPut, "/api/admin/enabled", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, h.engine.Settings().Enabled)

	rec = h.signed(t, h.owner, http.MethodPut, "/api/admin/enabled", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, h.engine.Settings().Enabled)
}

func TestAdmin_Mutations(t *testing.T) {
	h := newHarness(t, nil, nil)
	token := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	feed := common.HexToAddress("0x00000000000000000000000000000000000000f4")

	rec := h.signed(t, h.owner, http.MethodPut, "/api/admin/price-feeds",
		[]byte(`{"token":"`+token.Hex()+`","feed":"`+feed.Hex()+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, ok := h.engine.Settings().Feed(token)
	require.True(t, ok)
	assert.Equal(t, feed, got)

	rec = h.signed(t, h.owner, http.MethodPut, "/api/admin/price-feeds", []byte(`{"token":"bad","feed":"`+feed.Hex()+`"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.signed(t, h.owner, http.MethodPut, "/api/admin/protocols", []byte(`{
		"lending_data_provider":"0x0000000000000000000000000000000000000011",
		"position_manager":"0x0000000000000000000000000000000000000012",
		"stable_pool":"0x0000000000000000000000000000000000000013",
		"stable_gauge":"0x0000000000000000000000000000000000000014"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, common.HexToAddress("0x13"), h.engine.Settings().Protocols.StablePool)

	rec = h.signed(t, h.owner, http.MethodPut, "/api/admin/cache-duration", []byte(`{"seconds":-1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.signed(t, h.owner, http.MethodPut, "/api/admin/cache-duration", []byte(`{"seconds":90}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90*time.Second, h.engine.Settings().CacheDuration)

	rec = h.signed(t, h.owner, http.MethodPost, "/api/admin/ownership/transfer",
		[]byte(`{"new_owner":"0x0000000000000000000000000000000000000000"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.signed(t, h.owner, http.MethodPost, "/api/admin/ownership/transfer",
		[]byte(`{"new_owner":"`+h.other.Address().Hex()+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, h.other.Address(), h.engine.Settings().Owner)

	rec = h.signed(t, h.owner, http.MethodPost, "/api/admin/ownership/renounce", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "previous owner lost the role")

	rec = h.signed(t, h.other, http.MethodPost, "/api/admin/ownership/renounce", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.Address{}, h.engine.Settings().Owner)
}

func TestAdmin_AuditNeedsStoreAndOwner(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.signed(t, h.other, http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.signed(t, h.owner, http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotsUnavailableWithoutService(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.do(t, http.MethodPost, "/api/portfolio/snapshot?owner="+alice.Hex(), nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, stubLimiter{allowed: false}, nil)
	rec := h.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	h = newHarness(t, stubLimiter{err: errors.New("redis down")}, nil)
	rec = h.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "limiter errors fail open")
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.do(t, http.MethodOptions, "/api/admin/enabled", nil, map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Signature")
}
