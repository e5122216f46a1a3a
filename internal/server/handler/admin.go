package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/server/middleware"
)

// AdminEngine is the owner-gated side of the aggregation engine.
type AdminEngine interface {
	Settings() domain.Settings
	SetPriceFeed(ctx context.Context, caller, token, feed common.Address) error
	SetProtocolAddresses(ctx context.Context, caller common.Address, addrs domain.ProtocolAddresses) error
	SetEnabled(ctx context.Context, caller common.Address, enabled bool) error
	SetCacheDuration(ctx context.Context, caller common.Address, d time.Duration) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	RenounceOwnership(ctx context.Context, caller common.Address) error
}

// AdminHandler serves the settings view and the signed admin endpoints. The
// caller address comes from the signature middleware; the engine decides
// whether that caller may act.
type AdminHandler struct {
	engine AdminEngine
	audit  domain.AuditStore // optional
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler. audit may be nil.
func NewAdminHandler(engine AdminEngine, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, audit: audit, logger: logHandler(logger, "admin")}
}

type protocolsView struct {
	LendingDataProvider common.Address `json:"lending_data_provider"`
	PositionManager     common.Address `json:"position_manager"`
	StablePool          common.Address `json:"stable_pool"`
	StableGauge         common.Address `json:"stable_gauge"`
}

type feedView struct {
	Token common.Address `json:"token"`
	Feed  common.Address `json:"feed"`
}

type configResponse struct {
	Owner                common.Address `json:"owner"`
	Enabled              bool           `json:"enabled"`
	CacheDurationSeconds int64          `json:"cache_duration_seconds"`
	Protocols            protocolsView  `json:"protocols"`
	PriceFeeds           []feedView     `json:"price_feeds"`
}

// GetConfig returns the current settings.
// GET /api/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	s := h.engine.Settings()
	feeds := make([]feedView, 0, len(s.PriceFeeds))
	for token, feed := range s.PriceFeeds {
		feeds = append(feeds, feedView{Token: token, Feed: feed})
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Token.Cmp(feeds[j].Token) < 0 })

	writeJSON(w, http.StatusOK, configResponse{
		Owner:                s.Owner,
		Enabled:              s.Enabled,
		CacheDurationSeconds: int64(s.CacheDuration / time.Second),
		Protocols: protocolsView{
			LendingDataProvider: s.Protocols.LendingDataProvider,
			PositionManager:     s.Protocols.PositionManager,
			StablePool:          s.Protocols.StablePool,
			StableGauge:         s.Protocols.StableGauge,
		},
		PriceFeeds: feeds,
	})
}

// caller returns the verified signer placed in the context by the auth
// middleware, or the zero address which the engine always rejects.
func caller(r *http.Request) common.Address {
	addr, _ := middleware.CallerFrom(r.Context())
	return addr
}

func (h *AdminHandler) done(w http.ResponseWriter, r *http.Request, op string, err error) {
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setPriceFeedRequest struct {
	Token string `json:"token"`
	Feed  string `json:"feed"`
}

// SetPriceFeed registers or overwrites the feed for a token.
// PUT /api/admin/price-feeds
func (h *AdminHandler) SetPriceFeed(w http.ResponseWriter, r *http.Request) {
	var req setPriceFeedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress(req.Token, domain.ErrInvalidToken)
	if err != nil {
		writeDomainError(w, r, h.logger, "set price feed", err)
		return
	}
	feed, err := parseAddress(req.Feed, domain.ErrInvalidToken)
	if err != nil {
		writeDomainError(w, r, h.logger, "set price feed", err)
		return
	}
	h.done(w, r, "set price feed", h.engine.SetPriceFeed(r.Context(), caller(r), token, feed))
}

type setProtocolsRequest struct {
	LendingDataProvider string `json:"lending_data_provider"`
	PositionManager     string `json:"position_manager"`
	StablePool          string `json:"stable_pool"`
	StableGauge         string `json:"stable_gauge"`
}

// SetProtocols replaces all four protocol endpoints.
// PUT /api/admin/protocols
func (h *AdminHandler) SetProtocols(w http.ResponseWriter, r *http.Request) {
	var req setProtocolsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var addrs domain.ProtocolAddresses
	for _, f := range []struct {
		in  string
		out *common.Address
	}{
		{req.LendingDataProvider, &addrs.LendingDataProvider},
		{req.PositionManager, &addrs.PositionManager},
		{req.StablePool, &addrs.StablePool},
		{req.StableGauge, &addrs.StableGauge},
	} {
		addr, err := parseAddress(f.in, domain.ErrInvalidProtocol)
		if err != nil {
			writeDomainError(w, r, h.logger, "set protocols", err)
			return
		}
		*f.out = addr
	}
	h.done(w, r, "set protocols", h.engine.SetProtocolAddresses(r.Context(), caller(r), addrs))
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetEnabled switches aggregation on or off.
// PUT /api/admin/enabled
func (h *AdminHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := decodeBody(r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	h.done(w, r, "set enabled", h.engine.SetEnabled(r.Context(), caller(r), *req.Enabled))
}

type setCacheDurationRequest struct {
	Seconds *int64 `json:"seconds"`
}

// SetCacheDuration stores the cache duration setting.
// PUT /api/admin/cache-duration
func (h *AdminHandler) SetCacheDuration(w http.ResponseWriter, r *http.Request) {
	var req setCacheDurationRequest
	if err := decodeBody(r, &req); err != nil || req.Seconds == nil || *req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, `body must be {"seconds": n} with n >= 0`)
		return
	}
	d := time.Duration(*req.Seconds) * time.Second
	h.done(w, r, "set cache duration", h.engine.SetCacheDuration(r.Context(), caller(r), d))
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

// TransferOwnership hands the owner role to another address.
// POST /api/admin/ownership/transfer
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	newOwner, err := parseAddress(req.NewOwner, domain.ErrInvalidOwner)
	if err != nil {
		writeDomainError(w, r, h.logger, "transfer ownership", err)
		return
	}
	h.done(w, r, "transfer ownership", h.engine.TransferOwnership(r.Context(), caller(r), newOwner))
}

// RenounceOwnership clears the owner, freezing all settings.
// POST /api/admin/ownership/renounce
func (h *AdminHandler) RenounceOwnership(w http.ResponseWriter, r *http.Request) {
	h.done(w, r, "renounce ownership", h.engine.RenounceOwnership(r.Context(), caller(r)))
}

type auditView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListAudit returns the admin audit log, newest first. Only the current
// owner may read it.
// GET /api/admin/audit?limit=&offset=
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	owner := h.engine.Settings().Owner
	if c := caller(r); owner == (common.Address{}) || c != owner {
		writeError(w, http.StatusForbidden, domain.ErrUnauthorizedAccount.Error())
		return
	}
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list audit", err)
		return
	}
	views := make([]auditView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditView{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
