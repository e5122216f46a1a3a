package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

// PortfolioReader is the read side of the aggregation engine.
type PortfolioReader interface {
	GetPositions(ctx context.Context, owner common.Address) []domain.Position
	GetPositionsMulti(ctx context.Context, owners []common.Address) []domain.Position
	GetPortfolioSummary(ctx context.Context, owner common.Address) domain.PortfolioSummary
	GetPortfolioSummaryMulti(ctx context.Context, owners []common.Address) domain.PortfolioSummary
	GetWalletBreakdown(ctx context.Context, owners []common.Address) domain.WalletBreakdown
}

// PortfolioHandler serves position and valuation endpoints.
type PortfolioHandler struct {
	portfolio PortfolioReader
	maxOwners int
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler. maxOwners caps the owners
// per request; zero means DefaultMaxOwners.
func NewPortfolioHandler(portfolio PortfolioReader, maxOwners int, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, maxOwners: maxOwners, logger: logHandler(logger, "portfolio")}
}

type positionsResponse struct {
	Owners    []common.Address  `json:"owners"`
	Positions []domain.Position `json:"positions"`
}

type summaryResponse struct {
	Owners  []common.Address        `json:"owners"`
	Summary domain.PortfolioSummary `json:"summary"`
}

// ListPositions returns the positions of one or more owners in request order.
// GET /api/positions?owner=0x..[&owner=0x..]
func (h *PortfolioHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owners, err := parseOwners(r, h.maxOwners)
	if err != nil {
		writeDomainError(w, r, h.logger, "list positions", err)
		return
	}

	var positions []domain.Position
	if len(owners) == 1 {
		positions = h.portfolio.GetPositions(r.Context(), owners[0])
	} else {
		positions = h.portfolio.GetPositionsMulti(r.Context(), owners)
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positionsResponse{Owners: owners, Positions: positions})
}

// GetSummary returns the valuation summary across the given owners.
// GET /api/portfolio?owner=0x..[&owner=0x..]
func (h *PortfolioHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	owners, err := parseOwners(r, h.maxOwners)
	if err != nil {
		writeDomainError(w, r, h.logger, "portfolio summary", err)
		return
	}

	var summary domain.PortfolioSummary
	if len(owners) == 1 {
		summary = h.portfolio.GetPortfolioSummary(r.Context(), owners[0])
	} else {
		summary = h.portfolio.GetPortfolioSummaryMulti(r.Context(), owners)
	}
	writeJSON(w, http.StatusOK, summaryResponse{Owners: owners, Summary: summary})
}

// GetBreakdown returns per-wallet positions and summaries plus the aggregate.
// GET /api/portfolio/breakdown?owner=0x..&owner=0x..
func (h *PortfolioHandler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	owners, err := parseOwners(r, h.maxOwners)
	if err != nil {
		writeDomainError(w, r, h.logger, "portfolio breakdown", err)
		return
	}
	writeJSON(w, http.StatusOK, h.portfolio.GetWalletBreakdown(r.Context(), owners))
}
