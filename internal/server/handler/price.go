package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
	"github.com/alanyoungcy/yieldagg/internal/oracle"
)

// PriceReader resolves token prices through the registered feeds.
type PriceReader interface {
	LatestRound(ctx context.Context, token common.Address) (oracle.Round, error)
	ResolvePrice(ctx context.Context, token common.Address) (fixed.Value, error)
}

// PriceHandler serves the price lookup endpoint.
type PriceHandler struct {
	prices PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logHandler(logger, "price")}
}

type priceResponse struct {
	Token        common.Address `json:"token"`
	Feed         common.Address `json:"feed"`
	Price        fixed.Value    `json:"price"`
	PriceDecimal string         `json:"price_decimal"`
	Decimals     int32          `json:"decimals"`
	RoundID      string         `json:"round_id"`
	UpdatedAt    string         `json:"updated_at"`
}

// GetPrice resolves the latest price for a token.
// GET /api/prices/{token}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress(r.PathValue("token"), domain.ErrInvalidToken)
	if err != nil {
		writeDomainError(w, r, h.logger, "get price", err)
		return
	}

	round, err := h.prices.LatestRound(r.Context(), token)
	if err != nil {
		writeDomainError(w, r, h.logger, "get price", err)
		return
	}
	price, err := h.prices.ResolvePrice(r.Context(), token)
	if err != nil {
		writeDomainError(w, r, h.logger, "get price", err)
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Token:        token,
		Feed:         round.Feed,
		Price:        price,
		PriceDecimal: price.String(),
		Decimals:     price.Decimals(),
		RoundID:      bigString(round.RoundID),
		UpdatedAt:    bigString(round.UpdatedAt),
	})
}
