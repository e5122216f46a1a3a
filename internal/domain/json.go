package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

// Wire forms. Fixed-point fields carry the raw integer as a string plus a
// human-readable decimal rendering; amounts are decimal strings.

type positionJSON struct {
	Owner             common.Address   `json:"owner"`
	Protocol          string           `json:"protocol"`
	ProtocolID        uint8            `json:"protocol_id"`
	Assets            []common.Address `json:"assets"`
	Amounts           []string         `json:"amounts"`
	APR               fixed.Value      `json:"apr"`
	APY               fixed.Value      `json:"apy"`
	APYDecimal        string           `json:"apy_decimal"`
	AccruedUSD        fixed.Value      `json:"accrued_usd"`
	AccruedUSDDecimal string           `json:"accrued_usd_decimal"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler.
func (p Position) MarshalJSON() ([]byte, error) {
	amounts := make([]string, len(p.Amounts))
	for i, a := range p.Amounts {
		if a == nil {
			amounts[i] = "0"
			continue
		}
		amounts[i] = a.String()
	}
	assets := p.Assets
	if assets == nil {
		assets = []common.Address{}
	}
	return json.Marshal(positionJSON{
		Owner:             p.Owner,
		Protocol:          p.Protocol.String(),
		ProtocolID:        uint8(p.Protocol),
		Assets:            assets,
		Amounts:           amounts,
		APR:               p.APR,
		APY:               p.APY,
		APYDecimal:        p.APY.String(),
		AccruedUSD:        p.AccruedUSD,
		AccruedUSDDecimal: p.AccruedUSD.String(),
		UpdatedAt:         p.UpdatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Position) UnmarshalJSON(data []byte) error {
	var w positionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	proto := Protocol(w.ProtocolID)
	if !proto.Valid() {
		return fmt.Errorf("%w: id %d", ErrInvalidProtocol, w.ProtocolID)
	}
	if w.Protocol != "" {
		parsed, err := ParseProtocol(w.Protocol)
		if err != nil {
			return err
		}
		proto = parsed
	}
	amounts := make([]*big.Int, len(w.Amounts))
	for i, s := range w.Amounts {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("domain: invalid amount %q", s)
		}
		amounts[i] = n
	}
	*p = Position{
		Owner:      w.Owner,
		Protocol:   proto,
		Assets:     w.Assets,
		Amounts:    amounts,
		APR:        fixed.New(w.APR.Raw(), RateDecimals),
		APY:        fixed.New(w.APY.Raw(), RateDecimals),
		AccruedUSD: fixed.New(w.AccruedUSD.Raw(), USDDecimals),
		UpdatedAt:  w.UpdatedAt,
	}
	return nil
}

type summaryJSON struct {
	TotalValue          fixed.Value `json:"total_value"`
	TotalValueDecimal   string      `json:"total_value_decimal"`
	TotalAccrued        fixed.Value `json:"total_accrued"`
	TotalAccruedDecimal string      `json:"total_accrued_decimal"`
	WeightedAPY         fixed.Value `json:"weighted_apy"`
	WeightedAPYDecimal  string      `json:"weighted_apy_decimal"`
	LastUpdated         time.Time   `json:"last_updated"`
}

// MarshalJSON implements json.Marshaler.
func (s PortfolioSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		TotalValue:          s.TotalValue,
		TotalValueDecimal:   s.TotalValue.String(),
		TotalAccrued:        s.TotalAccrued,
		TotalAccruedDecimal: s.TotalAccrued.String(),
		WeightedAPY:         s.WeightedAPY,
		WeightedAPYDecimal:  s.WeightedAPY.String(),
		LastUpdated:         s.LastUpdated,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PortfolioSummary) UnmarshalJSON(data []byte) error {
	var w summaryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = PortfolioSummary{
		TotalValue:   fixed.New(w.TotalValue.Raw(), USDDecimals),
		TotalAccrued: fixed.New(w.TotalAccrued.Raw(), USDDecimals),
		WeightedAPY:  fixed.New(w.WeightedAPY.Raw(), RateDecimals),
		LastUpdated:  w.LastUpdated,
	}
	return nil
}
