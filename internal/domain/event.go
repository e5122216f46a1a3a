package domain

import (
	"context"
	"time"
)

// Event names as they appear on the event bus.
const (
	EventPositionUpdated     = "position_updated"
	EventProtocolDataFetched = "protocol_data_fetched"
	EventConfigChanged       = "config_changed"
)

// Event is an append-only notification emitted by the engine. Exactly one of
// the payload pointers is set, matching Name.
type Event struct {
	Name                string               `json:"event"`
	PositionUpdated     *PositionUpdated     `json:"position_updated,omitempty"`
	ProtocolDataFetched *ProtocolDataFetched `json:"protocol_data_fetched,omitempty"`
	ConfigChanged       *ConfigChanged       `json:"config_changed,omitempty"`
	EmittedAt           time.Time            `json:"emitted_at"`
}

// PositionUpdated is emitted for every position constructed by an adapter.
type PositionUpdated struct {
	Owner      string   `json:"owner"`
	Protocol   Protocol `json:"protocol"`
	TotalValue string   `json:"total_value"` // raw, USDDecimals
	APY        string   `json:"apy"`         // raw, RateDecimals
}

// ProtocolDataFetched is emitted after each adapter run.
type ProtocolDataFetched struct {
	Protocol       Protocol `json:"protocol"`
	PositionsCount int      `json:"positions_count"`
}

// ConfigChanged is emitted after a successful owner-gated mutation.
type ConfigChanged struct {
	Action string         `json:"action"`
	Caller string         `json:"caller"`
	Detail map[string]any `json:"detail,omitempty"`
}

// EventSink receives engine events. Delivery is best effort; the engine
// never consumes its own events.
type EventSink interface {
	Emit(ctx context.Context, evt Event) error
}
