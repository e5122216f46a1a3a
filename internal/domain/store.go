package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettingsStore persists engine settings. Load returns ErrNotFound until
// the first Save.
type SettingsStore interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only log of owner actions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Snapshot is a stored portfolio summary for a set of owners.
type Snapshot struct {
	ID             string
	Owners         []common.Address
	Summary        PortfolioSummary
	PositionsCount int
	BlobPath       string // empty when no blob storage is configured
	CreatedAt      time.Time
}

// SnapshotStore persists portfolio snapshot history.
type SnapshotStore interface {
	Insert(ctx context.Context, snap Snapshot) error
	GetByID(ctx context.Context, id string) (Snapshot, error)
	ListByOwner(ctx context.Context, owner common.Address, opts ListOpts) ([]Snapshot, error)
}
