package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/portfolio"
)

// BreakdownReader produces the per-wallet view a snapshot is taken from.
type BreakdownReader interface {
	GetWalletBreakdown(ctx context.Context, owners []common.Address) domain.WalletBreakdown
}

// SnapshotDocument is the JSON object archived to blob storage.
type SnapshotDocument struct {
	ID         string                 `json:"id"`
	Owners     []common.Address       `json:"owners"`
	Breakdown  domain.WalletBreakdown `json:"breakdown"`
	ByProtocol map[string]int         `json:"positions_by_protocol,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// protocolCounts counts the breakdown's positions per protocol name.
func protocolCounts(b domain.WalletBreakdown) map[string]int {
	var all []domain.Position
	for _, w := range b.Wallets {
		all = append(all, w.Positions...)
	}
	out := make(map[string]int, len(domain.Protocols))
	for p, n := range portfolio.PositionsByProtocol(all) {
		out[p.String()] = n
	}
	return out
}

// SnapshotService records portfolio snapshots in the history store and
// archives the full breakdown as a JSON document.
type SnapshotService struct {
	portfolio BreakdownReader
	store     domain.SnapshotStore
	archive   domain.SnapshotArchive // optional
	now       func() time.Time
	logger    *slog.Logger
}

// NewSnapshotService creates a SnapshotService. archive may be nil when no
// object storage is configured.
func NewSnapshotService(
	portfolio BreakdownReader,
	store domain.SnapshotStore,
	archive domain.SnapshotArchive,
	logger *slog.Logger,
) *SnapshotService {
	return &SnapshotService{
		portfolio: portfolio,
		store:     store,
		archive:   archive,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "snapshot_service")),
	}
}

// Take computes the breakdown for owners and persists it. The blob upload is
// best effort: a failed upload is logged and the row is stored without a path.
func (s *SnapshotService) Take(ctx context.Context, owners []common.Address) (domain.Snapshot, error) {
	if s.store == nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot_service: history store: %w", domain.ErrUnavailable)
	}
	if len(owners) == 0 {
		return domain.Snapshot{}, fmt.Errorf("snapshot_service: %w: no owners", domain.ErrInvalidOwner)
	}

	breakdown := s.portfolio.GetWalletBreakdown(ctx, owners)

	now := s.now()
	snap := domain.Snapshot{
		ID:        uuid.NewString(),
		Owners:    append([]common.Address(nil), owners...),
		Summary:   breakdown.Aggregated,
		CreatedAt: now,
	}
	for _, w := range breakdown.Wallets {
		snap.PositionsCount += len(w.Positions)
	}

	if s.archive != nil {
		path := snapshotPath(snap.ID, now)
		doc := SnapshotDocument{
			ID:         snap.ID,
			Owners:     snap.Owners,
			Breakdown:  breakdown,
			ByProtocol: protocolCounts(breakdown),
			CreatedAt:  now,
		}
		if err := s.putDocument(ctx, path, doc); err != nil {
			s.logger.WarnContext(ctx, "snapshot archive failed",
				slog.String("snapshot_id", snap.ID),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else {
			snap.BlobPath = path
		}
	}

	if err := s.store.Insert(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot_service: insert: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot taken",
		slog.String("snapshot_id", snap.ID),
		slog.Int("owners", len(snap.Owners)),
		slog.Int("positions", snap.PositionsCount),
		slog.String("total_value", snap.Summary.TotalValue.String()),
	)
	return snap, nil
}

// History lists stored snapshots that include owner, newest first.
func (s *SnapshotService) History(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Snapshot, error) {
	if s.store == nil {
		return nil, fmt.Errorf("snapshot_service: history store: %w", domain.ErrUnavailable)
	}
	snaps, err := s.store.ListByOwner(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot_service: list: %w", err)
	}
	return snaps, nil
}

// Document returns the archived document for id. Snapshots without a blob
// yield a document carrying only the aggregated summary.
func (s *SnapshotService) Document(ctx context.Context, id string) (SnapshotDocument, error) {
	if s.store == nil {
		return SnapshotDocument{}, fmt.Errorf("snapshot_service: history store: %w", domain.ErrUnavailable)
	}
	snap, err := s.store.GetByID(ctx, id)
	if err != nil {
		return SnapshotDocument{}, fmt.Errorf("snapshot_service: get %s: %w", id, err)
	}

	if snap.BlobPath == "" || s.archive == nil {
		return SnapshotDocument{
			ID:        snap.ID,
			Owners:    snap.Owners,
			Breakdown: domain.WalletBreakdown{Wallets: []domain.WalletPortfolio{}, Aggregated: snap.Summary},
			CreatedAt: snap.CreatedAt,
		}, nil
	}

	raw, err := s.archive.GetDocument(ctx, snap.BlobPath)
	if err != nil {
		return SnapshotDocument{}, fmt.Errorf("snapshot_service: read %s: %w", snap.BlobPath, err)
	}

	var doc SnapshotDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SnapshotDocument{}, fmt.Errorf("snapshot_service: decode %s: %w", snap.BlobPath, err)
	}
	return doc, nil
}

func (s *SnapshotService) putDocument(ctx context.Context, path string, doc SnapshotDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.archive.PutDocument(ctx, path, data)
}

// snapshotPath partitions archived documents by UTC day.
func snapshotPath(id string, at time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s.json", at.UTC().Format("2006/01/02"), id)
}

