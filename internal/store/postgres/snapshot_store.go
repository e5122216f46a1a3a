package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

const defaultSnapshotLimit = 50

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Fixed-point
// values are stored as NUMERIC raw integers and exchanged as text so no
// precision is lost.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `id::text, owners, total_value::text, total_accrued::text,
	weighted_apy::text, positions_count, blob_path, last_updated, created_at`

// Insert stores snap. Owners are stored as lowercase hex so lookups are
// case-insensitive.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.Snapshot) error {
	const query = `
		INSERT INTO portfolio_snapshots (
			id, owners, total_value, total_accrued, weighted_apy,
			positions_count, blob_path, last_updated, created_at
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		snap.ID,
		ownerKeys(snap.Owners),
		snap.Summary.TotalValue.Raw().String(),
		snap.Summary.TotalAccrued.Raw().String(),
		snap.Summary.WeightedAPY.Raw().String(),
		snap.PositionsCount,
		snap.BlobPath,
		snap.Summary.LastUpdated,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// GetByID returns the snapshot or domain.ErrNotFound.
func (s *SnapshotStore) GetByID(ctx context.Context, id string) (domain.Snapshot, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM portfolio_snapshots WHERE id::text = $1`
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: get snapshot %s: %w", id, err)
	}
	return snap, nil
}

// ListByOwner returns snapshots that include owner, newest first.
func (s *SnapshotStore) ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Snapshot, error) {
	query, args := buildListQuery(
		`SELECT `+snapshotSelectCols+` FROM portfolio_snapshots WHERE $1 = ANY(owners)`,
		"created_at", []any{ownerKey(owner)}, opts, defaultSnapshotLimit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	out := []domain.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (domain.Snapshot, error) {
	var (
		snap                    domain.Snapshot
		owners                  []string
		total, accrued, apy     string
		lastUpdated, createdAtT time.Time
	)
	if err := row.Scan(&snap.ID, &owners, &total, &accrued, &apy,
		&snap.PositionsCount, &snap.BlobPath, &lastUpdated, &createdAtT); err != nil {
		return domain.Snapshot{}, err
	}

	var err error
	snap.Summary.TotalValue, err = parseFixed(total, domain.USDDecimals)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Summary.TotalAccrued, err = parseFixed(accrued, domain.USDDecimals)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Summary.WeightedAPY, err = parseFixed(apy, domain.RateDecimals)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Summary.LastUpdated = lastUpdated.UTC()
	snap.CreatedAt = createdAtT.UTC()

	snap.Owners = make([]common.Address, len(owners))
	for i, o := range owners {
		snap.Owners[i] = common.HexToAddress(o)
	}
	return snap, nil
}

func parseFixed(raw string, decimals int32) (fixed.Value, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fixed.Value{}, fmt.Errorf("postgres: invalid numeric %q", raw)
	}
	return fixed.New(n, decimals), nil
}

func ownerKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func ownerKeys(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = ownerKey(a)
	}
	return out
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
