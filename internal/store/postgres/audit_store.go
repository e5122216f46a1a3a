package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

const defaultAuditLimit = 100

// AuditStore is the append-only log of successful owner actions
// (audit_log table).
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

type auditRow struct {
	ID        int64          `db:"id"`
	Event     string         `db:"event"`
	Detail    map[string]any `db:"detail"`
	CreatedAt time.Time      `db:"created_at"`
}

// Log records event with its detail as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, detail,
	); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first within opts.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := buildListQuery(
		`SELECT id, event, detail, created_at FROM audit_log WHERE TRUE`,
		"created_at", nil, opts, defaultAuditLimit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit log: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit log: %w", err)
	}

	entries := make([]domain.AuditEntry, len(found))
	for i, r := range found {
		entries[i] = domain.AuditEntry{ID: r.ID, Event: r.Event, Detail: r.Detail, CreatedAt: r.CreatedAt}
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
