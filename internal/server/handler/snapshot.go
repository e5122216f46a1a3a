package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/service"
)

// SnapshotService records and serves portfolio snapshots.
type SnapshotService interface {
	Take(ctx context.Context, owners []common.Address) (domain.Snapshot, error)
	History(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Snapshot, error)
	Document(ctx context.Context, id string) (service.SnapshotDocument, error)
}

// SnapshotHandler serves snapshot endpoints. A nil service answers 503.
type SnapshotHandler struct {
	snapshots SnapshotService
	maxOwners int
	logger    *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler. maxOwners caps the owners
// per snapshot; zero means DefaultMaxOwners.
func NewSnapshotHandler(snapshots SnapshotService, maxOwners int, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, maxOwners: maxOwners, logger: logHandler(logger, "snapshot")}
}

type snapshotView struct {
	ID             string                  `json:"id"`
	Owners         []common.Address        `json:"owners"`
	Summary        domain.PortfolioSummary `json:"summary"`
	PositionsCount int                     `json:"positions_count"`
	BlobPath       string                  `json:"blob_path,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

func toSnapshotView(s domain.Snapshot) snapshotView {
	return snapshotView{
		ID:             s.ID,
		Owners:         s.Owners,
		Summary:        s.Summary,
		PositionsCount: s.PositionsCount,
		BlobPath:       s.BlobPath,
		CreatedAt:      s.CreatedAt,
	}
}

func (h *SnapshotHandler) available(w http.ResponseWriter) bool {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrUnavailable.Error())
		return false
	}
	return true
}

// TakeSnapshot values the owners now and stores the result.
// POST /api/portfolio/snapshot?owner=0x..[&owner=0x..]
func (h *SnapshotHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	owners, err := parseOwners(r, h.maxOwners)
	if err != nil {
		writeDomainError(w, r, h.logger, "take snapshot", err)
		return
	}
	snap, err := h.snapshots.Take(r.Context(), owners)
	if err != nil {
		writeDomainError(w, r, h.logger, "take snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotView(snap))
}

// ListHistory returns stored snapshots that include the owner, newest first.
// GET /api/portfolio/history?owner=0x..&limit=&offset=
func (h *SnapshotHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	owner, err := parseAddress(r.URL.Query().Get("owner"), domain.ErrInvalidOwner)
	if err != nil {
		writeDomainError(w, r, h.logger, "snapshot history", err)
		return
	}
	snaps, err := h.snapshots.History(r.Context(), owner, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "snapshot history", err)
		return
	}
	views := make([]snapshotView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, toSnapshotView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": views})
}

// GetSnapshot returns the archived snapshot document.
// GET /api/portfolio/snapshot/{id}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	doc, err := h.snapshots.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
