package domain

import "context"

// SnapshotArchive keeps immutable JSON documents describing portfolio
// snapshots. Keys are relative object paths such as
// "snapshots/2024/01/31/<id>.json".
type SnapshotArchive interface {
	PutDocument(ctx context.Context, key string, doc []byte) error
	// GetDocument returns ErrNotFound when nothing is stored under key.
	GetDocument(ctx context.Context, key string) ([]byte, error)
}
