package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
)

// VersionStorage persists version metadata and raw content in two key spaces:
// per-stream ordered records keyed by content ref, and blobs keyed by version id.
type VersionStorage interface {
	// ListVersions returns the records of one stream, newest first.
	ListVersions(ctx context.Context, contentRef string) ([]*domain.VersionRecord, error)

	// ListAllVersions returns the records of every stream, newest first by timestamp.
	ListAllVersions(ctx context.Context) ([]*domain.VersionRecord, error)

	// GetContent returns the blob stored for versionID or domain.ErrNotFound.
	GetContent(ctx context.Context, versionID string) (string, error)

	// Commit atomically stores the new record and blob and removes the evicted
	// records together with their blobs. On error nothing is applied.
	Commit(ctx context.Context, c domain.VersionCommit) error

	// Close releases the storage.
	Close() error
}
