package repository

import (
	"context"

	"docflow/internal/model"
)

// BatchRepository persists batches. Methods that change membership also write the
// member document rows in the same transaction so that a document's batch_id and
// status never disagree with the batch it belongs to.
type BatchRepository interface {
	// CreateClaiming inserts b and moves every document in b.DocumentIDs from
	// analyzed/unbatched to batched with batch_id = b.ID. All or nothing: if any
	// document cannot be claimed, nothing is written and the error wraps
	// ErrClaimConflict naming that document.
	CreateClaiming(ctx context.Context, b *model.Batch) error

	// Claim writes b (which already lists docID) and claims docID for it.
	Claim(ctx context.Context, b *model.Batch, docID string) error

	// Release writes b (which no longer lists docID) and returns docID to analyzed.
	Release(ctx context.Context, b *model.Batch, docID string) error

	// DeleteReleasing removes the batch row and returns all its members to analyzed.
	DeleteReleasing(ctx context.Context, b *model.Batch) error

	FindByID(ctx context.Context, id string) (*model.Batch, error)
	List(ctx context.Context) ([]model.Batch, error)

	// Update writes status, artifact and regeneration flag of b.
	Update(ctx context.Context, b *model.Batch) error

	// Stats returns the total number of batches and how many need regeneration.
	Stats(ctx context.Context) (total int, stale int, err error)
}

// ArtifactRepository persists consolidated artifact metadata.
type ArtifactRepository interface {
	Create(ctx context.Context, a *model.Artifact) error
	FindByID(ctx context.Context, id string) (*model.Artifact, error)
	List(ctx context.Context) ([]model.Artifact, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}

// AuditRepository appends and lists audit entries.
type AuditRepository interface {
	Append(ctx context.Context, e *model.AuditEntry) error
	// List returns the newest entries first.
	List(ctx context.Context, limit int) ([]model.AuditEntry, error)
}
