package repository

import (
	"context"
	"errors"

	"docflow/internal/model"
)

var (
	// ErrNotFound is returned by FindBy* methods when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrClaimConflict is returned when a document cannot be claimed into a batch
	// because it is no longer analyzed or already belongs to a batch.
	ErrClaimConflict = errors.New("document cannot be claimed")
	// ErrDuplicate is returned by Create when the folder already holds the same content hash.
	ErrDuplicate = errors.New("duplicate content in folder")
)

// DocumentFilter narrows List and Count. Zero values mean "any".
type DocumentFilter struct {
	Folder    model.Folder
	Statuses  []model.Status
	Unbatched bool
	Limit     int
}

// DocumentRepository defines data access for documents.
// Strictly persistence, no business logic.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindByHash returns the document of folder with the given content hash or ErrNotFound.
	FindByHash(ctx context.Context, folder model.Folder, hash string) (*model.Document, error)

	// List returns documents matching f, oldest first.
	List(ctx context.Context, f DocumentFilter) ([]model.Document, error)

	// Count returns the number of documents matching f (Limit is ignored).
	Count(ctx context.Context, f DocumentFilter) (int, error)

	// CountByStatus returns the number of documents per status.
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	// Update overwrites every mutable column of doc.
	Update(ctx context.Context, doc *model.Document) error

	// Delete removes a document by ID. It returns nil if the row did not exist.
	Delete(ctx context.Context, id string) error
}
