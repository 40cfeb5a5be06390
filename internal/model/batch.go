package model

import "time"

// BatchStatus is the consolidation state of a Batch.
type BatchStatus string

const (
	BatchCreated    BatchStatus = "created"
	BatchGenerating BatchStatus = "generating"
	BatchReady      BatchStatus = "ready"
)

// Batch is a set of documents believed to represent one payment event.
// DocumentIDs keeps insertion order.
type Batch struct {
	ID                string      `json:"id"`
	DocumentIDs       []string    `json:"document_ids"`
	Status            BatchStatus `json:"status"`
	ArtifactID        *string     `json:"artifact_id,omitempty"`
	NeedsRegeneration bool        `json:"needs_regeneration"`
	CreatedBy         string      `json:"created_by"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Has reports whether id is a member of the batch.
func (b *Batch) Has(id string) bool {
	for _, d := range b.DocumentIDs {
		if d == id {
			return true
		}
	}
	return false
}

// Artifact is the merged PDF produced for a batch. It is replaced wholesale on regeneration.
type Artifact struct {
	ID         string    `json:"id"`
	BatchID    string    `json:"batch_id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	StorageKey string    `json:"storage_key"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}
