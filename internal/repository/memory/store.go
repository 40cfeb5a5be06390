// Package memory provides in-process implementations of the repository ports.
// All repositories created from one Store share a single lock, which makes the
// batch claim operations atomic across documents and batches.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docflow/internal/model"
	"docflow/internal/repository"
)

// Store holds every table in memory.
type Store struct {
	mu        sync.RWMutex
	documents map[string]model.Document
	batches   map[string]model.Batch
	artifacts map[string]model.Artifact
	audit     []model.AuditEntry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]model.Document),
		batches:   make(map[string]model.Batch),
		artifacts: make(map[string]model.Artifact),
	}
}

func (s *Store) Documents() *Documents { return &Documents{s: s} }
func (s *Store) Batches() *Batches     { return &Batches{s: s} }
func (s *Store) Artifacts() *Artifacts { return &Artifacts{s: s} }
func (s *Store) Audit() *Audit         { return &Audit{s: s} }

// cloneDoc copies d so callers never alias stored pointers.
func cloneDoc(d model.Document) model.Document {
	out := d
	out.ParentID = clonePtr(d.ParentID)
	out.BatchID = clonePtr(d.BatchID)
	out.ReplacedAt = clonePtr(d.ReplacedAt)
	out.Counterparty = clonePtr(d.Counterparty)
	out.Amount = clonePtr(d.Amount)
	out.Date = clonePtr(d.Date)
	out.TaxID = clonePtr(d.TaxID)
	out.DocumentNumber = clonePtr(d.DocumentNumber)
	out.Concept = clonePtr(d.Concept)
	return out
}

func cloneBatch(b model.Batch) model.Batch {
	out := b
	out.DocumentIDs = append([]string(nil), b.DocumentIDs...)
	out.ArtifactID = clonePtr(b.ArtifactID)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Documents implements repository.DocumentRepository.
type Documents struct{ s *Store }

var _ repository.DocumentRepository = (*Documents)(nil)

func (r *Documents) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.documents[doc.ID]; ok {
		return nil, fmt.Errorf("document %s already exists", doc.ID)
	}
	for _, d := range r.s.documents {
		if d.Folder == doc.Folder && d.ContentHash == doc.ContentHash {
			return nil, fmt.Errorf("%w: %s", repository.ErrDuplicate, doc.Folder)
		}
	}
	r.s.documents[doc.ID] = cloneDoc(*doc)
	out := cloneDoc(*doc)
	return &out, nil
}

func (r *Documents) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneDoc(d)
	return &out, nil
}

func (r *Documents) FindByHash(_ context.Context, folder model.Folder, hash string) (*model.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, d := range r.s.documents {
		if d.Folder == folder && d.ContentHash == hash {
			out := cloneDoc(d)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func matches(d model.Document, f repository.DocumentFilter) bool {
	if f.Folder != "" && d.Folder != f.Folder {
		return false
	}
	if f.Unbatched && d.BatchID != nil {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if d.Status == s {
			return true
		}
	}
	return false
}

func (r *Documents) List(_ context.Context, f repository.DocumentFilter) ([]model.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]model.Document, 0)
	for _, d := range r.s.documents {
		if matches(d, f) {
			items = append(items, cloneDoc(d))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (r *Documents) Count(ctx context.Context, f repository.DocumentFilter) (int, error) {
	f.Limit = 0
	items, err := r.List(ctx, f)
	return len(items), err
}

func (r *Documents) CountByStatus(_ context.Context) (map[model.Status]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[model.Status]int)
	for _, d := range r.s.documents {
		out[d.Status]++
	}
	return out, nil
}

func (r *Documents) Update(_ context.Context, doc *model.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.documents[doc.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := cloneDoc(*doc)
	// Immutable columns keep their stored values.
	next.Folder = cur.Folder
	next.ParentID = cur.ParentID
	next.UploadedBy = cur.UploadedBy
	next.CreatedAt = cur.CreatedAt
	r.s.documents[doc.ID] = next
	return nil
}

func (r *Documents) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.documents, id)
	return nil
}

// Batches implements repository.BatchRepository.
type Batches struct{ s *Store }

var _ repository.BatchRepository = (*Batches)(nil)

// claimable must be called with the store lock held.
func (r *Batches) claimable(docID string) error {
	d, ok := r.s.documents[docID]
	if !ok || d.Status != model.StatusAnalyzed || d.BatchID != nil {
		return fmt.Errorf("%w: %s", repository.ErrClaimConflict, docID)
	}
	return nil
}

func (r *Batches) claim(b *model.Batch, docID string) {
	d := r.s.documents[docID]
	id := b.ID
	d.Status = model.StatusBatched
	d.BatchID = &id
	d.UpdatedAt = b.UpdatedAt
	r.s.documents[docID] = d
}

func (r *Batches) release(b *model.Batch, docID string) {
	d, ok := r.s.documents[docID]
	if !ok || d.BatchID == nil || *d.BatchID != b.ID {
		return
	}
	d.Status = model.StatusAnalyzed
	d.BatchID = nil
	d.UpdatedAt = b.UpdatedAt
	r.s.documents[docID] = d
}

func (r *Batches) CreateClaiming(_ context.Context, b *model.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	for _, id := range b.DocumentIDs {
		if err := r.claimable(id); err != nil {
			return err
		}
	}
	for _, id := range b.DocumentIDs {
		r.claim(b, id)
	}
	r.s.batches[b.ID] = cloneBatch(*b)
	return nil
}

func (r *Batches) Claim(_ context.Context, b *model.Batch, docID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.claimable(docID); err != nil {
		return err
	}
	r.claim(b, docID)
	r.s.batches[b.ID] = cloneBatch(*b)
	return nil
}

func (r *Batches) Release(_ context.Context, b *model.Batch, docID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; !ok {
		return repository.ErrNotFound
	}
	r.release(b, docID)
	r.s.batches[b.ID] = cloneBatch(*b)
	return nil
}

func (r *Batches) DeleteReleasing(_ context.Context, b *model.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, d := range r.s.documents {
		if d.BatchID != nil && *d.BatchID == b.ID {
			r.release(b, id)
		}
	}
	delete(r.s.batches, b.ID)
	return nil
}

func (r *Batches) FindByID(_ context.Context, id string) (*model.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneBatch(b)
	return &out, nil
}

func (r *Batches) List(_ context.Context) ([]model.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]model.Batch, 0, len(r.s.batches))
	for _, b := range r.s.batches {
		items = append(items, cloneBatch(b))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (r *Batches) Update(_ context.Context, b *model.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.batches[b.ID] = cloneBatch(*b)
	return nil
}

func (r *Batches) Stats(_ context.Context) (int, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stale := 0
	for _, b := range r.s.batches {
		if b.NeedsRegeneration {
			stale++
		}
	}
	return len(r.s.batches), stale, nil
}

// Artifacts implements repository.ArtifactRepository.
type Artifacts struct{ s *Store }

var _ repository.ArtifactRepository = (*Artifacts)(nil)

func (r *Artifacts) Create(_ context.Context, a *model.Artifact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.artifacts[a.ID] = *a
	return nil
}

func (r *Artifacts) FindByID(_ context.Context, id string) (*model.Artifact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.artifacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *Artifacts) List(_ context.Context) ([]model.Artifact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]model.Artifact, 0, len(r.s.artifacts))
	for _, a := range r.s.artifacts {
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (r *Artifacts) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.artifacts), nil
}

func (r *Artifacts) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.artifacts, id)
	return nil
}

// Audit implements repository.AuditRepository.
type Audit struct{ s *Store }

var _ repository.AuditRepository = (*Audit)(nil)

func (r *Audit) Append(_ context.Context, e *model.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r *Audit) List(_ context.Context, limit int) ([]model.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.AuditEntry, 0, limit)
	for i := len(r.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.s.audit[i])
	}
	return out, nil
}
