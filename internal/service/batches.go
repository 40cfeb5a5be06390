package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"docflow/internal/lock"
	"docflow/internal/model"
	"docflow/internal/repository"
	"docflow/internal/storage"
)

// BatchView is a batch with its member documents in page order.
type BatchView struct {
	model.Batch
	Documents []model.Document `json:"documents"`
}

// BatchService manages batch membership.
type BatchService interface {
	// CreateBatch claims every id into a new batch. All or nothing: the first id that
	// is missing, not analyzed or already batched fails the call and nothing is claimed.
	CreateBatch(ctx context.Context, ids []string) (*model.Batch, error)
	// AddDocument uploads f into folder, analyzes it and claims it into the batch.
	AddDocument(ctx context.Context, batchID string, folder model.Folder, f FileInput) (*model.Document, error)
	// RemoveDocument returns docID to the free pool. A batch never becomes empty.
	RemoveDocument(ctx context.Context, batchID, docID string) (*model.Batch, error)
	// ReplaceDocumentFile swaps the bytes of a batched document, keeping its id and membership.
	ReplaceDocumentFile(ctx context.Context, docID string, f FileInput) (*model.Document, error)
	// DeleteBatch releases every member and removes the batch with its artifact.
	DeleteBatch(ctx context.Context, batchID string) error

	Get(ctx context.Context, id string) (*BatchView, error)
	List(ctx context.Context) ([]BatchView, error)
}

type batchService struct {
	*core
	documents *documentService
}

// dedupe drops blanks and repeated ids, keeping first occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func documentKeys(ids []string) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lock.DocumentKey(id))
	}
	return keys
}

// checkBatch verifies the artifact and membership invariants of b.
func checkBatch(b *model.Batch) error {
	if len(b.DocumentIDs) == 0 {
		return fmt.Errorf("%w: batch %s has no documents", ErrConflict, b.ID)
	}
	if b.ArtifactID != nil && b.Status != model.BatchReady {
		return fmt.Errorf("%w: batch %s has an artifact but is %s", ErrConflict, b.ID, b.Status)
	}
	return nil
}

// markDirty is the only place that raises needs_regeneration. Every mutator that
// changes the membership or content of a batch calls it before persisting.
func (c *core) markDirty(b *model.Batch) error {
	b.NeedsRegeneration = true
	b.UpdatedAt = c.now()
	return checkBatch(b)
}

// PageOrder returns docs in consolidated page order: the canonical folder order when
// every member has a distinct known folder, otherwise insertion order.
func PageOrder(docs []model.Document) []model.Document {
	out := append([]model.Document(nil), docs...)
	seen := make(map[model.Folder]bool, len(out))
	for _, d := range out {
		if !d.Folder.Valid() || seen[d.Folder] {
			return out
		}
		seen[d.Folder] = true
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Folder.Rank() < out[j].Folder.Rank() })
	return out
}

// members loads the documents of b in page order.
func (c *core) members(ctx context.Context, b *model.Batch) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(b.DocumentIDs))
	for _, id := range b.DocumentIDs {
		d, err := c.docs.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load member %s of batch %s: %w", id, b.ID, notFound(err, "document", id))
		}
		docs = append(docs, *d)
	}
	return PageOrder(docs), nil
}

func (c *core) findBatch(ctx context.Context, id string) (*model.Batch, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	b, err := c.batches.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "batch", id)
	}
	return b, nil
}

func (s *batchService) CreateBatch(ctx context.Context, ids []string) (*model.Batch, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: document_ids is required", ErrValidation)
	}

	unlock, err := s.locker.Lock(ctx, documentKeys(ids)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, id := range ids {
		d, err := s.docs.FindByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "document", id)
		}
		if d.BatchID != nil {
			return nil, fmt.Errorf("%w: document %s already belongs to batch %s", ErrConflict, id, *d.BatchID)
		}
		if d.Status != model.StatusAnalyzed {
			return nil, fmt.Errorf("%w: document %s is %s, not analyzed", ErrConflict, id, d.Status)
		}
	}

	now := s.now()
	b := &model.Batch{
		ID:          newID(),
		DocumentIDs: ids,
		Status:      model.BatchCreated,
		CreatedBy:   callerID(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := checkBatch(b); err != nil {
		return nil, err
	}
	if err := s.batches.CreateClaiming(ctx, b); err != nil {
		if errors.Is(err, repository.ErrClaimConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("create batch: %w", err)
	}
	for range ids {
		s.metrics.Transition(string(model.StatusAnalyzed), string(model.StatusBatched))
	}

	s.record(ctx, ActionCreateBatch, fmt.Sprintf("batch %s with %d documents", b.ID, len(ids)))
	return b, nil
}

func (s *batchService) AddDocument(ctx context.Context, batchID string, folder model.Folder, f FileInput) (*model.Document, error) {
	if _, err := s.findBatch(ctx, batchID); err != nil {
		return nil, err
	}

	doc, err := s.documents.Upload(ctx, folder, f)
	if err != nil {
		return nil, err
	}
	doc, err = s.documents.Validate(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.StatusValidated {
		return nil, fmt.Errorf("%w: %s: %s", ErrValidation, doc.Filename, doc.StatusMessage)
	}
	a, err := s.documents.analyze(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if a.failure != nil {
		return nil, a.failure
	}

	unlock, err := s.locker.Lock(ctx, lock.BatchKey(batchID), lock.DocumentKey(doc.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.DocumentIDs = append(b.DocumentIDs, doc.ID)
	if err := s.markDirty(b); err != nil {
		return nil, err
	}
	if err := s.batches.Claim(ctx, b, doc.ID); err != nil {
		if errors.Is(err, repository.ErrClaimConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("claim document: %w", err)
	}
	s.metrics.Transition(string(model.StatusAnalyzed), string(model.StatusBatched))

	out, err := s.documents.Get(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, ActionAddToBatch, fmt.Sprintf("%s %s added to batch %s", out.ID, out.Filename, batchID))
	return out, nil
}

func (s *batchService) RemoveDocument(ctx context.Context, batchID, docID string) (*model.Batch, error) {
	if docID == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrValidation)
	}
	unlock, err := s.locker.Lock(ctx, lock.BatchKey(batchID), lock.DocumentKey(docID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !b.Has(docID) {
		return nil, fmt.Errorf("%w: document %s is not in batch %s", ErrNotFound, docID, batchID)
	}
	if len(b.DocumentIDs) == 1 {
		return nil, fmt.Errorf("%w: batch %s cannot become empty", ErrConflict, batchID)
	}

	kept := make([]string, 0, len(b.DocumentIDs)-1)
	for _, id := range b.DocumentIDs {
		if id != docID {
			kept = append(kept, id)
		}
	}
	b.DocumentIDs = kept
	if err := s.markDirty(b); err != nil {
		return nil, err
	}
	if err := s.batches.Release(ctx, b, docID); err != nil {
		return nil, fmt.Errorf("release document: %w", err)
	}
	s.metrics.Transition(string(model.StatusBatched), string(model.StatusAnalyzed))

	s.record(ctx, ActionRemoveFromBatch, fmt.Sprintf("%s removed from batch %s", docID, batchID))
	return b, nil
}

func (s *batchService) ReplaceDocumentFile(ctx context.Context, docID string, f FileInput) (*model.Document, error) {
	if err := s.documents.checkFile(&f); err != nil {
		return nil, err
	}
	current, err := s.documents.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if current.BatchID == nil {
		return nil, fmt.Errorf("%w: document %s is not batched", ErrConflict, docID)
	}
	batchID := *current.BatchID

	unlock, err := s.locker.Lock(ctx, lock.BatchKey(batchID), lock.DocumentKey(docID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.BatchID == nil || *doc.BatchID != batchID {
		return nil, fmt.Errorf("%w: document %s changed batch, retry", ErrConflict, docID)
	}
	if err := s.engine.Validate(f.Data, f.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, f.Filename, err)
	}

	hash := contentHash(f.Data)
	existing, err := s.docs.FindByHash(ctx, doc.Folder, hash)
	switch {
	case err == nil && existing.ID != doc.ID:
		return nil, fmt.Errorf("%w: %s matches %s in %s", ErrDuplicate, f.Filename, existing.Filename, doc.Folder)
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find by hash: %w", err)
	}

	key := filepath.ToSlash(filepath.Join("documents", string(doc.Folder), newID()+strings.ToLower(filepath.Ext(f.Filename))))
	if _, err := storage.PutBytes(ctx, s.store, key, f.Data, f.ContentType, map[string]string{
		"original-filename": f.Filename,
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		s.dropObject(ctx, key)
		return nil, err
	}

	prev := *doc
	now := s.now()
	doc.Filename = f.Filename
	doc.ContentType = f.ContentType
	doc.Size = int64(len(f.Data))
	doc.ContentHash = hash
	doc.StorageKey = key
	doc.ClearExtracted()
	doc.ReplacedAt = &now
	doc.StatusMessage = "pending re-analysis"
	doc.UpdatedAt = now
	if err := s.saveDocument(ctx, doc); err != nil {
		s.dropObject(ctx, key)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s already present in %s", ErrDuplicate, f.Filename, doc.Folder)
		}
		return nil, fmt.Errorf("update document: %w", err)
	}

	// the batch only becomes dirty once the new content is recorded
	dirtyErr := s.markDirty(b)
	if dirtyErr == nil {
		dirtyErr = s.batches.Update(ctx, b)
	}
	if dirtyErr != nil {
		restore := context.WithoutCancel(ctx)
		if err := s.docs.Update(restore, &prev); err != nil {
			s.log.Error("restore replaced document failed", zap.String("document_id", doc.ID), zap.Error(err))
			return nil, fmt.Errorf("update batch: %w", dirtyErr)
		}
		s.dropObject(restore, key)
		return nil, fmt.Errorf("update batch: %w", dirtyErr)
	}
	oldKey := prev.StorageKey
	if oldKey != key {
		s.dropObject(ctx, oldKey)
	}

	s.record(ctx, ActionReplaceDocumentFile, fmt.Sprintf("%s in batch %s now %s", doc.ID, batchID, doc.Filename))
	return doc, nil
}

func (s *batchService) DeleteBatch(ctx context.Context, batchID string) error {
	snapshot, err := s.findBatch(ctx, batchID)
	if err != nil {
		return err
	}
	keys := append(documentKeys(snapshot.DocumentIDs), lock.BatchKey(batchID))
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for _, id := range b.DocumentIDs {
		if !snapshot.Has(id) {
			return fmt.Errorf("%w: batch %s changed while deleting, retry", ErrConflict, batchID)
		}
	}

	if err := s.batches.DeleteReleasing(ctx, b); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	for range b.DocumentIDs {
		s.metrics.Transition(string(model.StatusBatched), string(model.StatusAnalyzed))
	}
	if b.ArtifactID != nil {
		s.dropArtifact(ctx, *b.ArtifactID)
	}

	s.record(ctx, ActionDeleteBatch, fmt.Sprintf("batch %s with %d documents", b.ID, len(b.DocumentIDs)))
	return nil
}

// dropArtifact removes an artifact row and its object. The batch no longer points at
// it, so failures are logged and left for cleanup.
func (c *core) dropArtifact(ctx context.Context, id string) {
	a, err := c.artifacts.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.log.Warn("artifact lookup failed", zap.String("artifact_id", id), zap.Error(err))
		}
		return
	}
	if err := c.artifacts.Delete(ctx, id); err != nil {
		c.log.Warn("artifact delete failed", zap.String("artifact_id", id), zap.Error(err))
		return
	}
	c.dropObject(ctx, a.StorageKey)
}

func (s *batchService) Get(ctx context.Context, id string) (*BatchView, error) {
	b, err := s.findBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.members(ctx, b)
	if err != nil {
		return nil, err
	}
	return &BatchView{Batch: *b, Documents: docs}, nil
}

func (s *batchService) List(ctx context.Context) ([]BatchView, error) {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BatchView, 0, len(batches))
	for i := range batches {
		docs, err := s.members(ctx, &batches[i])
		if err != nil {
			return nil, err
		}
		out = append(out, BatchView{Batch: batches[i], Documents: docs})
	}
	return out, nil
}
