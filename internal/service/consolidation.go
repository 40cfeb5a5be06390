package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"docflow/internal/lock"
	"docflow/internal/model"
	tracing "docflow/internal/otel"
	"docflow/internal/pdf"
	"docflow/internal/repository"
	"docflow/internal/storage"
)

// GenerateResult is returned by the operations that create a batch and render it in one call.
type GenerateResult struct {
	Batch    *model.Batch    `json:"batch"`
	Artifact *model.Artifact `json:"artifact"`
}

// ArtifactSummary condenses the members of a consolidated batch.
type ArtifactSummary struct {
	Counterparty   string   `json:"counterparty"`
	Counterparties []string `json:"counterparties"`
	TotalAmount    int64    `json:"total_amount"`
	Count          int      `json:"count"`
}

// ArtifactDetails is an artifact with its batch and members in page order.
type ArtifactDetails struct {
	Artifact  model.Artifact   `json:"artifact"`
	Batch     model.Batch      `json:"batch"`
	Documents []model.Document `json:"documents"`
	Summary   ArtifactSummary  `json:"summary"`
}

// ConsolidationService renders batches into merged PDFs and serves them.
type ConsolidationService interface {
	// Generate renders a created batch. On render failure the batch stays created.
	Generate(ctx context.Context, batchID string) (*model.Artifact, error)
	// Regenerate always rebuilds from current membership and supersedes the previous artifact.
	Regenerate(ctx context.Context, batchID string) (*model.Artifact, error)
	// CreateAndGenerate creates a batch from ids and renders it. When rendering fails the
	// created batch is returned together with the error.
	CreateAndGenerate(ctx context.Context, ids []string) (*GenerateResult, error)
	// CreateBatchFromSuggestion is CreateAndGenerate for a suggestion. A suggestion whose
	// members are no longer all analyzed and unbatched is stale and yields ErrConflict.
	CreateBatchFromSuggestion(ctx context.Context, sg model.Suggestion) (*GenerateResult, error)

	// Download opens the artifact bytes. The caller closes the reader.
	Download(ctx context.Context, artifactID string) (*model.Artifact, io.ReadCloser, error)
	Details(ctx context.Context, artifactID string) (*ArtifactDetails, error)
	ListArtifacts(ctx context.Context) ([]model.Artifact, error)
}

type consolidationService struct {
	*core
	batchSvc *batchService
}

func (s *consolidationService) Generate(ctx context.Context, batchID string) (*model.Artifact, error) {
	unlock, err := s.locker.Lock(ctx, lock.BatchKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BatchCreated {
		return nil, fmt.Errorf("%w: batch %s is %s, use regenerate", ErrConflict, batchID, b.Status)
	}

	a, err := s.renderLocked(ctx, b, "generate")
	if err != nil {
		return nil, err
	}
	s.record(ctx, ActionGeneratePDF, fmt.Sprintf("batch %s: %s", b.ID, a.Filename))
	return a, nil
}

func (s *consolidationService) Regenerate(ctx context.Context, batchID string) (*model.Artifact, error) {
	unlock, err := s.locker.Lock(ctx, lock.BatchKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.findBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	previous := b.ArtifactID

	a, err := s.renderLocked(ctx, b, "regenerate")
	if err != nil {
		return nil, err
	}
	if previous != nil && *previous != a.ID {
		s.dropArtifact(ctx, *previous)
	}
	s.record(ctx, ActionRegeneratePDF, fmt.Sprintf("batch %s: %s", b.ID, a.Filename))
	return a, nil
}

// renderLocked merges the members of b into a new artifact and points b at it.
// A batch without an artifact is held in generating while rendering and returns to
// created on failure. A ready batch keeps its previous artifact until the new one is stored.
func (s *consolidationService) renderLocked(ctx context.Context, b *model.Batch, kind string) (*model.Artifact, error) {
	ctx, span := tracing.Tracer().Start(ctx, "batch."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("batch.id", b.ID), attribute.Int("batch.documents", len(b.DocumentIDs)))

	hadArtifact := b.ArtifactID != nil
	if !hadArtifact {
		b.Status = model.BatchGenerating
		b.UpdatedAt = s.now()
		if err := s.batches.Update(ctx, b); err != nil {
			return nil, fmt.Errorf("update batch: %w", err)
		}
	}
	fail := func(err error) (*model.Artifact, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		s.metrics.Artifact(kind, "failed")
		if !hadArtifact {
			b.Status = model.BatchCreated
			b.UpdatedAt = s.now()
			if uerr := s.batches.Update(ctx, b); uerr != nil {
				s.log.Error("batch status rollback failed", zap.String("batch_id", b.ID), zap.Error(uerr))
			}
		}
		return nil, err
	}

	docs, err := s.members(ctx, b)
	if err != nil {
		return fail(err)
	}
	parts := make([]pdf.Part, 0, len(docs))
	for i := range docs {
		data, err := s.readContent(ctx, &docs[i])
		if err != nil {
			return fail(fmt.Errorf("%w: read %s: %v", ErrRender, docs[i].Filename, err))
		}
		parts = append(parts, pdf.Part{Name: docs[i].Filename, ContentType: docs[i].ContentType, Data: data})
	}
	merged, err := s.engine.Merge(parts)
	if err != nil {
		s.metrics.CollaboratorError("render")
		return fail(fmt.Errorf("%w: %v", ErrRender, err))
	}

	a := &model.Artifact{
		ID:        newID(),
		BatchID:   b.ID,
		Filename:  ArtifactFilename(b.ID, docs),
		Size:      int64(len(merged)),
		CreatedBy: callerID(ctx),
		CreatedAt: s.now(),
	}
	a.StorageKey = "artifacts/" + a.ID + ".pdf"
	if _, err := storage.PutBytes(ctx, s.store, a.StorageKey, merged, pdf.ContentTypePDF, map[string]string{
		"batch-id": b.ID,
	}); err != nil {
		return fail(fmt.Errorf("%w: store artifact: %v", ErrRender, err))
	}
	if err := s.artifacts.Create(ctx, a); err != nil {
		s.dropObject(ctx, a.StorageKey)
		return fail(fmt.Errorf("create artifact: %w", err))
	}

	b.Status = model.BatchReady
	b.ArtifactID = &a.ID
	b.NeedsRegeneration = false
	b.UpdatedAt = s.now()
	if err := checkBatch(b); err != nil {
		return nil, err
	}
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update batch: %w", err)
	}
	s.metrics.Artifact(kind, "ok")
	s.log.Info("artifact stored",
		zap.String("batch_id", b.ID),
		zap.String("artifact_id", a.ID),
		zap.Int64("size", a.Size),
	)
	return a, nil
}

const fallbackPrefix = "consolidado_"

// ArtifactFilename names a merged PDF {voucherNumber}_{counterparty}.pdf, falling back
// to consolidado_{batchID}.pdf when the voucher number is unknown.
func ArtifactFilename(batchID string, docs []model.Document) string {
	var number, counterparty string
	for _, d := range docs {
		if d.Folder == model.FolderDisbursementVoucher && d.DocumentNumber != nil {
			number = sanitizeName(*d.DocumentNumber)
			if d.Counterparty != nil {
				counterparty = sanitizeName(*d.Counterparty)
			}
			break
		}
	}
	if number == "" {
		return fallbackPrefix + sanitizeName(batchID) + ".pdf"
	}
	if counterparty == "" {
		for _, d := range docs {
			if d.Counterparty != nil {
				if counterparty = sanitizeName(*d.Counterparty); counterparty != "" {
					break
				}
			}
		}
	}
	if counterparty == "" {
		return number + ".pdf"
	}
	return number + "_" + counterparty + ".pdf"
}

// sanitizeName keeps ASCII letters, digits, dash and underscore. Other runs become one underscore.
func sanitizeName(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(s) {
		ok := r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *consolidationService) CreateAndGenerate(ctx context.Context, ids []string) (*GenerateResult, error) {
	b, err := s.batchSvc.CreateBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	a, err := s.Generate(ctx, b.ID)
	if err != nil {
		return &GenerateResult{Batch: b}, err
	}
	if fresh, ferr := s.batches.FindByID(ctx, b.ID); ferr == nil {
		b = fresh
	}
	return &GenerateResult{Batch: b, Artifact: a}, nil
}

func (s *consolidationService) CreateBatchFromSuggestion(ctx context.Context, sg model.Suggestion) (*GenerateResult, error) {
	if err := s.validate.Struct(sg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, id := range sg.DocumentIDs {
		d, err := s.docs.FindByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "document", id)
		}
		if d.BatchID != nil || d.Status != model.StatusAnalyzed {
			return nil, fmt.Errorf("%w: suggestion is stale, document %s is %s", ErrConflict, id, d.Status)
		}
	}
	return s.CreateAndGenerate(ctx, sg.DocumentIDs)
}

func (s *consolidationService) findArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: artifact id is required", ErrValidation)
	}
	a, err := s.artifacts.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "artifact", id)
	}
	return a, nil
}

func (s *consolidationService) Download(ctx context.Context, artifactID string) (*model.Artifact, io.ReadCloser, error) {
	a, err := s.findArtifact(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.store.Get(ctx, a.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: artifact %s content", ErrNotFound, artifactID)
		}
		return nil, nil, fmt.Errorf("get from storage: %w", err)
	}
	s.record(ctx, ActionDownloadPDF, fmt.Sprintf("%s %s", a.ID, a.Filename))
	return a, rc, nil
}

func (s *consolidationService) Details(ctx context.Context, artifactID string) (*ArtifactDetails, error) {
	a, err := s.findArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	b, err := s.batches.FindByID(ctx, a.BatchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: batch %s of artifact %s", ErrNotFound, a.BatchID, a.ID)
		}
		return nil, err
	}
	docs, err := s.members(ctx, b)
	if err != nil {
		return nil, err
	}
	return &ArtifactDetails{Artifact: *a, Batch: *b, Documents: docs, Summary: summarize(docs)}, nil
}

func summarize(docs []model.Document) ArtifactSummary {
	sum := ArtifactSummary{Counterparties: []string{}, Count: len(docs)}
	seen := make(map[string]bool)
	for _, d := range docs {
		if d.Amount != nil {
			sum.TotalAmount += *d.Amount
		}
		if d.Counterparty == nil {
			continue
		}
		name := strings.TrimSpace(*d.Counterparty)
		key := NormalizeCounterparty(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		sum.Counterparties = append(sum.Counterparties, name)
	}
	if len(sum.Counterparties) > 0 {
		sum.Counterparty = sum.Counterparties[0]
	}
	return sum
}

func (s *consolidationService) ListArtifacts(ctx context.Context) ([]model.Artifact, error) {
	return s.artifacts.List(ctx)
}
