package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docflow/internal/auth"
	"docflow/internal/config"
	"docflow/internal/extraction"
	"docflow/internal/lock"
	"docflow/internal/metrics"
	"docflow/internal/model"
	"docflow/internal/pdf"
	"docflow/internal/repository"
	"docflow/internal/storage"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Documents repository.DocumentRepository
	Batches   repository.BatchRepository
	Artifacts repository.ArtifactRepository
	Audit     repository.AuditRepository
	Storage   storage.Storage
	Extractor extraction.Extractor
	Engine    pdf.Engine
	Locker    lock.Locker
	Metrics   *metrics.Pipeline
	Logger    *zap.Logger
	Upload    config.UploadConfig
	Bulk      config.BulkConfig
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// core is embedded by every service implementation.
type core struct {
	docs      repository.DocumentRepository
	batches   repository.BatchRepository
	artifacts repository.ArtifactRepository
	auditRepo repository.AuditRepository
	store     storage.Storage
	extractor extraction.Extractor
	engine    pdf.Engine
	locker    lock.Locker
	metrics   *metrics.Pipeline
	log       *zap.Logger
	validate  *validator.Validate
	upload    config.UploadConfig
	bulk      config.BulkConfig
	now       func() time.Time
}

func newCore(d Deps) *core {
	c := &core{
		docs:      d.Documents,
		batches:   d.Batches,
		artifacts: d.Artifacts,
		auditRepo: d.Audit,
		store:     d.Storage,
		extractor: d.Extractor,
		engine:    d.Engine,
		locker:    d.Locker,
		metrics:   d.Metrics,
		log:       d.Logger,
		validate:  validator.New(),
		upload:    d.Upload,
		bulk:      d.Bulk,
		now:       d.Now,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.locker == nil {
		c.locker = lock.NewLocal()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.bulk.ChunkSize <= 0 {
		c.bulk.ChunkSize = 5
	}
	if c.bulk.MaxIterations <= 0 {
		c.bulk.MaxIterations = 50
	}
	return c
}

func newID() string { return uuid.NewString() }

func callerID(ctx context.Context) string { return auth.CallerOrSystem(ctx).UserID }

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// saveDocument persists doc after checking the batch membership invariant.
func (c *core) saveDocument(ctx context.Context, doc *model.Document) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	return c.docs.Update(ctx, doc)
}

// record appends an audit entry for the caller in ctx. Failures are logged, never returned.
func (c *core) record(ctx context.Context, action, details string) {
	if c.auditRepo == nil {
		return
	}
	caller := auth.CallerOrSystem(ctx)
	e := &model.AuditEntry{
		ID:        newID(),
		UserID:    caller.UserID,
		UserEmail: caller.Email,
		Action:    action,
		Details:   details,
		Timestamp: c.now(),
	}
	if err := c.auditRepo.Append(ctx, e); err != nil {
		c.log.Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
}

// readContent fetches the stored bytes of doc.
func (c *core) readContent(ctx context.Context, doc *model.Document) ([]byte, error) {
	return storage.ReadAll(ctx, c.store, doc.StorageKey)
}

// dropObject deletes key, logging instead of failing: an orphaned object is harmless.
func (c *core) dropObject(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.Warn("object delete failed", zap.String("key", key), zap.Error(err))
	}
}
