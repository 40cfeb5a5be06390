package service

import (
	"context"

	"docflow/internal/model"
)

// Audit actions.
const (
	ActionUploadDocuments     = "UPLOAD_DOCUMENTS"
	ActionValidateDocument    = "VALIDATE_DOCUMENT"
	ActionAnalyzeDocument     = "ANALYZE_DOCUMENT"
	ActionSplitDocument       = "SPLIT_DOCUMENT"
	ActionDeleteDocument      = "DELETE_DOCUMENT"
	ActionCreateBatch         = "CREATE_BATCH"
	ActionDeleteBatch         = "DELETE_BATCH"
	ActionAddToBatch          = "ADD_TO_BATCH"
	ActionRemoveFromBatch     = "REMOVE_FROM_BATCH"
	ActionReplaceDocumentFile = "REPLACE_DOCUMENT_FILE"
	ActionGeneratePDF         = "GENERATE_PDF"
	ActionRegeneratePDF       = "REGENERATE_PDF"
	ActionDownloadPDF         = "DOWNLOAD_PDF"
	ActionBulkAnalyze         = "BULK_ANALYZE"
	ActionBulkCreate          = "BULK_CREATE"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditService reads the audit trail.
type AuditService interface {
	// List returns the newest entries first. limit <= 0 selects the default.
	List(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type auditService struct {
	*core
}

func (s *auditService) List(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}
	if s.auditRepo == nil {
		return []model.AuditEntry{}, nil
	}
	return s.auditRepo.List(ctx, limit)
}
