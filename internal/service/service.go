// Package service holds the document pipeline: the document store and its status
// machine, correlation, batch membership, consolidation and bulk runs.
package service

// Services bundles every service built over one set of collaborators.
type Services struct {
	Documents     DocumentService
	Correlation   CorrelationService
	Batches       BatchService
	Consolidation ConsolidationService
	Bulk          BulkService
	Audit         AuditService
	Stats         StatsService
}

// New wires the services over d. They share one lock manager so that every
// mutation of a document or batch is serialized regardless of entry point.
func New(d Deps) *Services {
	c := newCore(d)
	docs := &documentService{core: c}
	batches := &batchService{core: c, documents: docs}
	consolidation := &consolidationService{core: c, batchSvc: batches}
	return &Services{
		Documents:     docs,
		Correlation:   &correlationService{core: c, documents: docs},
		Batches:       batches,
		Consolidation: consolidation,
		Bulk:          &bulkService{core: c, documents: docs, consolidation: consolidation},
		Audit:         &auditService{core: c},
		Stats:         &statsService{core: c},
	}
}
