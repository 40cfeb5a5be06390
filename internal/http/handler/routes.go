package handler

import (
	"github.com/gofiber/fiber/v2"

	"docflow/internal/auth"
	"docflow/internal/http/middleware"
	"docflow/internal/service"
)

// Deps are what the routes dispatch to.
type Deps struct {
	Services *service.Services
	Jobs     service.JobService
	Verifier *auth.Verifier
	// Health is probed by /health, in order.
	Health []Pinger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Everything under /api requires a bearer token and a role allowed to run the operation.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.Health...))
	app.Get("/healthz", LivenessProbe())

	s := d.Services
	api := app.Group("/api", middleware.Authenticate(d.Verifier))
	allow := middleware.Require

	docs := api.Group("/documents")
	// static segments before /:id
	docs.Get("/", allow(auth.OpDocumentRead), ListDocuments(s.Documents))
	docs.Post("/upload", allow(auth.OpDocumentWrite), UploadDocuments(s.Documents))
	docs.Get("/suggest-batches", allow(auth.OpDocumentRead), SuggestBatches(s.Correlation))
	docs.Post("/reanalyze-group", allow(auth.OpDocumentWrite), ReanalyzeGroup(s.Correlation))
	docs.Post("/analyze-all", allow(auth.OpBulkRun), AnalyzeChunk(s.Bulk))
	docs.Post("/validate-folder/:folder", allow(auth.OpDocumentWrite), ValidateFolder(s.Bulk))
	docs.Get("/:id", allow(auth.OpDocumentRead), GetDocument(s.Documents))
	docs.Delete("/:id", allow(auth.OpDocumentDelete), DeleteDocument(s.Documents))
	docs.Post("/:id/validate", allow(auth.OpDocumentWrite), ValidateDocument(s.Documents))
	docs.Post("/:id/analyze", allow(auth.OpDocumentWrite), AnalyzeDocument(s.Documents))
	docs.Post("/:id/split", allow(auth.OpDocumentWrite), SplitDocument(s.Documents))
	docs.Put("/:id/file", allow(auth.OpDocumentWrite), ReplaceDocumentFile(s.Batches))

	jobs := api.Group("/jobs")
	jobs.Post("/analyze-all", allow(auth.OpBulkRun), StartAnalyzeAllJob(d.Jobs))
	jobs.Get("/:id", allow(auth.OpBulkRun), GetJob(d.Jobs))
	jobs.Delete("/:id", allow(auth.OpBulkRun), CancelJob(d.Jobs))

	batches := api.Group("/batches")
	batches.Post("/create", allow(auth.OpBatchWrite), CreateBatch(s.Batches))
	batches.Post("/create-from-suggestion", allow(auth.OpBatchWrite), CreateBatchFromSuggestion(s.Consolidation))
	batches.Post("/create-and-generate", allow(auth.OpBatchWrite), CreateAndGenerate(s.Consolidation))
	batches.Post("/bulk-create", allow(auth.OpBulkRun), BulkCreate(s.Bulk))
	batches.Get("/list", allow(auth.OpBatchRead), ListBatches(s.Batches))
	batches.Get("/:id", allow(auth.OpBatchRead), GetBatch(s.Batches))
	batches.Delete("/:id", allow(auth.OpBatchDelete), DeleteBatch(s.Batches))
	batches.Post("/:id/generate-pdf", allow(auth.OpArtifactWrite), GenerateBatchPDF(s.Consolidation))
	batches.Post("/:id/regenerate-pdf", allow(auth.OpArtifactWrite), RegenerateBatchPDF(s.Consolidation))
	batches.Post("/:id/documents", allow(auth.OpBatchWrite), AddBatchDocument(s.Batches))
	batches.Delete("/:id/documents/:docId", allow(auth.OpBatchWrite), RemoveBatchDocument(s.Batches))

	pdfs := api.Group("/pdfs")
	pdfs.Get("/list", allow(auth.OpArtifactRead), ListArtifacts(s.Consolidation))
	pdfs.Get("/:id/download", allow(auth.OpArtifactRead), DownloadArtifact(s.Consolidation))
	pdfs.Get("/:id/details", allow(auth.OpArtifactRead), ArtifactDetails(s.Consolidation))

	api.Get("/audit/logs", allow(auth.OpAuditRead), ListAuditLogs(s.Audit))
	api.Get("/dashboard/stats", allow(auth.OpStatsRead), DashboardStats(s.Stats))
}
